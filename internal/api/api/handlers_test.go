package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"regdesk/internal/credential"
	"regdesk/internal/dto"
	"regdesk/internal/model"
	"regdesk/internal/repo"
	"regdesk/internal/service"
	"regdesk/internal/upi"
)

func newTestServer(t *testing.T) *ginext.Engine {
	t.Helper()
	log := zerolog.Nop()
	dir := t.TempDir()

	store, err := repo.NewFileRepository(dir, &log, nil)
	if err != nil {
		t.Fatalf("NewFileRepository: %v", err)
	}
	creds, err := credential.NewGenerator(128, "", &log)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	svc := service.NewService(store, creds, nil, &log, service.Options{})
	return NewRouters(&Routers{
		Service: svc,
		UPI:     upi.New(upi.Config{VPA: "fest@bank", Name: "Fest"}),
		Log:     &log,
	})
}

func do(t *testing.T, app http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

const validBody = `{
	"name": "Asha",
	"registration_number": "REG-1",
	"mobile": "9999999999",
	"course": "B.Tech",
	"branch": "CSE",
	"section": "A",
	"year": "2",
	"campus": "Main",
	"payment_reference": "123456789012",
	"amount": 100,
	"events": ["Dance"]
}`

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestSubmitLifecycle(t *testing.T) {
	app := newTestServer(t)

	w := do(t, app, http.MethodPost, "/v1/registrations", validBody)
	if w.Code != http.StatusOK {
		t.Fatalf("submit = %d %s", w.Code, w.Body.String())
	}
	sub := decode[dto.SubmitResponse](t, w)
	if !sub.Success || !strings.HasPrefix(sub.CredentialImage, "data:image/png;base64,") {
		t.Fatalf("submit body = %+v", sub)
	}

	w = do(t, app, http.MethodPost, "/v1/registrations", validBody)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate = %d %s", w.Code, w.Body.String())
	}
	if r := decode[dto.Response](t, w); r.Success || r.Code != dto.RegistrationDuplicate {
		t.Fatalf("duplicate body = %+v", r)
	}

	w = do(t, app, http.MethodGet, "/v1/registrations/123456789012", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	got := decode[dto.RegistrationResponse](t, w)
	if got.Registration == nil || got.Registration.Events[0] != "Dance" || got.Registration.Name != "Asha" {
		t.Fatalf("get body = %s", w.Body.String())
	}

	w = do(t, app, http.MethodPut, "/v1/registrations/123456789012", `{"events":"Quiz, Dance","campus":"North","unknown":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d %s", w.Code, w.Body.String())
	}
	got = decode[dto.RegistrationResponse](t, do(t, app, http.MethodGet, "/v1/registrations/123456789012", ""))
	if strings.Join(got.Registration.Events, "|") != "Quiz|Dance" || got.Registration.Campus != "North" {
		t.Fatalf("after update = %+v", got.Registration)
	}

	w = do(t, app, http.MethodPut, "/v1/registrations/123456789012", `{"payment_reference":"999999999999"}`)
	if w.Code != http.StatusBadRequest || decode[dto.Response](t, w).Code != service.CodeImmutableField {
		t.Fatalf("immutable update = %d %s", w.Code, w.Body.String())
	}

	w = do(t, app, http.MethodPut, "/v1/registrations/123456789012", `{"foo":"bar"}`)
	if w.Code != http.StatusBadRequest || decode[dto.Response](t, w).Code != service.CodeNoUpdateFields {
		t.Fatalf("empty update = %d %s", w.Code, w.Body.String())
	}

	if w = do(t, app, http.MethodPut, "/v1/registrations/000000000000", `{"name":"X"}`); w.Code != http.StatusNotFound {
		t.Fatalf("update missing = %d", w.Code)
	}

	if w = do(t, app, http.MethodDelete, "/v1/registrations/123456789012", ""); w.Code != http.StatusOK {
		t.Fatalf("delete = %d %s", w.Code, w.Body.String())
	}
	if w = do(t, app, http.MethodGet, "/v1/registrations/123456789012", ""); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", w.Code)
	}
	if w = do(t, app, http.MethodDelete, "/v1/registrations/123456789012", ""); w.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", w.Code)
	}
}

func TestSubmitRejects(t *testing.T) {
	app := newTestServer(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"name":`, dto.FieldBadFormat},
		{"missing fields", `{"name":"A","payment_reference":"123456789012"}`, service.CodeFieldsMissing},
		{"bad reference", strings.Replace(validBody, "123456789012", "12345", 1), service.CodeReferenceInvalid},
		{"no events", strings.Replace(validBody, `["Dance"]`, `[]`, 1), service.CodeFieldsMissing},
		{"blank events", strings.Replace(validBody, `["Dance"]`, `["  "]`, 1), service.CodeFieldsMissing},
		{"mobile too long", strings.Replace(validBody, "9999999999", strings.Repeat("9", 21), 1), service.CodeFieldIncorrect},
		{"amount precision", strings.Replace(validBody, `"amount": 100`, `"amount": 100.555`, 1), service.CodeFieldIncorrect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, app, http.MethodPost, "/v1/registrations", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d %s", w.Code, w.Body.String())
			}
			if r := decode[dto.Response](t, w); r.Code != tt.code || r.Success || r.Message == "" {
				t.Fatalf("body = %+v", r)
			}
		})
	}

	list := decode[dto.RegistrationListResponse](t, do(t, app, http.MethodGet, "/v1/registrations", ""))
	if list.Count != 0 {
		t.Fatalf("rejected submits must not be stored, got %d", list.Count)
	}
}

func TestHasRegistrations(t *testing.T) {
	app := newTestServer(t)

	w := do(t, app, http.MethodGet, "/v1/has-registrations", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if r := decode[dto.HasRegistrationsResponse](t, w); !r.Success || r.HasRegistrations || r.Count != 0 {
		t.Fatalf("empty store body = %+v", r)
	}

	do(t, app, http.MethodPost, "/v1/registrations", validBody)
	if r := decode[dto.HasRegistrationsResponse](t, do(t, app, http.MethodGet, "/v1/has-registrations", "")); !r.HasRegistrations || r.Count != 1 {
		t.Fatalf("after submit body = %+v", r)
	}
}

func TestValidateReference(t *testing.T) {
	app := newTestServer(t)
	do(t, app, http.MethodPost, "/v1/registrations", validBody)

	tests := []struct {
		body       string
		valid, dup bool
	}{
		{`{"payment_reference":"12"}`, false, false},
		{`{"payment_reference":"111111111111"}`, true, false},
		{`{"utr":"123456789012"}`, true, true},
	}
	for _, tt := range tests {
		w := do(t, app, http.MethodPost, "/v1/registrations/validate-reference", tt.body)
		r := decode[dto.ValidateReferenceResponse](t, w)
		if w.Code != http.StatusOK || r.Valid != tt.valid || r.Duplicate != tt.dup {
			t.Errorf("%s: %d %+v", tt.body, w.Code, r)
		}
	}
}

func TestExports(t *testing.T) {
	app := newTestServer(t)
	do(t, app, http.MethodPost, "/v1/registrations", validBody)

	w := do(t, app, http.MethodGet, "/v1/export/table", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("table = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), `data-ref="123456789012"`) {
		t.Fatal("table missing row")
	}

	w = do(t, app, http.MethodGet, "/v1/export/spreadsheet", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("spreadsheet = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "registrations.xlsx") {
		t.Fatalf("disposition = %q", w.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Fatal("spreadsheet is not a zip container")
	}

	w = do(t, app, http.MethodGet, "/v1/export/csv", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "123456789012") {
		t.Fatalf("csv = %d %s", w.Code, w.Body.String())
	}
}

func TestUPI(t *testing.T) {
	app := newTestServer(t)

	cfg := decode[dto.UPIConfigResponse](t, do(t, app, http.MethodGet, "/v1/upi/config", ""))
	if cfg.PA != "fest@bank" || cfg.PN != "Fest" {
		t.Fatalf("config = %+v", cfg)
	}

	if w := do(t, app, http.MethodGet, "/v1/upi/qr?am=0", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad amount = %d", w.Code)
	}
	w := do(t, app, http.MethodGet, "/v1/upi/qr?am=150&tn=Dance", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("qr = %d %s", w.Code, w.Header().Get("Content-Type"))
	}
}

// downService fails every store call the way an unreachable database does.
type downService struct{ service.Service }

func (downService) List(context.Context) ([]model.Registration, error) {
	return nil, service.ErrStoreUnavailable
}

func (downService) Get(context.Context, string) (*model.Registration, error) {
	return nil, service.ErrStoreUnavailable
}

func TestStoreUnavailableIsGeneric(t *testing.T) {
	log := zerolog.Nop()
	app := NewRouters(&Routers{Service: downService{}, Log: &log})

	for _, path := range []string{"/v1/registrations/123456789012", "/v1/export/spreadsheet", "/v1/has-registrations"} {
		w := do(t, app, http.MethodGet, path, "")
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s = %d", path, w.Code)
		}
		r := decode[dto.Response](t, w)
		if r.Success || r.Message != dto.InternalError {
			t.Fatalf("%s body = %+v", path, r)
		}
	}
}
