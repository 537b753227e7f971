package repo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"regdesk/internal/model"
)

func newTestFileRepo(t *testing.T, mirror MirrorFunc) (*FileRepository, string) {
	t.Helper()
	dir := t.TempDir()
	log := zerolog.Nop()
	r, err := NewFileRepository(dir, &log, mirror)
	if err != nil {
		t.Fatalf("NewFileRepository: %v", err)
	}
	return r, dir
}

func sampleRegistration(ref string, at time.Time) *model.Registration {
	return &model.Registration{
		Name:               "A",
		RegistrationNumber: "REG-1",
		Mobile:             "9999999999",
		Course:             "B.Tech",
		Branch:             "CSE",
		Section:            "A",
		Year:               "2",
		Campus:             "Main",
		PaymentReference:   ref,
		Amount:             decimal.NewFromInt(100),
		Events:             []string{"Dance"},
		SubmittedAt:        at,
	}
}

func TestFileRepositoryInsertAndGet(t *testing.T) {
	r, dir := newTestFileRepo(t, nil)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	stored, err := r.Insert(ctx, sampleRegistration("123456789012", at))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if stored.ID != 1 {
		t.Fatalf("ID = %d, want 1", stored.ID)
	}

	got, err := r.GetByReference(ctx, "123456789012")
	if err != nil {
		t.Fatalf("GetByReference: %v", err)
	}
	if got.Name != "A" || !got.Amount.Equal(decimal.NewFromInt(100)) || !reflect.DeepEqual(got.Events, []string{"Dance"}) || !got.SubmittedAt.Equal(at) {
		t.Fatalf("unexpected record: %+v", got)
	}

	count, err := r.CountByReference(ctx, "123456789012")
	if err != nil || count != 1 {
		t.Fatalf("CountByReference = %d, %v", count, err)
	}

	f, err := os.Open(filepath.Join(dir, "audit_registrations.jsonl"))
	if err != nil {
		t.Fatalf("audit file: %v", err)
	}
	defer f.Close()
	lines := 0
	for s := bufio.NewScanner(f); s.Scan(); {
		lines++
	}
	if lines != 1 {
		t.Fatalf("audit lines = %d, want 1", lines)
	}
}

func TestFileRepositoryRejectsDuplicateReference(t *testing.T) {
	r, _ := newTestFileRepo(t, nil)
	ctx := context.Background()

	if _, err := r.Insert(ctx, sampleRegistration("123456789012", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := r.Insert(ctx, sampleRegistration("123456789012", time.Now())); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("second Insert err = %v, want ErrDuplicateReference", err)
	}
}

func TestFileRepositoryConcurrentInserts(t *testing.T) {
	r, _ := newTestFileRepo(t, nil)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := fmt.Sprintf("1000000000%02d", i%4)
			if _, err := r.Insert(ctx, sampleRegistration(ref, time.Now())); err == nil {
				succeeded.Add(1)
			} else if !errors.Is(err, ErrDuplicateReference) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := succeeded.Load(); got != 4 {
		t.Fatalf("successful inserts = %d, want 4", got)
	}
	all, err := r.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("records = %d, want 4", len(all))
	}
}

func TestFileRepositoryGetAllOrdersNewestFirst(t *testing.T) {
	r, _ := newTestFileRepo(t, nil)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, ref := range []string{"111111111111", "222222222222", "333333333333"} {
		if _, err := r.Insert(ctx, sampleRegistration(ref, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	all, err := r.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	var refs []string
	for _, reg := range all {
		refs = append(refs, reg.PaymentReference)
	}
	if want := []string{"333333333333", "222222222222", "111111111111"}; !reflect.DeepEqual(refs, want) {
		t.Fatalf("order = %v, want %v", refs, want)
	}
}

func TestFileRepositoryUpdateAndDelete(t *testing.T) {
	var mirrored atomic.Int32
	r, _ := newTestFileRepo(t, func(regs []model.Registration) error {
		mirrored.Add(1)
		return nil
	})
	ctx := context.Background()

	if _, err := r.Insert(ctx, sampleRegistration("123456789012", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	campus := "North"
	events := []string{"a", "b"}
	if err := r.UpdateFields(ctx, "123456789012", model.RegistrationPatch{Campus: &campus, Events: &events}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err := r.GetByReference(ctx, "123456789012")
	if err != nil {
		t.Fatalf("GetByReference: %v", err)
	}
	if got.Campus != "North" || !reflect.DeepEqual(got.Events, events) || got.Name != "A" {
		t.Fatalf("unexpected record after update: %+v", got)
	}

	if err := r.UpdateFields(ctx, "999999999999", model.RegistrationPatch{Campus: &campus}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing err = %v, want ErrNotFound", err)
	}

	n, err := r.DeleteByReference(ctx, "123456789012")
	if err != nil || n != 1 {
		t.Fatalf("DeleteByReference = %d, %v", n, err)
	}
	if _, err := r.GetByReference(ctx, "123456789012"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
	if n, err := r.DeleteByReference(ctx, "123456789012"); err != nil || n != 0 {
		t.Fatalf("second delete = %d, %v", n, err)
	}

	if got := mirrored.Load(); got != 3 {
		t.Fatalf("mirror calls = %d, want 3", got)
	}
}

func TestFileRepositoryCorruptFileIsUnavailable(t *testing.T) {
	r, dir := newTestFileRepo(t, nil)
	if err := os.WriteFile(filepath.Join(dir, "registrations.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := r.GetByReference(context.Background(), "123456789012")
	if !errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestFileRepositoryNeverReusesIDs(t *testing.T) {
	r, dir := newTestFileRepo(t, nil)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	a, err := r.Insert(ctx, sampleRegistration("111111111111", at))
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Insert(ctx, sampleRegistration("222222222222", at.Add(time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if n, err := r.DeleteByReference(ctx, "222222222222"); err != nil || n != 1 {
		t.Fatalf("DeleteByReference = %d, %v", n, err)
	}

	c, err := r.Insert(ctx, sampleRegistration("333333333333", at.Add(2*time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != 1 || b.ID != 2 || c.ID != 3 {
		t.Fatalf("ids = %d, %d, %d, want 1, 2, 3", a.ID, b.ID, c.ID)
	}

	// A store that lost its counter file recovers it from the audit log.
	if err := os.Remove(filepath.Join(dir, "registrations.seq")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.DeleteByReference(ctx, "333333333333"); err != nil {
		t.Fatal(err)
	}
	d, err := r.Insert(ctx, sampleRegistration("444444444444", at.Add(3*time.Minute)))
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != 4 {
		t.Fatalf("id after counter loss = %d, want 4", d.ID)
	}
}

func TestFileRepositoryInsertSurvivesAuditFailure(t *testing.T) {
	r, dir := newTestFileRepo(t, nil)
	ctx := context.Background()

	// A directory in place of the audit log makes every append fail.
	if err := os.Mkdir(filepath.Join(dir, "audit_registrations.jsonl"), 0o755); err != nil {
		t.Fatal(err)
	}

	stored, err := r.Insert(ctx, sampleRegistration("123456789012", time.Now()))
	if err != nil {
		t.Fatalf("Insert must not fail on audit error: %v", err)
	}
	got, err := r.GetByReference(ctx, "123456789012")
	if err != nil || got.ID != stored.ID {
		t.Fatalf("GetByReference = %+v, %v", got, err)
	}
}
