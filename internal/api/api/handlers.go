package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"regdesk/internal/credential"
	"regdesk/internal/dto"
	"regdesk/internal/export"
	"regdesk/internal/model"
	"regdesk/internal/service"
	"regdesk/internal/upi"
)

type handlers struct {
	svc service.Service
	upi *upi.Payee
	log *zerolog.Logger
}

func (h *handlers) fail(c *ginext.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		dto.ValidationFailed(c, verr.Code, verr.Message, verr.Fields)
	case errors.Is(err, service.ErrDuplicate):
		dto.RegistrationDuplicateError(c)
	case errors.Is(err, service.ErrNotFound):
		dto.RegistrationNotFoundError(c)
	default:
		dto.InternalServerError(c)
	}
}

func (h *handlers) health(c *ginext.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handlers) submit(c *ginext.Context) {
	var req dto.CreateRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(c, dto.FieldBadFormat, "Request body must be a valid registration object")
		return
	}

	res, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := dto.SubmitResponse{
		Success: true,
		Message: "Registration successful!",
		Warning: res.Warning,
	}
	if len(res.Credential) > 0 {
		resp.CredentialImage = credential.DataURL(res.Credential)
	}
	dto.SuccessResponse(c, resp)
}

func (h *handlers) list(c *ginext.Context) {
	regs, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	dto.SuccessResponse(c, dto.RegistrationListResponse{Success: true, Count: len(regs), Registrations: regs})
}

// hasRegistrations lets the landing page decide whether to show the export links.
func (h *handlers) hasRegistrations(c *ginext.Context) {
	regs, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	dto.SuccessResponse(c, dto.HasRegistrationsResponse{Success: true, HasRegistrations: len(regs) > 0, Count: len(regs)})
}

func (h *handlers) get(c *ginext.Context) {
	reg, err := h.svc.Get(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.fail(c, err)
		return
	}
	dto.SuccessResponse(c, dto.RegistrationResponse{Success: true, Registration: reg})
}

func (h *handlers) update(c *ginext.Context) {
	var fields map[string]json.RawMessage
	if err := c.ShouldBindJSON(&fields); err != nil {
		dto.BadResponseError(c, dto.FieldBadFormat, "Request body must be a JSON object")
		return
	}
	if err := h.svc.Update(c.Request.Context(), c.Param("ref"), fields); err != nil {
		h.fail(c, err)
		return
	}
	dto.SuccessMessage(c, "Registration updated.")
}

func (h *handlers) delete(c *ginext.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("ref")); err != nil {
		h.fail(c, err)
		return
	}
	dto.SuccessMessage(c, "Registration deleted.")
}

func (h *handlers) validateReference(c *ginext.Context) {
	var req dto.ValidateReferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.FieldBadFormatError(c, "payment_reference")
		return
	}

	valid, duplicate, err := h.svc.CheckReference(c.Request.Context(), req.Reference())
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := dto.ValidateReferenceResponse{Valid: valid, Duplicate: duplicate}
	switch {
	case !valid:
		resp.Message = "Invalid payment reference number."
	case duplicate:
		resp.Message = "Duplicate payment reference number."
	}
	dto.SuccessResponse(c, resp)
}

func (h *handlers) exportTable(c *ginext.Context) {
	regs, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	page, err := export.RenderTable(regs, export.DefaultLinks)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to render registrations table")
		dto.InternalServerError(c)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (h *handlers) exportSpreadsheet(c *ginext.Context) {
	h.download(c, export.SpreadsheetFilename, export.SpreadsheetContentType, export.RenderSpreadsheet)
}

func (h *handlers) exportCSV(c *ginext.Context) {
	h.download(c, export.CSVFilename, export.CSVContentType, export.RenderCSV)
}

func (h *handlers) download(c *ginext.Context, filename, contentType string, render func([]model.Registration) ([]byte, error)) {
	regs, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	data, err := render(regs)
	if err != nil {
		h.log.Error().Err(err).Str("file", filename).Msg("failed to render export")
		dto.InternalServerError(c)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

func (h *handlers) upiConfig(c *ginext.Context) {
	var cfg upi.Config
	if h.upi != nil {
		cfg = h.upi.Config()
	}
	dto.SuccessResponse(c, dto.UPIConfigResponse{Success: true, PA: cfg.VPA, PN: cfg.Name, Note: cfg.Note})
}

func (h *handlers) upiQR(c *ginext.Context) {
	if h.upi == nil {
		c.String(http.StatusBadRequest, upi.ErrNotConfigured.Error())
		return
	}
	png, err := h.upi.QR(c.Query("am"), c.Query("tn"), c.Query("tr"))
	switch {
	case errors.Is(err, upi.ErrNotConfigured), errors.Is(err, upi.ErrInvalidAmount):
		c.String(http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.log.Error().Err(err).Msg("failed to generate payment qr")
		c.String(http.StatusInternalServerError, "Failed to generate QR")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
