package dto

import (
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/wb-go/wbf/ginext"

	"regdesk/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	FieldsMissing      = "FIELDS_MISSING"
	ReferenceInvalid   = "REFERENCE_INVALID"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	RegistrationNotFound  = "REGISTRATION_NOT_FOUND"
	RegistrationDuplicate = "REGISTRATION_DUPLICATE"
)

// CreateRegistrationRequest limits mirror the registrations table columns.
type CreateRegistrationRequest struct {
	Name               string           `json:"name" validate:"required,notblank,max=255"`
	RegistrationNumber string           `json:"registration_number" validate:"required,notblank,max=50"`
	Mobile             string           `json:"mobile" validate:"required,notblank,max=20"`
	Email              string           `json:"email" validate:"omitempty,email,max=255"`
	Course             string           `json:"course" validate:"required,notblank,max=100"`
	Branch             string           `json:"branch" validate:"required,notblank,max=100"`
	Section            string           `json:"section" validate:"required,notblank,max=50"`
	Year               string           `json:"year" validate:"required,notblank,max=20"`
	Campus             string           `json:"campus" validate:"required,notblank,max=100"`
	PaymentReference   string           `json:"payment_reference" validate:"required,notblank"`
	Amount             *decimal.Decimal `json:"amount" validate:"required"`
	Events             []string         `json:"events" validate:"required,min=1,dive,notblank"`
}

type ValidateReferenceRequest struct {
	PaymentReference string `json:"payment_reference"`
	UTR              string `json:"utr"`
}

func (r ValidateReferenceRequest) Reference() string {
	if r.PaymentReference != "" {
		return r.PaymentReference
	}
	return r.UTR
}

type Response struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Code    string   `json:"code,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

type SubmitResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	CredentialImage string `json:"credential_image,omitempty"`
	Warning         string `json:"warning,omitempty"`
}

type RegistrationResponse struct {
	Success      bool                `json:"success"`
	Registration *model.Registration `json:"record"`
}

type RegistrationListResponse struct {
	Success       bool                 `json:"success"`
	Count         int                  `json:"count"`
	Registrations []model.Registration `json:"registrations"`
}

type HasRegistrationsResponse struct {
	Success          bool `json:"success"`
	HasRegistrations bool `json:"has_registrations"`
	Count            int  `json:"count"`
}

type ValidateReferenceResponse struct {
	Valid     bool   `json:"valid"`
	Duplicate bool   `json:"duplicate"`
	Message   string `json:"message,omitempty"`
}

type UPIConfigResponse struct {
	Success bool   `json:"success"`
	PA      string `json:"pa"`
	PN      string `json:"pn"`
	Note    string `json:"note,omitempty"`
}

// NotificationMessage is published to the broker after a registration commits.
type NotificationMessage struct {
	RegistrationID   int64    `json:"registration_id"`
	PaymentReference string   `json:"payment_reference"`
	Name             string   `json:"name"`
	Email            string   `json:"email,omitempty"`
	Events           []string `json:"events"`
	Amount           string   `json:"amount"`
	Credential       []byte   `json:"credential,omitempty"`
}

func errorResponse(c *ginext.Context, status int, code, desc string, fields []string) {
	c.JSON(status, Response{
		Success: false,
		Message: desc,
		Code:    code,
		Fields:  fields,
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	errorResponse(c, http.StatusBadRequest, code, desc, nil)
}

func ValidationFailed(c *ginext.Context, code, desc string, fields []string) {
	errorResponse(c, http.StatusBadRequest, code, desc, fields)
}

func InternalServerError(c *ginext.Context) {
	errorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError, nil)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func RegistrationNotFoundError(c *ginext.Context) {
	errorResponse(c, http.StatusNotFound, RegistrationNotFound, "Registration not found.", nil)
}

func RegistrationDuplicateError(c *ginext.Context) {
	errorResponse(c, http.StatusConflict, RegistrationDuplicate, "Duplicate payment reference number.", nil)
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, data)
}

func SuccessMessage(c *ginext.Context, msg string) {
	c.JSON(http.StatusOK, Response{Success: true, Message: msg})
}
