package validator

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-playground/validator"
)

var global *validator.Validate

const (
	ErrInvalidFormat     = "Invalid format"
	ErrFieldRequired     = "Field is required"
	ErrFieldBelowMinLen  = "Field is below minimum length"
	ErrFieldAboveMaxLen  = "Field exceeds maximum length"
	ErrUnknownValidation = "Unknown validation error"
)

const referenceLength = 12

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonTagName)
	_ = v.RegisterValidation("notblank", validateNotBlank)
	_ = v.RegisterValidation("utr", validateReference)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

// IsPaymentReference reports whether s, once trimmed, is exactly twelve ASCII digits.
func IsPaymentReference(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != referenceLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

// fieldName reports "events[0]" as "events".
func fieldName(f string) string {
	if i := strings.IndexByte(f, '['); i > 0 {
		return f[:i]
	}
	return f
}

func validateNotBlank(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() == reflect.String {
		return strings.TrimSpace(f.String()) != ""
	}
	return true
}

func validateReference(fl validator.FieldLevel) bool {
	return IsPaymentReference(fl.Field().String())
}

// FieldError describes one failed field.
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

// Missing reports whether the field was absent or blank rather than malformed.
func (e FieldError) Missing() bool {
	switch e.Tag {
	case "required", "notblank", "min":
		return true
	}
	return false
}

type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Message+": "+fe.Field)
	}
	return strings.Join(parts, "; ")
}

// Fields returns the names of failed fields, optionally only the missing ones.
func (e Errors) Fields(missingOnly bool) []string {
	var fields []string
	for _, fe := range e {
		if missingOnly && !fe.Missing() {
			continue
		}
		fields = append(fields, fe.Field)
	}
	return fields
}

// Validate returns nil or Errors covering every failed field.
func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return nil
	}
	out := make(Errors, 0, len(vErrors))
	for _, ve := range vErrors {
		var msg string
		switch ve.Tag() {
		case "required", "notblank":
			msg = ErrFieldRequired
		case "min":
			msg = ErrFieldBelowMinLen
		case "max":
			msg = ErrFieldAboveMaxLen
		case "email", "utr":
			msg = ErrInvalidFormat
		default:
			msg = ErrUnknownValidation
		}
		out = append(out, FieldError{Field: fieldName(ve.Field()), Tag: ve.Tag(), Message: msg})
	}
	return out
}
