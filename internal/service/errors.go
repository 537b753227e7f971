package service

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrDuplicate        = errors.New("payment reference already registered")
	ErrNotFound         = errors.New("registration not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

const (
	CodeFieldsMissing    = "FIELDS_MISSING"
	CodeReferenceInvalid = "REFERENCE_INVALID"
	CodeFieldIncorrect   = "FIELD_INCORRECT"
	CodeImmutableField   = "FIELD_IMMUTABLE"
	CodeNoUpdateFields   = "NO_UPDATEABLE_FIELDS"
)

// ValidationError is returned before any store contact.
type ValidationError struct {
	Code    string
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Fields, ", ")
}

func missingFields(fields []string) *ValidationError {
	return &ValidationError{
		Code:    CodeFieldsMissing,
		Message: "Missing required fields: " + strings.Join(fields, ", "),
		Fields:  fields,
	}
}

func incorrectField(field, msg string) *ValidationError {
	return &ValidationError{Code: CodeFieldIncorrect, Message: msg, Fields: []string{field}}
}

// Amounts are stored as NUMERIC(10,2).
var maxAmount = decimal.New(1, 8)

func checkAmount(amount decimal.Decimal) *ValidationError {
	switch {
	case !amount.IsPositive():
		return incorrectField("amount", "Field 'amount' must be positive")
	case !amount.Equal(amount.Round(2)):
		return incorrectField("amount", "Field 'amount' must have at most 2 decimal places")
	case amount.GreaterThanOrEqual(maxAmount):
		return incorrectField("amount", "Field 'amount' must be below 100000000")
	}
	return nil
}

var errInvalidData = &ValidationError{
	Code:    CodeFieldIncorrect,
	Message: "One or more fields do not fit the allowed size or format",
}
