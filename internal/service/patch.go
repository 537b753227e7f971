package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"regdesk/internal/model"
)

var immutableFields = map[string]struct{}{
	"payment_reference": {},
	"paymentReference":  {},
	"utr":               {},
	"submitted_at":      {},
	"timestamp":         {},
}

// ParsePatch maps a raw update body onto the allow-listed fields.
// Unknown keys are ignored; immutable keys are rejected.
func ParsePatch(raw map[string]json.RawMessage) (model.RegistrationPatch, error) {
	var patch model.RegistrationPatch

	var immutable []string
	for key := range raw {
		if _, ok := immutableFields[key]; ok {
			immutable = append(immutable, key)
		}
	}
	if len(immutable) > 0 {
		sort.Strings(immutable)
		return patch, &ValidationError{
			Code:    CodeImmutableField,
			Message: "Payment reference and timestamp cannot be changed",
			Fields:  immutable,
		}
	}

	stringFields := []struct {
		key    string
		maxLen int
		dst    **string
	}{
		{"name", 255, &patch.Name},
		{"mobile", 20, &patch.Mobile},
		{"course", 100, &patch.Course},
		{"branch", 100, &patch.Branch},
		{"section", 50, &patch.Section},
		{"year", 20, &patch.Year},
		{"campus", 100, &patch.Campus},
	}
	for _, f := range stringFields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return patch, incorrectField(f.key, "Field '"+f.key+"' must be a string")
		}
		if utf8.RuneCountInString(s) > f.maxLen {
			return patch, incorrectField(f.key, fmt.Sprintf("Field '%s' must be at most %d characters", f.key, f.maxLen))
		}
		*f.dst = &s
	}
	if patch.Name != nil && *patch.Name == "" {
		return patch, incorrectField("name", "Field 'name' cannot be empty")
	}

	if v, ok := raw["amount"]; ok {
		var amount decimal.Decimal
		if err := json.Unmarshal(v, &amount); err != nil {
			return patch, incorrectField("amount", "Field 'amount' must be a number")
		}
		if verr := checkAmount(amount); verr != nil {
			return patch, verr
		}
		patch.Amount = &amount
	}

	if v, ok := raw["events"]; ok {
		events, err := parseEvents(v)
		if err != nil {
			return patch, incorrectField("events", "Field 'events' must be a list or a comma separated string")
		}
		if len(events) == 0 {
			return patch, incorrectField("events", "Field 'events' must list at least one event")
		}
		patch.Events = &events
	}

	if patch.IsEmpty() {
		return patch, &ValidationError{Code: CodeNoUpdateFields, Message: "No updateable fields provided."}
	}
	return patch, nil
}

// parseEvents accepts ["a","b"] with blank entries dropped, or "a, b" as a
// delimited string.
func parseEvents(v json.RawMessage) ([]string, error) {
	v = bytes.TrimSpace(v)
	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, err
		}
		return model.SplitEvents(s), nil
	}
	var events []string
	if err := json.Unmarshal(v, &events); err != nil {
		return nil, err
	}
	return model.NormalizeEvents(model.CleanEvents(events)), nil
}
