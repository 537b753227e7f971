// Package export renders the registration set for organizers: an editable HTML
// table, an XLSX workbook and a CSV file. All three share one column layout.
package export

import (
	"time"

	"regdesk/internal/model"
)

type column struct {
	Key      string
	Header   string
	ReadOnly bool
	value    func(r *model.Registration) string
}

// columns is the fixed export layout. The surrogate id is never exported.
var columns = []column{
	{Key: "name", Header: "Name", value: func(r *model.Registration) string { return r.Name }},
	{Key: "registration_number", Header: "RegistrationNumber", ReadOnly: true, value: func(r *model.Registration) string { return r.RegistrationNumber }},
	{Key: "mobile", Header: "Mobile", value: func(r *model.Registration) string { return r.Mobile }},
	{Key: "email", Header: "Email", ReadOnly: true, value: func(r *model.Registration) string { return r.Email }},
	{Key: "course", Header: "Course", value: func(r *model.Registration) string { return r.Course }},
	{Key: "branch", Header: "Branch", value: func(r *model.Registration) string { return r.Branch }},
	{Key: "section", Header: "Section", value: func(r *model.Registration) string { return r.Section }},
	{Key: "year", Header: "Year", value: func(r *model.Registration) string { return r.Year }},
	{Key: "campus", Header: "Campus", value: func(r *model.Registration) string { return r.Campus }},
	{Key: "payment_reference", Header: "PaymentReference", ReadOnly: true, value: func(r *model.Registration) string { return r.PaymentReference }},
	{Key: "amount", Header: "Amount", value: func(r *model.Registration) string { return r.Amount.String() }},
	{Key: "events", Header: "Events", value: func(r *model.Registration) string { return model.JoinEvents(r.Events) }},
	{Key: "submitted_at", Header: "Timestamp", ReadOnly: true, value: func(r *model.Registration) string { return r.SubmittedAt.UTC().Format(time.RFC3339) }},
}

// Headers returns the export headers in column order.
func Headers() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.Header
	}
	return out
}

func row(r *model.Registration) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.value(r)
	}
	return out
}
