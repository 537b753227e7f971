package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

type Registration struct {
	ID                 int64           `db:"id" json:"id,omitempty"`
	Name               string          `db:"name" json:"name"`
	RegistrationNumber string          `db:"regno" json:"registration_number"`
	Mobile             string          `db:"mobile,omitempty" json:"mobile,omitempty"`
	Email              string          `db:"email,omitempty" json:"email,omitempty"`
	Course             string          `db:"course" json:"course"`
	Branch             string          `db:"branch" json:"branch"`
	Section            string          `db:"section" json:"section"`
	Year               string          `db:"year" json:"year"`
	Campus             string          `db:"campus" json:"campus"`
	PaymentReference   string          `db:"utr" json:"payment_reference"`
	Amount             decimal.Decimal `db:"amount" json:"amount"`
	Events             []string        `db:"events" json:"events"`
	SubmittedAt        time.Time       `db:"timestamp" json:"submitted_at"`
}

// AuditCopy is the snapshot of a registration taken when it was inserted.
type AuditCopy struct {
	ID             int64     `db:"id" json:"id,omitempty"`
	RegistrationID int64     `db:"registration_id" json:"registration_id"`
	Payload        []byte    `db:"payload" json:"payload"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// RegistrationPatch holds the allow-listed fields of a partial update.
// A nil field is left untouched.
type RegistrationPatch struct {
	Name    *string
	Mobile  *string
	Course  *string
	Branch  *string
	Section *string
	Year    *string
	Campus  *string
	Amount  *decimal.Decimal
	Events  *[]string
}

func (p RegistrationPatch) IsEmpty() bool {
	return p.Name == nil && p.Mobile == nil && p.Course == nil && p.Branch == nil &&
		p.Section == nil && p.Year == nil && p.Campus == nil && p.Amount == nil && p.Events == nil
}

func (p RegistrationPatch) Apply(r *Registration) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Mobile != nil {
		r.Mobile = *p.Mobile
	}
	if p.Course != nil {
		r.Course = *p.Course
	}
	if p.Branch != nil {
		r.Branch = *p.Branch
	}
	if p.Section != nil {
		r.Section = *p.Section
	}
	if p.Year != nil {
		r.Year = *p.Year
	}
	if p.Campus != nil {
		r.Campus = *p.Campus
	}
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.Events != nil {
		r.Events = NormalizeEvents(*p.Events)
	}
}

// NormalizeEvents never returns nil.
func NormalizeEvents(events []string) []string {
	if events == nil {
		return []string{}
	}
	return events
}

// CleanEvents trims each event and drops blank ones, keeping order and
// duplicates. A nil slice stays nil.
func CleanEvents(events []string) []string {
	if events == nil {
		return nil
	}
	out := make([]string, 0, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// SplitEvents turns "a, b ,c" into ["a", "b", "c"]. Empty pieces are dropped.
func SplitEvents(s string) []string {
	events := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			events = append(events, part)
		}
	}
	return events
}

func JoinEvents(events []string) string {
	return strings.Join(events, ", ")
}
