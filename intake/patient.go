// Package intake turns the pre-processed referral spreadsheet rows into
// patient records and exposes them as rule-engine contexts.
package intake

import (
	"time"

	"github.com/healthforce/authflow/status"
)

// Patient is one intake row plus everything the workflow accumulates
// for it. Identity fields are opaque strings and are never interpreted.
// A record is mutated in place through the workflow phases and becomes
// immutable once handed to reporting.
type Patient struct {
	FirstName       string
	LastName        string
	FiscalCode      string
	BirthDate       time.Time
	Age             int // derived at processing time, not persisted
	InsuranceName   string
	ExamCode        string
	ServiceCategory string

	// References holds the patient's referral reference codes (PNRs)
	// in intake order.
	References []string

	// SecondReference marks exams the upstream flattener flagged as
	// needing a second referral. Only the rule phases read it.
	SecondReference bool

	// AuthorizationID is the identifier issued by the insurer (PIC).
	// Empty means none. Each processed reference overwrites it; only
	// the last reference's outcome is retained.
	AuthorizationID string

	// AuthorizationState is the resolved state of the most recently
	// processed reference.
	AuthorizationState status.State

	// Comment is the finalized audit trail, set exactly once when the
	// workflow finishes with this patient.
	Comment string
}

// Name returns the patient's display name for logs and failure entries.
func (p *Patient) Name() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// DeriveAge computes the age in whole years at now and stores it on the
// record.
func (p *Patient) DeriveAge(now time.Time) {
	years := now.Year() - p.BirthDate.Year()
	anniversary := p.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	p.Age = years
}

// Facts exposes the record as a rule-engine context. The returned map
// is rebuilt on every call, so rule evaluation can never alias into the
// record.
func (p *Patient) Facts() map[string]any {
	return map[string]any{
		"first_name":       p.FirstName,
		"last_name":        p.LastName,
		"fiscal_code":      p.FiscalCode,
		"birth_date":       p.BirthDate,
		"age":              p.Age,
		"insurance_name":   p.InsuranceName,
		"exam_code":        p.ExamCode,
		"service_category": p.ServiceCategory,
		"references":       p.References,
		"second_reference": p.SecondReference,
		"reference_status": p.AuthorizationState.String(),
		"authorization_id": p.AuthorizationID,
	}
}

// FactFields is the universe of context field names patient-facing rule
// phases may reference. The engine declares these at startup so a rule
// naming anything else fails before the batch runs.
func FactFields() []string {
	return []string{
		"first_name",
		"last_name",
		"fiscal_code",
		"birth_date",
		"age",
		"insurance_name",
		"exam_code",
		"service_category",
		"references",
		"second_reference",
		"reference_status",
		"authorization_id",
	}
}
