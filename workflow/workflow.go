// Package workflow drives each patient through the authorization
// pipeline: deal-breaker gate, per-reference portal loop, audit trail
// accumulation, and batch-level failure isolation.
package workflow

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthforce/authflow/intake"
	"github.com/healthforce/authflow/portal"
	"github.com/healthforce/authflow/rules"
	"github.com/healthforce/authflow/status"
)

// Rule phases the workflow executes. All four must exist in the loaded
// rule set; the processor checks this before the first patient.
const (
	PhaseDealBreakers = "deal_breakers"
	PhasePatientData  = "patient_data"
	PhasePDFAnalysis  = "pdf_analysis"
	PhaseWebPortal    = "webportal"
)

// RequiredPhases lists every phase the workflow will request.
func RequiredPhases() []string {
	return []string{PhaseDealBreakers, PhasePatientData, PhasePDFAnalysis, PhaseWebPortal}
}

// FactFields is the full context field universe for the rule engine:
// the patient record fields plus the pdf_analysis phase's error codes.
func FactFields() []string {
	return append(intake.FactFields(), "error_codes")
}

// Workflow processes one patient at a time against a shared portal
// session. It is not safe for concurrent use; the portal session keeps
// navigation state server-side.
type Workflow struct {
	engine    *rules.Engine
	session   portal.Session
	resolver  *status.Resolver
	fetcher   DocumentFetcher
	validator DocumentValidator
	log       zerolog.Logger
	now       func() time.Time
}

// NewWorkflow wires the per-patient state machine.
func NewWorkflow(
	engine *rules.Engine,
	session portal.Session,
	resolver *status.Resolver,
	fetcher DocumentFetcher,
	validator DocumentValidator,
	log zerolog.Logger,
) *Workflow {
	return &Workflow{
		engine:    engine,
		session:   session,
		resolver:  resolver,
		fetcher:   fetcher,
		validator: validator,
		log:       log,
		now:       time.Now,
	}
}

// ProcessPatient runs the full state machine for one patient, mutating
// the record in place. On a nil return the record is finalized: its
// Comment holds the joined audit trail. A non-nil return means the
// patient failed irrecoverably and belongs on the batch failure list.
func (w *Workflow) ProcessPatient(ctx context.Context, p *intake.Patient) error {
	p.DeriveAge(w.now())
	trail := &rules.Trail{}

	// Deal-breaker gate. A single match disqualifies the patient
	// outright: no reference is ever contacted.
	res, err := w.engine.Execute(PhaseDealBreakers, p.Facts(), trail)
	if err != nil {
		return err
	}
	if res.Matched > 0 {
		p.AuthorizationID = ""
		p.Comment = trail.Join()
		w.log.Info().Str("patient", p.Name()).Int("matched", res.Matched).
			Msg("patient disqualified by deal-breaker rules")
		return nil
	}

	for _, ref := range p.References {
		w.log.Info().Str("patient", p.Name()).Str("reference", ref).Msg("processing reference")
		if err := w.processReference(ctx, p, ref, trail); err != nil {
			return err
		}
	}

	p.Comment = trail.Join()
	return nil
}

// processReference runs one iteration of the reference loop. The
// record's authorization id and state are single-slot: each reference
// overwrites whatever an earlier one stored.
func (w *Workflow) processReference(ctx context.Context, p *intake.Patient, ref string, trail *rules.Trail) error {
	raw, err := w.session.FetchReferenceStatus(ctx, ref)
	if err != nil {
		return err
	}
	p.AuthorizationState = w.resolver.Resolve(raw)

	if p.AuthorizationState.Actionable() {
		if p.AuthorizationState == status.StateAwaitingApproval {
			if err := w.session.AcceptRequest(ctx, ref, p.ExamCode, p.ServiceCategory); err != nil {
				return err
			}
		}

		pic, err := w.session.FetchAuthorizationID(ctx, ref)
		if err != nil {
			return err
		}
		p.AuthorizationID = pic

		doc, err := w.fetcher.FetchDocument(ctx, pic)
		if err != nil {
			return err
		}
		codes, err := w.validator.Validate(ctx, doc, p.InsuranceName, p.FiscalCode)
		if err != nil {
			return err
		}

		if _, err := w.engine.Execute(PhasePatientData, p.Facts(), trail); err != nil {
			return err
		}
		if _, err := w.engine.Execute(PhasePDFAnalysis, map[string]any{"error_codes": codes}, trail); err != nil {
			return err
		}
	} else {
		p.AuthorizationID = ""
	}

	_, err = w.engine.Execute(PhaseWebPortal, p.Facts(), trail)
	return err
}
