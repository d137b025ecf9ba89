package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthforce/authflow/intake"
	"github.com/healthforce/authflow/portal"
)

// Failure records one patient whose processing failed irrecoverably.
type Failure struct {
	ID          uuid.UUID
	PatientName string
	FiscalCode  string
	Reason      string
}

// Outcome is the result of one batch run: every finalized record plus
// an explicit failure entry for every patient that did not finish. No
// patient silently disappears.
type Outcome struct {
	RunID     uuid.UUID
	Processed []*intake.Patient
	Failures  []Failure
}

// Processor iterates the patient set strictly in input order, one at a
// time, over a single shared portal session. One patient's failure
// never drops or blocks the others.
type Processor struct {
	workflow *Workflow
	session  portal.Session
	log      zerolog.Logger
}

// NewProcessor wires the batch loop around an already-constructed
// workflow and its session.
func NewProcessor(w *Workflow, session portal.Session, log zerolog.Logger) *Processor {
	return &Processor{workflow: w, session: session, log: log}
}

// Run logs in once, processes every patient, and releases the session
// on every exit path. A login failure aborts the batch before any
// patient is touched; afterwards every per-patient error is contained
// in the failure list.
//
// Cancellation is honored only between patients: interrupting a
// reference mid-flight would leave the portal's server-side state
// inconsistent.
func (pr *Processor) Run(ctx context.Context, patients []*intake.Patient) (*Outcome, error) {
	defer func() {
		if err := pr.session.Close(context.WithoutCancel(ctx)); err != nil {
			pr.log.Warn().Err(err).Msg("failed to close portal session")
		}
	}()

	if err := pr.session.Login(ctx); err != nil {
		return nil, fmt.Errorf("portal login failed: %w", err)
	}

	outcome := &Outcome{RunID: uuid.New()}
	for i, p := range patients {
		if err := ctx.Err(); err != nil {
			// Batch interrupted: the remaining patients become
			// explicit failure entries rather than vanishing.
			for _, rest := range patients[i:] {
				outcome.Failures = append(outcome.Failures, newFailure(rest, err))
			}
			break
		}

		pr.log.Info().Str("patient", p.Name()).Msg("processing patient")
		if err := pr.processOne(ctx, p); err != nil {
			pr.log.Error().Str("patient", p.Name()).Err(err).Msg("patient failed")
			outcome.Failures = append(outcome.Failures, newFailure(p, err))
			continue
		}
		outcome.Processed = append(outcome.Processed, p)
	}

	pr.log.Info().
		Str("run_id", outcome.RunID.String()).
		Int("processed", len(outcome.Processed)).
		Int("failed", len(outcome.Failures)).
		Msg("batch finished")

	return outcome, nil
}

// processOne isolates a single patient, converting panics from
// collaborator code into ordinary failures so the batch keeps moving.
func (pr *Processor) processOne(ctx context.Context, p *intake.Patient) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing patient: %v", r)
		}
	}()

	return pr.workflow.ProcessPatient(ctx, p)
}

func newFailure(p *intake.Patient, err error) Failure {
	return Failure{
		ID:          uuid.New(),
		PatientName: p.Name(),
		FiscalCode:  p.FiscalCode,
		Reason:      err.Error(),
	}
}
