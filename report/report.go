// Package report hands the batch outcome to the hospital. The CSV
// writer here is the built-in sink; spreadsheet styling, archive
// packaging and mail delivery are separate tools consuming the same
// interface.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/healthforce/authflow/workflow"
)

// Reporter consumes a finished batch outcome.
type Reporter interface {
	Deliver(ctx context.Context, outcome *workflow.Outcome) error
}

// CSVReporter writes the finalized records and the failure list to one
// CSV file.
type CSVReporter struct {
	path string
}

var _ Reporter = (*CSVReporter)(nil)

// NewCSVReporter creates a reporter writing to path.
func NewCSVReporter(path string) *CSVReporter {
	return &CSVReporter{path: path}
}

var header = []string{
	"first_name", "last_name", "fiscal_code", "insurance_name",
	"exam_code", "references", "authorization_id", "authorization_state",
	"comment",
}

// Deliver writes every processed record in batch order, then one row
// per failure. Every input patient appears exactly once.
func (r *CSVReporter) Deliver(ctx context.Context, outcome *workflow.Outcome) error {
	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}

	for _, p := range outcome.Processed {
		row := []string{
			p.FirstName, p.LastName, p.FiscalCode, p.InsuranceName,
			p.ExamCode, strings.Join(p.References, " "),
			p.AuthorizationID, p.AuthorizationState.String(),
			p.Comment,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}

	for _, fail := range outcome.Failures {
		row := []string{
			fail.PatientName, "", fail.FiscalCode, "", "", "", "", "failed",
			fail.Reason,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write failure row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush report: %w", err)
	}
	return nil
}
