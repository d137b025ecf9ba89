package report

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/healthforce/authflow/intake"
	"github.com/healthforce/authflow/status"
	"github.com/healthforce/authflow/workflow"
)

func TestDeliverWritesEveryPatientOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")

	outcome := &workflow.Outcome{
		RunID: uuid.New(),
		Processed: []*intake.Patient{
			{
				FirstName:          "Maria",
				LastName:           "Rossi",
				FiscalCode:         "RSSMRA85T10A562S",
				InsuranceName:      "QUAS",
				ExamCode:           "RM0105",
				References:         []string{"XB111111", "XB222222"},
				AuthorizationID:    "PIC-001",
				AuthorizationState: status.StateApproved,
				Comment:            "second referral required / document needs review",
			},
		},
		Failures: []workflow.Failure{
			{
				ID:          uuid.New(),
				PatientName: "Luca Bianchi",
				FiscalCode:  "BNCLCU90A01H501W",
				Reason:      "portal unreachable",
			},
		},
	}

	if err := NewCSVReporter(path).Deliver(context.Background(), outcome); err != nil {
		t.Fatalf("Deliver() failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("report file missing: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("report is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("report has %d rows, want header plus one per patient", len(rows))
	}

	if rows[0][0] != "first_name" || rows[0][len(rows[0])-1] != "comment" {
		t.Errorf("header = %v", rows[0])
	}

	processed := rows[1]
	if processed[0] != "Maria" || processed[1] != "Rossi" {
		t.Errorf("processed row = %v", processed)
	}
	if processed[5] != "XB111111 XB222222" {
		t.Errorf("references column = %q", processed[5])
	}
	if processed[6] != "PIC-001" || processed[7] != "approved" {
		t.Errorf("authorization columns = %q %q", processed[6], processed[7])
	}

	failed := rows[2]
	if failed[0] != "Luca Bianchi" || failed[7] != "failed" {
		t.Errorf("failure row = %v", failed)
	}
	if failed[8] != "portal unreachable" {
		t.Errorf("failure comment = %q", failed[8])
	}
}

func TestDeliverEmptyOutcome(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")

	outcome := &workflow.Outcome{RunID: uuid.New()}
	if err := NewCSVReporter(path).Deliver(context.Background(), outcome); err != nil {
		t.Fatalf("Deliver() failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("report file missing: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("report is not valid CSV: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("empty outcome should still produce the header, got %d rows", len(rows))
	}
}

func TestDeliverUnwritablePath(t *testing.T) {
	reporter := NewCSVReporter(filepath.Join(t.TempDir(), "missing", "report.csv"))
	if err := reporter.Deliver(context.Background(), &workflow.Outcome{}); err == nil {
		t.Error("Deliver() should fail when the report file cannot be created")
	}
}
