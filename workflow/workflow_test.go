package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthforce/authflow/intake"
	"github.com/healthforce/authflow/rules"
	"github.com/healthforce/authflow/status"
)

// fakeSession scripts reference states per reference code and records
// every portal call in order.
type fakeSession struct {
	statuses map[string]string
	authIDs  map[string]string

	calls      []string
	loginErr   error
	statusErr  error
	acceptErr  error
	closeCount int
}

func (s *fakeSession) Login(ctx context.Context) error {
	s.calls = append(s.calls, "login")
	return s.loginErr
}

func (s *fakeSession) FetchReferenceStatus(ctx context.Context, reference string) (string, error) {
	s.calls = append(s.calls, "status:"+reference)
	if s.statusErr != nil {
		return "", s.statusErr
	}
	return s.statuses[reference], nil
}

func (s *fakeSession) FetchAuthorizationID(ctx context.Context, reference string) (string, error) {
	s.calls = append(s.calls, "authid:"+reference)
	id, ok := s.authIDs[reference]
	if !ok {
		return "", fmt.Errorf("no authorization for %s", reference)
	}
	return id, nil
}

func (s *fakeSession) AcceptRequest(ctx context.Context, reference, examCode, serviceCategory string) error {
	s.calls = append(s.calls, "accept:"+reference)
	return s.acceptErr
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.closeCount++
	return nil
}

type fakeFetcher struct {
	err error
}

func (f *fakeFetcher) FetchDocument(ctx context.Context, authorizationID string) (DocumentHandle, error) {
	if f.err != nil {
		return DocumentHandle{}, f.err
	}
	return DocumentHandle{AuthorizationID: authorizationID, Path: authorizationID + ".pdf"}, nil
}

type fakeValidator struct {
	codes []string
}

func (v *fakeValidator) Validate(ctx context.Context, doc DocumentHandle, insurerName, fiscalCode string) ([]string, error) {
	return v.codes, nil
}

func testEngine(t *testing.T) *rules.Engine {
	t.Helper()
	set, err := rules.NewSet([]rules.Phase{
		{Key: PhaseDealBreakers, Rules: []rules.Rule{
			{Name: "minor", Condition: "age < 18", Actions: []string{"minor"}},
			{Name: "wrong insurance", Condition: `insurance_name == "EXCLUDED"`, Actions: []string{"insurance not accepted"}},
		}},
		{Key: PhasePatientData, Rules: []rules.Rule{
			{Name: "second reference", Condition: "second_reference", Actions: []string{"second referral required"}},
		}},
		{Key: PhasePDFAnalysis, Rules: []rules.Rule{
			{Name: "document problems", Condition: "size(error_codes) > 0", Actions: []string{"document needs review"}},
		}},
		{Key: PhaseWebPortal, Rules: []rules.Rule{
			{Name: "no authorization", Condition: `authorization_id == ""`, Actions: []string{"no authorization issued"}},
		}},
	})
	if err != nil {
		t.Fatalf("NewSet() failed: %v", err)
	}

	engine, err := rules.NewEngine(set, FactFields())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	return engine
}

func testResolver(t *testing.T) *status.Resolver {
	t.Helper()
	resolver, err := status.NewResolver(status.DefaultMarkers())
	if err != nil {
		t.Fatalf("NewResolver() failed: %v", err)
	}
	return resolver
}

func testWorkflow(t *testing.T, session *fakeSession, validator DocumentValidator) *Workflow {
	t.Helper()
	if validator == nil {
		validator = &fakeValidator{}
	}
	return NewWorkflow(testEngine(t), session, testResolver(t), &fakeFetcher{}, validator, zerolog.Nop())
}

func adultPatient(refs ...string) *intake.Patient {
	return &intake.Patient{
		FirstName:     "Maria",
		LastName:      "Rossi",
		FiscalCode:    "RSSMRA85T10A562S",
		BirthDate:     parseDate("1985-12-10"),
		InsuranceName: "QUAS",
		ExamCode:      "RM0105",
		References:    refs,
	}
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDealBreakerSkipsPortal(t *testing.T) {
	session := &fakeSession{}
	w := testWorkflow(t, session, nil)

	p := adultPatient("XB123456")
	p.BirthDate = parseDate("2015-01-01")
	p.AuthorizationID = "stale"

	if err := w.ProcessPatient(context.Background(), p); err != nil {
		t.Fatalf("ProcessPatient() failed: %v", err)
	}

	if len(session.calls) != 0 {
		t.Errorf("portal was contacted for a disqualified patient: %v", session.calls)
	}
	if p.AuthorizationID != "" {
		t.Errorf("AuthorizationID = %q, want cleared", p.AuthorizationID)
	}
	if p.Comment != "minor" {
		t.Errorf("Comment = %q, want minor", p.Comment)
	}
}

func TestAwaitingApprovalAcceptsBeforeLookup(t *testing.T) {
	session := &fakeSession{
		statuses: map[string]string{"XB123456": "In attesa di istruzione"},
		authIDs:  map[string]string{"XB123456": "PIC-001"},
	}
	w := testWorkflow(t, session, nil)

	p := adultPatient("XB123456")
	if err := w.ProcessPatient(context.Background(), p); err != nil {
		t.Fatalf("ProcessPatient() failed: %v", err)
	}

	want := []string{"status:XB123456", "accept:XB123456", "authid:XB123456"}
	if len(session.calls) != len(want) {
		t.Fatalf("portal calls = %v, want %v", session.calls, want)
	}
	for i := range want {
		if session.calls[i] != want[i] {
			t.Fatalf("portal calls = %v, want %v", session.calls, want)
		}
	}
	if p.AuthorizationID != "PIC-001" {
		t.Errorf("AuthorizationID = %q, want PIC-001", p.AuthorizationID)
	}
	if p.AuthorizationState != status.StateAwaitingApproval {
		t.Errorf("AuthorizationState = %v", p.AuthorizationState)
	}
}

func TestApprovedSkipsAccept(t *testing.T) {
	session := &fakeSession{
		statuses: map[string]string{"XB123456": "Autorizzazione emessa"},
		authIDs:  map[string]string{"XB123456": "PIC-001"},
	}
	w := testWorkflow(t, session, nil)

	p := adultPatient("XB123456")
	if err := w.ProcessPatient(context.Background(), p); err != nil {
		t.Fatalf("ProcessPatient() failed: %v", err)
	}

	for _, call := range session.calls {
		if call == "accept:XB123456" {
			t.Error("accept-request must not run for an already approved reference")
		}
	}
	if p.AuthorizationID != "PIC-001" {
		t.Errorf("AuthorizationID = %q, want PIC-001", p.AuthorizationID)
	}
}

func TestNonActionableClearsAuthorization(t *testing.T) {
	session := &fakeSession{
		statuses: map[string]string{"XB123456": "Richiesta rifiutata"},
	}
	w := testWorkflow(t, session, nil)

	p := adultPatient("XB123456")
	if err := w.ProcessPatient(context.Background(), p); err != nil {
		t.Fatalf("ProcessPatient() failed: %v", err)
	}

	if p.AuthorizationID != "" {
		t.Errorf("AuthorizationID = %q, want empty", p.AuthorizationID)
	}
	if p.AuthorizationState != status.StateRejected {
		t.Errorf("AuthorizationState = %v, want rejected", p.AuthorizationState)
	}
	if p.Comment != "no authorization issued" {
		t.Errorf("Comment = %q", p.Comment)
	}
}

func TestLastReferenceWins(t *testing.T) {
	session := &fakeSession{
		statuses: map[string]string{
			"XB111111": "Autorizzazione emessa",
			"XB222222": "Richiesta rifiutata",
		},
		authIDs: map[string]string{"XB111111": "PIC-001"},
	}
	w := testWorkflow(t, session, nil)

	p := adultPatient("XB111111", "XB222222")
	if err := w.ProcessPatient(context.Background(), p); err != nil {
		t.Fatalf("ProcessPatient() failed: %v", err)
	}

	if p.AuthorizationID != "" {
		t.Errorf("AuthorizationID = %q, want the last reference's empty result", p.AuthorizationID)
	}
	if p.AuthorizationState != status.StateRejected {
		t.Errorf("AuthorizationState = %v, want the last reference's state", p.AuthorizationState)
	}
}

func TestCommentAccumulatesAcrossPhases(t *testing.T) {
	session := &fakeSession{
		statuses: map[string]string{"XB123456": "In attesa di istruzione"},
		authIDs:  map[string]string{"XB123456": "PIC-001"},
	}
	validator := &fakeValidator{codes: []string{"fiscal_code_absent"}}
	w := testWorkflow(t, session, validator)

	p := adultPatient("XB123456")
	p.SecondReference = true

	if err := w.ProcessPatient(context.Background(), p); err != nil {
		t.Fatalf("ProcessPatient() failed: %v", err)
	}

	want := "second referral required" + rules.Delimiter + "document needs review"
	if p.Comment != want {
		t.Errorf("Comment = %q, want %q", p.Comment, want)
	}
}

func TestPortalErrorPropagates(t *testing.T) {
	boom := errors.New("portal unreachable")
	session := &fakeSession{statusErr: boom}
	w := testWorkflow(t, session, nil)

	p := adultPatient("XB123456")
	err := w.ProcessPatient(context.Background(), p)
	if !errors.Is(err, boom) {
		t.Errorf("ProcessPatient() error = %v, want the portal error", err)
	}
	if p.Comment != "" {
		t.Errorf("Comment = %q, want unset on failure", p.Comment)
	}
}
