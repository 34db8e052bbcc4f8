package bookings

import (
	"context"
	"errors"
	"sync"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aoemotors/driveflow/internal/catalog"
	"github.com/aoemotors/driveflow/internal/emailgen"
	"github.com/aoemotors/driveflow/internal/notify"
	"github.com/aoemotors/driveflow/internal/observability/metrics"
	"github.com/aoemotors/driveflow/pkg/logging"
)

type stubDrafter struct {
	calls int
	last  emailgen.DraftRequest
}

func (s *stubDrafter) Generate(ctx context.Context, req emailgen.DraftRequest) emailgen.Draft {
	s.calls++
	s.last = req
	return emailgen.Draft{Subject: "Drafted subject", Body: "Drafted body"}
}

type stubNotifier struct {
	customer []notify.BookingNotice
	team     []notify.BookingNotice
	custErr  error
}

func (s *stubNotifier) NotifyCustomer(ctx context.Context, n notify.BookingNotice) error {
	if s.custErr != nil {
		return s.custErr
	}
	s.customer = append(s.customer, n)
	return nil
}

func (s *stubNotifier) NotifyTeam(ctx context.Context, n notify.BookingNotice) error {
	s.team = append(s.team, n)
	return nil
}

type stubKickoff struct {
	mu       sync.Mutex
	requests []string
}

func (s *stubKickoff) Start(ctx context.Context, requestID, phoneOverride string, useTemplate bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, requestID)
	return "wamid.kickoff", nil
}

// inlineRunner executes tasks synchronously so tests can assert on effects.
type inlineRunner struct {
	names []string
}

func (r *inlineRunner) Go(name string, fn func(ctx context.Context) error) {
	r.names = append(r.names, name)
	_ = fn(context.Background())
}

type serviceFixture struct {
	service *Service
	mock    pgxmock.PgxPoolIface
	drafter *stubDrafter
	notify  *stubNotifier
	kickoff *stubKickoff
	runner  *inlineRunner
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)

	f := &serviceFixture{
		mock:    mock,
		drafter: &stubDrafter{},
		notify:  &stubNotifier{},
		kickoff: &stubKickoff{},
		runner:  &inlineRunner{},
	}
	f.service = NewService(ServiceConfig{
		Repo:    NewRepository(mock),
		Catalog: catalog.NewStatic(),
		Drafter: f.drafter,
		Notify:  f.notify,
		Kickoff: f.kickoff,
		Runner:  f.runner,
		Metrics: metrics.New(prometheus.NewRegistry()),
		Logger:  logging.Default(),
	})
	return f
}

func sampleIntake() IntakeRequest {
	return IntakeRequest{
		RequestID:     "req_1",
		FullName:      "Jane Smith",
		Email:         "jane@example.com",
		Phone:         "+1 (555) 123-4567",
		Vehicle:       "AOE Volt",
		PreferredDate: "2026-03-10",
		PreferredTime: "10:00 AM",
		Location:      "Austin",
		TimeFrame:     "0-3-months",
	}
}

func TestIngestFirstSight(t *testing.T) {
	f := newServiceFixture(t)

	f.mock.ExpectQuery("SELECT EXISTS").
		WithArgs("req_1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectExec("INSERT INTO test_drive_bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	result, err := f.service.Ingest(context.Background(), sampleIntake())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Duplicate {
		t.Error("first sight reported as duplicate")
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("store expectations: %v", err)
	}

	if f.drafter.calls != 1 {
		t.Errorf("expected one draft, got %d", f.drafter.calls)
	}
	// Catalog context enriched the draft.
	if f.drafter.last.Powertrain != "Electric" {
		t.Errorf("expected catalog enrichment, got %+v", f.drafter.last)
	}
	if len(f.notify.customer) != 1 || len(f.notify.team) != 1 {
		t.Errorf("expected customer+team notifications, got %d/%d", len(f.notify.customer), len(f.notify.team))
	}
	if f.notify.customer[0].Subject != "Drafted subject" {
		t.Errorf("draft not carried into notification: %+v", f.notify.customer[0])
	}
	if f.notify.customer[0].LeadLabel != "Hot" || f.notify.customer[0].LeadScore != 10 {
		t.Errorf("unexpected lead qualification: %+v", f.notify.customer[0])
	}
	if len(f.kickoff.requests) != 1 || f.kickoff.requests[0] != "req_1" {
		t.Errorf("expected kickoff for req_1, got %v", f.kickoff.requests)
	}
}

func TestIngestDuplicateShortCircuits(t *testing.T) {
	f := newServiceFixture(t)

	f.mock.ExpectQuery("SELECT EXISTS").
		WithArgs("req_1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	result, err := f.service.Ingest(context.Background(), sampleIntake())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !result.Duplicate {
		t.Error("expected duplicate result")
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected no writes on duplicate: %v", err)
	}
	if f.drafter.calls != 0 {
		t.Error("duplicate must not re-draft content")
	}
	if len(f.notify.customer) != 0 || len(f.notify.team) != 0 {
		t.Error("duplicate must not re-send mail")
	}
	if len(f.kickoff.requests) != 0 {
		t.Error("duplicate must not re-kickoff")
	}
}

func TestIngestManufacturesRequestID(t *testing.T) {
	f := newServiceFixture(t)

	f.mock.ExpectQuery("SELECT EXISTS").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectExec("INSERT INTO test_drive_bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	req := sampleIntake()
	req.RequestID = ""
	result, err := f.service.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.RequestID == "" {
		t.Fatal("expected a manufactured request id")
	}
}

func TestIngestSkipsKickoffWithoutUsablePhone(t *testing.T) {
	f := newServiceFixture(t)

	f.mock.ExpectQuery("SELECT EXISTS").
		WithArgs("req_1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectExec("INSERT INTO test_drive_bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	req := sampleIntake()
	req.Phone = "555-1234"
	if _, err := f.service.Ingest(context.Background(), req); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(f.kickoff.requests) != 0 {
		t.Error("unusable phone must not trigger a kickoff")
	}
	// The booking itself still records.
	if len(f.notify.customer) != 1 {
		t.Error("booking without usable phone still gets the confirmation email")
	}
}

func TestIngestEmailFailureDoesNotAbort(t *testing.T) {
	f := newServiceFixture(t)
	f.notify.custErr = errors.New("smtp down")

	f.mock.ExpectQuery("SELECT EXISTS").
		WithArgs("req_1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectExec("INSERT INTO test_drive_bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	result, err := f.service.Ingest(context.Background(), sampleIntake())
	if err != nil {
		t.Fatalf("email failure must not abort intake: %v", err)
	}
	if result.Duplicate {
		t.Error("unexpected duplicate")
	}
	if len(f.notify.team) != 1 {
		t.Error("team notification should still be attempted")
	}
}

func TestIngestPersistFailureIsFatal(t *testing.T) {
	f := newServiceFixture(t)

	f.mock.ExpectQuery("SELECT EXISTS").
		WithArgs("req_1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectExec("INSERT INTO test_drive_bookings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	if _, err := f.service.Ingest(context.Background(), sampleIntake()); err == nil {
		t.Fatal("expected error when persist fails")
	}
	if len(f.notify.customer) != 0 {
		t.Error("no mail may be sent when the booking did not persist")
	}
	if len(f.kickoff.requests) != 0 {
		t.Error("no kickoff when the booking did not persist")
	}
}
