package bookings

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aoemotors/driveflow/internal/catalog"
	"github.com/aoemotors/driveflow/internal/emailgen"
	"github.com/aoemotors/driveflow/internal/messaging"
	"github.com/aoemotors/driveflow/internal/notify"
	"github.com/aoemotors/driveflow/internal/observability/metrics"
	"github.com/aoemotors/driveflow/pkg/logging"
)

var intakeTracer = otel.Tracer("driveflow.internal.bookings.intake")

// EmailDrafter generates the customer confirmation email.
type EmailDrafter interface {
	Generate(ctx context.Context, req emailgen.DraftRequest) emailgen.Draft
}

// Notifier delivers customer and team notifications.
type Notifier interface {
	NotifyCustomer(ctx context.Context, n notify.BookingNotice) error
	NotifyTeam(ctx context.Context, n notify.BookingNotice) error
}

// SessionStarter begins a WhatsApp conversation for a persisted booking.
type SessionStarter interface {
	Start(ctx context.Context, requestID, phoneOverride string, useTemplate bool) (string, error)
}

// TaskRunner schedules detached background work.
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// IngestResult reports what intake did with a submission.
type IngestResult struct {
	RequestID string
	Duplicate bool
}

// Service orchestrates idempotent booking intake.
type Service struct {
	repo    *Repository
	catalog catalog.Source
	drafter EmailDrafter
	notify  Notifier
	kickoff SessionStarter
	runner  TaskRunner
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// ServiceConfig wires the intake service. Repo is required; everything else
// degrades gracefully when absent.
type ServiceConfig struct {
	Repo    *Repository
	Catalog catalog.Source
	Drafter EmailDrafter
	Notify  Notifier
	Kickoff SessionStarter
	Runner  TaskRunner
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// NewService creates the intake service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Repo == nil {
		panic("bookings: repository required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Service{
		repo:    cfg.Repo,
		catalog: cfg.Catalog,
		drafter: cfg.Drafter,
		notify:  cfg.Notify,
		kickoff: cfg.Kickoff,
		runner:  cfg.Runner,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Ingest processes one intake submission. A request id seen before
// short-circuits to success before any side effect. On first sight the
// booking is enriched (catalog, drafted email, lead score), persisted, both
// emails are sent best-effort, and a WhatsApp kickoff is scheduled when the
// phone normalizes.
func (s *Service) Ingest(ctx context.Context, req IntakeRequest) (*IngestResult, error) {
	ctx, span := intakeTracer.Start(ctx, "bookings.ingest")
	defer span.End()

	requestID := req.RequestID
	if requestID == "" {
		// Server-assigned key: stable identity going forward, but no
		// cross-retry dedup for this client.
		requestID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("driveflow.request_id", requestID))

	exists, err := s.repo.Exists(ctx, requestID)
	if err != nil {
		s.metrics.ObserveBooking("failed")
		return nil, err
	}
	if exists {
		s.metrics.ObserveBooking("duplicate")
		s.logger.Info("duplicate booking, short-circuiting", "request_id", requestID)
		return &IngestResult{RequestID: requestID, Duplicate: true}, nil
	}

	phoneE164 := messaging.NormalizeE164(req.Phone)

	var vehicle *catalog.Vehicle
	if s.catalog != nil {
		v, ok, err := s.catalog.Vehicle(ctx, req.Vehicle)
		if err != nil {
			s.logger.Warn("catalog lookup failed", "error", err, "vehicle", req.Vehicle)
		} else if ok {
			vehicle = v
		}
	}

	draftReq := emailgen.DraftRequest{
		FullName:      req.FullName,
		Vehicle:       req.Vehicle,
		Location:      req.Location,
		PreferredDate: req.PreferredDate,
		PreferredTime: req.PreferredTime,
		TimeFrame:     req.TimeFrame,
	}
	if vehicle != nil {
		draftReq.VehicleType = vehicle.Type
		draftReq.Powertrain = vehicle.Powertrain
		draftReq.Features = vehicle.Features
	}
	var draft emailgen.Draft
	if s.drafter != nil {
		draft = s.drafter.Generate(ctx, draftReq)
	}

	score := ScoreTimeFrame(req.TimeFrame)
	label := LabelForScore(score)

	booking := &BookingRequest{
		RequestID:        requestID,
		FullName:         req.FullName,
		Email:            req.Email,
		PhoneRaw:         req.Phone,
		PhoneE164:        phoneE164,
		Vehicle:          req.Vehicle,
		PreferredDate:    req.PreferredDate,
		PreferredTime:    req.PreferredTime,
		Location:         req.Location,
		TimeFrame:        req.TimeFrame,
		CurrentVehicle:   req.CurrentVehicle,
		LeadScore:        label,
		NumericLeadScore: score,
		EmailSubject:     draft.Subject,
		EmailBody:        draft.Body,
	}
	if err := s.repo.Insert(ctx, booking); err != nil {
		s.metrics.ObserveBooking("failed")
		return nil, fmt.Errorf("bookings: persist intake: %w", err)
	}
	s.metrics.ObserveBooking("created")
	s.logger.Info("booking recorded",
		"request_id", requestID, "vehicle", req.Vehicle, "lead_score", label, "numeric", score)

	s.sendNotifications(ctx, booking, vehicle)

	if phoneE164 != "" && s.kickoff != nil && s.runner != nil {
		s.runner.Go("session_kickoff", func(taskCtx context.Context) error {
			_, err := s.kickoff.Start(taskCtx, requestID, "", false)
			return err
		})
	}

	return &IngestResult{RequestID: requestID}, nil
}

// sendNotifications delivers the customer and team emails. Failures are
// logged but never abort the recorded booking.
func (s *Service) sendNotifications(ctx context.Context, b *BookingRequest, vehicle *catalog.Vehicle) {
	if s.notify == nil {
		return
	}

	notice := notify.BookingNotice{
		RequestID:     b.RequestID,
		FullName:      b.FullName,
		Email:         b.Email,
		Phone:         b.PhoneE164,
		Vehicle:       b.Vehicle,
		Location:      b.Location,
		PreferredDate: b.PreferredDate,
		PreferredTime: b.PreferredTime,
		TimeFrame:     b.TimeFrame,
		LeadLabel:     b.LeadScore,
		LeadScore:     b.NumericLeadScore,
		Subject:       b.EmailSubject,
		Body:          b.EmailBody,
	}
	if vehicle != nil {
		notice.VehicleType = vehicle.Type
		notice.Powertrain = vehicle.Powertrain
	}

	if err := s.notify.NotifyCustomer(ctx, notice); err != nil {
		s.logger.Error("customer confirmation failed", "error", err, "request_id", b.RequestID)
	}
	if err := s.notify.NotifyTeam(ctx, notice); err != nil {
		s.logger.Error("team notification failed", "error", err, "request_id", b.RequestID)
	}
}
