package bookings

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the repository uses, small enough
// for pgxmock to stand in during tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository stores test-drive bookings in Postgres.
type Repository struct {
	pool PgxPool
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool PgxPool) *Repository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &Repository{pool: pool}
}

// Exists reports whether a booking with the request id is already persisted.
func (r *Repository) Exists(ctx context.Context, requestID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM test_drive_bookings WHERE request_id = $1)`
	if err := r.pool.QueryRow(ctx, query, requestID).Scan(&exists); err != nil {
		return false, fmt.Errorf("bookings: existence check: %w", err)
	}
	return exists, nil
}

// Insert persists the booking. A concurrent duplicate of the same request id
// is a no-op, keeping intake idempotent even under racing retries.
func (r *Repository) Insert(ctx context.Context, b *BookingRequest) error {
	query := `
		INSERT INTO test_drive_bookings (
			request_id, full_name, email, phone_raw, phone_e164,
			vehicle, preferred_date, preferred_time, location,
			time_frame, current_vehicle, lead_score, numeric_lead_score,
			email_subject, email_body
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''),
			$6, $7, $8, $9,
			NULLIF($10, ''), NULLIF($11, ''), $12, $13,
			NULLIF($14, ''), NULLIF($15, ''))
		ON CONFLICT (request_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		b.RequestID, b.FullName, b.Email, b.PhoneRaw, b.PhoneE164,
		b.Vehicle, b.PreferredDate, b.PreferredTime, b.Location,
		b.TimeFrame, b.CurrentVehicle, b.LeadScore, b.NumericLeadScore,
		b.EmailSubject, b.EmailBody,
	)
	if err != nil {
		return fmt.Errorf("bookings: insert: %w", err)
	}
	return nil
}

// Get loads a booking by request id.
func (r *Repository) Get(ctx context.Context, requestID string) (*BookingRequest, error) {
	query := `
		SELECT request_id, full_name, email,
			COALESCE(phone_raw, ''), COALESCE(phone_e164, ''),
			vehicle, preferred_date, preferred_time, location,
			COALESCE(time_frame, ''), COALESCE(current_vehicle, ''),
			COALESCE(lead_score, ''), numeric_lead_score,
			COALESCE(action_status, ''), COALESCE(sales_notes, ''),
			COALESCE(email_subject, ''), COALESCE(email_body, ''),
			created_at
		FROM test_drive_bookings
		WHERE request_id = $1
	`
	var b BookingRequest
	err := r.pool.QueryRow(ctx, query, requestID).Scan(
		&b.RequestID, &b.FullName, &b.Email,
		&b.PhoneRaw, &b.PhoneE164,
		&b.Vehicle, &b.PreferredDate, &b.PreferredTime, &b.Location,
		&b.TimeFrame, &b.CurrentVehicle,
		&b.LeadScore, &b.NumericLeadScore,
		&b.ActionStatus, &b.SalesNotes,
		&b.EmailSubject, &b.EmailBody,
		&b.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("bookings: select: %w", err)
	}
	return &b, nil
}

// KickoffContact resolves the contact details used to start a WhatsApp
// session for the booking.
func (r *Repository) KickoffContact(ctx context.Context, requestID string) (string, string, string, error) {
	query := `
		SELECT full_name, vehicle, COALESCE(phone_e164, '')
		FROM test_drive_bookings
		WHERE request_id = $1
	`
	var fullName, vehicle, phone string
	if err := r.pool.QueryRow(ctx, query, requestID).Scan(&fullName, &vehicle, &phone); err != nil {
		if err == pgx.ErrNoRows {
			return "", "", "", ErrBookingNotFound
		}
		return "", "", "", fmt.Errorf("bookings: kickoff contact: %w", err)
	}
	return fullName, vehicle, phone, nil
}

// Update applies only the fields present in req. When a numeric score comes
// without an explicit label, the label is derived from the fixed thresholds.
func (r *Repository) Update(ctx context.Context, req *UpdateRequest) error {
	if req.Empty() {
		return ErrEmptyUpdate
	}

	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if req.ActionStatus != nil {
		add("action_status", *req.ActionStatus)
	}
	if req.SalesNotes != nil {
		add("sales_notes", *req.SalesNotes)
	}
	if req.NumericLeadScore != nil {
		add("numeric_lead_score", *req.NumericLeadScore)
	}
	switch {
	case req.LeadScore != nil:
		add("lead_score", *req.LeadScore)
	case req.NumericLeadScore != nil:
		add("lead_score", LabelForScore(*req.NumericLeadScore))
	}
	if req.FollowupDate != nil {
		add("followup_date", req.FollowupDate.UTC())
	}

	args = append(args, req.RequestID)
	query := fmt.Sprintf(
		"UPDATE test_drive_bookings SET %s WHERE request_id = $%d",
		strings.Join(sets, ", "), len(args),
	)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("bookings: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}
