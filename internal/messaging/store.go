package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultBindingTTL is the horizon after which a binding is treated as absent.
const DefaultBindingTTL = 48 * time.Hour

const (
	summaryMaxChars  = 2000
	truncationMarker = "…"
)

// Binding markers recording which send path produced the outbound prompt.
const (
	BoundViaButton   = "button"
	BoundViaTemplate = "template"
)

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversation bindings, the outbound-send log, and the
// message audit log in Postgres.
type Store struct {
	pool       PgxPool
	bindingTTL time.Duration
	now        func() time.Time
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{
		pool:       pool,
		bindingTTL: DefaultBindingTTL,
		now:        time.Now,
	}
}

// SetBindingTTL overrides the binding expiry horizon.
func (s *Store) SetBindingTTL(ttl time.Duration) {
	if ttl > 0 {
		s.bindingTTL = ttl
	}
}

// SetClock injects a clock for tests.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// BindingRecord maps a WhatsApp identity to an in-flight booking request.
type BindingRecord struct {
	WAID      string
	RequestID string
	Active    bool
	BoundVia  string
	BoundAt   time.Time
	ExpiresAt time.Time
}

// UpsertBinding replaces any existing binding for waID with a fresh active
// one. Last-writer-wins: a phone number represents one in-flight
// conversation at a time.
func (s *Store) UpsertBinding(ctx context.Context, q Querier, waID, requestID, boundVia string) error {
	if q == nil {
		q = s.pool
	}
	boundAt := s.now()
	query := `
		INSERT INTO conversation_bindings (wa_id, request_id, active, bound_via, bound_at, expires_at)
		VALUES ($1, $2, TRUE, $3, $4, $5)
		ON CONFLICT (wa_id) DO UPDATE
		SET request_id = EXCLUDED.request_id,
			active = TRUE,
			bound_via = EXCLUDED.bound_via,
			bound_at = EXCLUDED.bound_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err := q.Exec(ctx, query, waID, requestID, boundVia, boundAt, boundAt.Add(s.bindingTTL))
	if err != nil {
		return fmt.Errorf("messaging: upsert binding: %w", err)
	}
	return nil
}

// FindActiveBinding returns the binding for waID only while it is active and
// unexpired. An expired or inactive row is treated identically to no binding.
func (s *Store) FindActiveBinding(ctx context.Context, waID string) (*BindingRecord, error) {
	query := `
		SELECT wa_id, request_id, active, bound_via, bound_at, expires_at
		FROM conversation_bindings
		WHERE wa_id = $1
	`
	var rec BindingRecord
	err := s.pool.QueryRow(ctx, query, waID).Scan(
		&rec.WAID, &rec.RequestID, &rec.Active, &rec.BoundVia, &rec.BoundAt, &rec.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("messaging: find binding: %w", err)
	}
	if !rec.Active || !rec.ExpiresAt.After(s.now()) {
		return nil, nil
	}
	return &rec, nil
}

// OutboundRecord resolves a later button reply's context reference back to
// the booking the prompt was sent for. Write-once.
type OutboundRecord struct {
	MessageID string
	WAID      string
	RequestID string
	Marker    string
}

func (s *Store) InsertOutbound(ctx context.Context, q Querier, rec OutboundRecord) error {
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO outbound_log (message_id, wa_id, request_id, marker)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id) DO NOTHING
	`
	if _, err := q.Exec(ctx, query, rec.MessageID, rec.WAID, rec.RequestID, rec.Marker); err != nil {
		return fmt.Errorf("messaging: insert outbound: %w", err)
	}
	return nil
}

// ResolveOutbound maps a replied-to message id to its outbound record.
// Returns nil without error when the reference is unknown.
func (s *Store) ResolveOutbound(ctx context.Context, messageID string) (*OutboundRecord, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, nil
	}
	query := `
		SELECT message_id, wa_id, request_id, marker
		FROM outbound_log
		WHERE message_id = $1
	`
	var rec OutboundRecord
	err := s.pool.QueryRow(ctx, query, messageID).Scan(&rec.MessageID, &rec.WAID, &rec.RequestID, &rec.Marker)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("messaging: resolve outbound: %w", err)
	}
	return &rec, nil
}

// MessageLogRecord is one row of the append-only audit trail. RequestID may
// be empty when no binding maps the sender yet; the row is stored with a
// null request reference for later reconciliation.
type MessageLogRecord struct {
	MessageID string
	RequestID string
	WAID      string
	Direction string
	Body      string
	Payload   []byte
}

func (s *Store) AppendMessage(ctx context.Context, q Querier, rec MessageLogRecord) error {
	if q == nil {
		q = s.pool
	}
	if rec.Payload == nil {
		rec.Payload = []byte("{}")
	}
	query := `
		INSERT INTO message_log (message_id, request_id, wa_id, direction, body_text, payload)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
	`
	if _, err := q.Exec(ctx, query, rec.MessageID, rec.RequestID, rec.WAID, rec.Direction, rec.Body, rec.Payload); err != nil {
		return fmt.Errorf("messaging: append message: %w", err)
	}
	return nil
}

// AppendSummary concatenates delta onto the booking's rolling conversation
// summary, keeping only the trailing portion past the size bound. This is a
// lossy advisory context window, not a ledger; concurrent appends may lose a
// delta.
func (s *Store) AppendSummary(ctx context.Context, requestID, delta string) error {
	delta = strings.TrimSpace(delta)
	if delta == "" {
		return nil
	}
	var existing string
	query := `
		SELECT COALESCE(conversation_summary, '')
		FROM test_drive_bookings
		WHERE request_id = $1
	`
	if err := s.pool.QueryRow(ctx, query, requestID).Scan(&existing); err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("messaging: append summary: unknown request %s", requestID)
		}
		return fmt.Errorf("messaging: read summary: %w", err)
	}

	combined := appendBounded(existing, delta)

	update := `
		UPDATE test_drive_bookings
		SET conversation_summary = $2, summary_updated_at = $3
		WHERE request_id = $1
	`
	if _, err := s.pool.Exec(ctx, update, requestID, combined, s.now()); err != nil {
		return fmt.Errorf("messaging: write summary: %w", err)
	}
	return nil
}

func appendBounded(existing, delta string) string {
	combined := delta
	if existing != "" {
		combined = existing + " " + delta
	}
	runes := []rune(combined)
	if len(runes) <= summaryMaxChars {
		return combined
	}
	keep := summaryMaxChars - len([]rune(truncationMarker))
	return truncationMarker + string(runes[len(runes)-keep:])
}
