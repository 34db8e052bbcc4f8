package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aoemotors/driveflow/internal/channels/whatsapp"
	"github.com/aoemotors/driveflow/internal/observability/metrics"
	"github.com/aoemotors/driveflow/pkg/logging"
)

var (
	// ErrNoPhone is returned when the booking has no usable phone number.
	ErrNoPhone = errors.New("messaging: booking has no usable phone number")

	// ErrBookingNotFound is returned when the request id resolves to nothing.
	ErrBookingNotFound = errors.New("messaging: booking not found")
)

// BookingDirectory resolves contact details from a stored booking.
type BookingDirectory interface {
	KickoffContact(ctx context.Context, requestID string) (fullName, vehicle, phoneE164 string, err error)
}

// Kickoff initiates a bound conversation by sending a bind-prompt message to
// the phone number resolved from a booking record.
type Kickoff struct {
	sender       whatsapp.Sender
	store        *Store
	bookings     BookingDirectory
	templateName string
	metrics      *metrics.Metrics
	logger       *logging.Logger
}

// NewKickoff wires the session kickoff service.
func NewKickoff(sender whatsapp.Sender, store *Store, bookings BookingDirectory, templateName string, m *metrics.Metrics, logger *logging.Logger) *Kickoff {
	if sender == nil {
		panic("messaging: sender required")
	}
	if store == nil {
		panic("messaging: store required")
	}
	if bookings == nil {
		panic("messaging: booking directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Kickoff{
		sender:       sender,
		store:        store,
		bookings:     bookings,
		templateName: templateName,
		metrics:      m,
		logger:       logger,
	}
}

// Start sends the bind prompt for requestID and records the outbound send so
// a later button reply can be resolved back to the booking. An explicit
// phone overrides the stored one. Returns the platform-assigned message id.
func (k *Kickoff) Start(ctx context.Context, requestID, phoneOverride string, useTemplate bool) (string, error) {
	name, vehicle, phone, err := k.bookings.KickoffContact(ctx, requestID)
	if err != nil {
		return "", err
	}
	if phoneOverride != "" {
		phone = NormalizeE164(phoneOverride)
	}
	if phone == "" {
		return "", ErrNoPhone
	}
	waID := WAIDFromPhone(phone)

	marker := BoundViaButton
	var messageID string
	body := bindPromptBody(name, vehicle)
	if useTemplate {
		if k.templateName == "" {
			return "", errors.New("messaging: bind template not configured")
		}
		marker = BoundViaTemplate
		messageID, err = k.sender.SendTemplate(ctx, waID, k.templateName, "")
	} else {
		messageID, err = k.sender.SendButtonPrompt(ctx, waID, body, "start_chat", "Yes, let's chat")
	}
	if err != nil {
		k.metrics.ObserveOutbound("bind_prompt", "failed")
		return "", fmt.Errorf("messaging: send bind prompt: %w", err)
	}
	k.metrics.ObserveOutbound("bind_prompt", "sent")

	if err := k.store.InsertOutbound(ctx, nil, OutboundRecord{
		MessageID: messageID,
		WAID:      waID,
		RequestID: requestID,
		Marker:    marker,
	}); err != nil {
		// Without this row the reply cannot be resolved to the booking.
		return "", err
	}

	if err := k.store.AppendMessage(ctx, nil, MessageLogRecord{
		MessageID: messageID,
		RequestID: requestID,
		WAID:      waID,
		Direction: "outbound",
		Body:      body,
	}); err != nil {
		k.logger.Warn("failed to log bind prompt", "error", err, "request_id", requestID)
	}

	k.logger.Info("bind prompt sent", "request_id", requestID, "wa_id", waID, "marker", marker)
	return messageID, nil
}

func bindPromptBody(name, vehicle string) string {
	first := strings.TrimSpace(name)
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	if first == "" {
		first = "there"
	}
	if vehicle == "" {
		return fmt.Sprintf("Hi %s! Tap below to link this chat to your AOE Motors test drive so we can answer questions and share updates here.", first)
	}
	return fmt.Sprintf("Hi %s! Tap below to link this chat to your %s test drive so we can answer questions and share updates here.", first, vehicle)
}

// KickoffRequest is the POST /sessions/kickoff payload.
type KickoffRequest struct {
	RequestID string `json:"request_id"`
	Phone     string `json:"phone,omitempty"`
	Via       string `json:"via,omitempty"` // "button" (default) or "template"
}

// ServeKickoff handles POST /sessions/kickoff.
func (k *Kickoff) ServeKickoff(w http.ResponseWriter, r *http.Request) {
	var req KickoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.RequestID) == "" {
		http.Error(w, "request_id is required", http.StatusBadRequest)
		return
	}

	messageID, err := k.Start(r.Context(), req.RequestID, req.Phone, req.Via == BoundViaTemplate)
	if err != nil {
		switch {
		case errors.Is(err, ErrBookingNotFound):
			http.Error(w, "booking not found", http.StatusNotFound)
		case errors.Is(err, ErrNoPhone):
			http.Error(w, "booking has no usable phone number", http.StatusUnprocessableEntity)
		default:
			k.logger.Error("kickoff failed", "error", err, "request_id", req.RequestID)
			http.Error(w, "failed to start session", http.StatusBadGateway)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message_id": messageID})
}
