package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aoemotors/driveflow/internal/channels/whatsapp"
	"github.com/aoemotors/driveflow/internal/observability/metrics"
	"github.com/aoemotors/driveflow/internal/tracking"
	"github.com/aoemotors/driveflow/pkg/logging"
)

var webhookTracer = otel.Tracer("driveflow.internal.messaging.webhook")

const (
	bindConfirmationBody = "You're all set! This chat is now linked to your AOE Motors test drive. Ask me anything about your booking here."

	// Marketing site target wrapped by the follow-up tracked link.
	vehicleShowroomURL = "https://aoe-motors.lovable.app/#vehicles"
)

// TaskRunner runs detached follow-up work after the webhook is acknowledged.
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Handler routes verified inbound WhatsApp events: binding state changes for
// button replies, audit logging and relay for free-text messages.
type Handler struct {
	verifyToken   string
	appSecret     string
	store         *Store
	sender        whatsapp.Sender
	codec         *tracking.Codec
	trackTTL      time.Duration
	publicBaseURL string
	automationURL string
	runner        TaskRunner
	httpClient    *http.Client
	metrics       *metrics.Metrics
	logger        *logging.Logger
}

// HandlerConfig wires the webhook handler.
type HandlerConfig struct {
	VerifyToken   string
	AppSecret     string
	Store         *Store
	Sender        whatsapp.Sender
	Codec         *tracking.Codec
	TrackTTL      time.Duration
	PublicBaseURL string
	AutomationURL string
	Runner        TaskRunner
	Metrics       *metrics.Metrics
	Logger        *logging.Logger
}

// NewHandler creates the webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Store == nil {
		panic("messaging: store required")
	}
	if cfg.Sender == nil {
		panic("messaging: sender required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.TrackTTL <= 0 {
		cfg.TrackTTL = 72 * time.Hour
	}
	return &Handler{
		verifyToken:   cfg.VerifyToken,
		appSecret:     cfg.AppSecret,
		store:         cfg.Store,
		sender:        cfg.Sender,
		codec:         cfg.Codec,
		trackTTL:      cfg.TrackTTL,
		publicBaseURL: cfg.PublicBaseURL,
		automationURL: cfg.AutomationURL,
		runner:        cfg.Runner,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
}

// HandleVerification handles the GET subscription handshake.
func (h *Handler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if echo, ok := whatsapp.VerifyHandshake(h.verifyToken, mode, token, challenge); ok {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, echo)
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound handles POST webhook deliveries. Every authenticated
// delivery is acknowledged with 200 regardless of inner routing outcome so
// the platform does not retry indefinitely.
func (h *Handler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()

	// The signature covers the raw bytes, so capture them before decoding.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(whatsapp.SignatureHeader)
	if !whatsapp.VerifySignature(h.appSecret, body, signature) {
		h.logger.Warn("invalid webhook signature")
		h.metrics.ObserveWebhookEvent("delivery", "unauthorized")
		span.RecordError(errors.New("invalid webhook signature"))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Past this point the delivery is authenticated and must be acked with
	// 200, or the platform will keep retrying the same payload.
	var event whatsapp.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("undecodable webhook body", "error", err)
		h.metrics.ObserveWebhookEvent("delivery", "undecodable")
		span.RecordError(err)
		h.ackReceived(w)
		return
	}

	messages := whatsapp.ParseWebhookEvent(event)
	span.SetAttributes(attribute.Int("driveflow.webhook.messages", len(messages)))

	for _, msg := range messages {
		start := time.Now()
		if msg.IsButtonReply {
			h.routeButtonReply(ctx, msg)
		} else {
			h.routeText(ctx, msg)
		}
		h.metrics.ObserveWebhookLatency(msg.Type, time.Since(start).Seconds())
	}

	// Internal routing failures must not make the platform treat the
	// delivery as undelivered.
	h.ackReceived(w)
}

func (h *Handler) ackReceived(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "received"})
}

// routeButtonReply resolves the replied-to outbound message to a booking and
// binds the sender to it. An unresolvable reference is a recoverable no-op.
func (h *Handler) routeButtonReply(ctx context.Context, msg whatsapp.ParsedInboundMessage) {
	out, err := h.store.ResolveOutbound(ctx, msg.ContextID)
	if err != nil {
		h.logger.Error("failed to resolve button reply context", "error", err, "context_id", msg.ContextID)
	}
	if out == nil {
		h.metrics.ObserveWebhookEvent("button_reply", "unresolved")
		h.logger.Info("button reply with unknown context", "wa_id", msg.WAID, "context_id", msg.ContextID)
		h.appendMessageLog(ctx, msg, "")
		return
	}

	boundVia := BoundViaButton
	if msg.ViaTemplate {
		boundVia = BoundViaTemplate
	}
	if err := h.store.UpsertBinding(ctx, nil, msg.WAID, out.RequestID, boundVia); err != nil {
		h.metrics.ObserveWebhookEvent("button_reply", "bind_failed")
		h.logger.Error("failed to upsert binding", "error", err, "wa_id", msg.WAID, "request_id", out.RequestID)
		h.appendMessageLog(ctx, msg, "")
		return
	}
	h.metrics.ObserveWebhookEvent("button_reply", "bound")
	h.logger.Info("conversation bound", "wa_id", msg.WAID, "request_id", out.RequestID, "via", boundVia)

	h.appendMessageLog(ctx, msg, out.RequestID)

	confirmationID, err := h.sender.SendText(ctx, msg.WAID, bindConfirmationBody)
	if err != nil {
		h.metrics.ObserveOutbound("confirmation", "failed")
		h.logger.Error("failed to send bind confirmation", "error", err, "wa_id", msg.WAID)
	} else {
		h.metrics.ObserveOutbound("confirmation", "sent")
		if err := h.store.AppendMessage(ctx, nil, MessageLogRecord{
			MessageID: confirmationID,
			RequestID: out.RequestID,
			WAID:      msg.WAID,
			Direction: "outbound",
			Body:      bindConfirmationBody,
		}); err != nil {
			h.logger.Warn("failed to log bind confirmation", "error", err, "request_id", out.RequestID)
		}
	}

	if err := h.store.AppendSummary(ctx, out.RequestID, "Customer linked their WhatsApp chat to the booking."); err != nil {
		h.logger.Warn("failed to append summary", "error", err, "request_id", out.RequestID)
	}

	if h.runner != nil {
		requestID, waID := out.RequestID, msg.WAID
		h.runner.Go("bind_follow_up", func(taskCtx context.Context) error {
			return h.sendFollowUp(taskCtx, requestID, waID)
		})
	}
}

// routeText attaches the active binding's request id when one exists and
// logs the message either way. The event is also relayed to the automation
// collaborator; relay failures never fail webhook acknowledgment.
func (h *Handler) routeText(ctx context.Context, msg whatsapp.ParsedInboundMessage) {
	requestID := ""
	binding, err := h.store.FindActiveBinding(ctx, msg.WAID)
	if err != nil {
		h.logger.Error("failed to look up binding", "error", err, "wa_id", msg.WAID)
	}
	if binding != nil {
		requestID = binding.RequestID
	}

	if requestID == "" {
		h.metrics.ObserveWebhookEvent("text", "unmapped")
	} else {
		h.metrics.ObserveWebhookEvent("text", "mapped")
	}

	h.appendMessageLog(ctx, msg, requestID)

	if requestID != "" {
		if err := h.store.AppendSummary(ctx, requestID, "Customer: "+msg.Text); err != nil {
			h.logger.Warn("failed to append summary", "error", err, "request_id", requestID)
		}
	}

	h.forwardToAutomation(ctx, msg, requestID)
}

func (h *Handler) appendMessageLog(ctx context.Context, msg whatsapp.ParsedInboundMessage, requestID string) {
	err := h.store.AppendMessage(ctx, nil, MessageLogRecord{
		MessageID: msg.MessageID,
		RequestID: requestID,
		WAID:      msg.WAID,
		Direction: "inbound",
		Body:      msg.Text,
		Payload:   msg.Raw,
	})
	if err != nil {
		h.logger.Warn("failed to log inbound message", "error", err, "message_id", msg.MessageID)
	}
}

// sendFollowUp sends the post-bind follow-up carrying a signed tracked link.
func (h *Handler) sendFollowUp(ctx context.Context, requestID, waID string) error {
	body := "While you wait for your test drive, take another look at the lineup: " + vehicleShowroomURL
	if h.codec != nil && h.publicBaseURL != "" {
		token, err := h.codec.Issue(requestID, waID, vehicleShowroomURL, "vehicle_link", h.trackTTL)
		if err != nil {
			return fmt.Errorf("messaging: issue tracked link: %w", err)
		}
		body = "While you wait for your test drive, take another look at the lineup: " + h.publicBaseURL + "/r/" + token
	}

	messageID, err := h.sender.SendText(ctx, waID, body)
	if err != nil {
		h.metrics.ObserveOutbound("follow_up", "failed")
		return fmt.Errorf("messaging: send follow-up: %w", err)
	}
	h.metrics.ObserveOutbound("follow_up", "sent")

	if err := h.store.AppendMessage(ctx, nil, MessageLogRecord{
		MessageID: messageID,
		RequestID: requestID,
		WAID:      waID,
		Direction: "outbound",
		Body:      body,
	}); err != nil {
		h.logger.Warn("failed to log follow-up", "error", err, "request_id", requestID)
	}
	return nil
}

// forwardToAutomation relays the inbound event to the downstream automation
// endpoint. Errors are swallowed after logging.
func (h *Handler) forwardToAutomation(ctx context.Context, msg whatsapp.ParsedInboundMessage, requestID string) {
	if h.automationURL == "" {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"wa_id":       msg.WAID,
		"request_id":  requestID,
		"message_id":  msg.MessageID,
		"text":        msg.Text,
		"received_at": msg.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Warn("failed to marshal automation payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.automationURL, bytes.NewReader(payload))
	if err != nil {
		h.logger.Warn("failed to build automation request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Warn("automation forward failed", "error", err, "message_id", msg.MessageID)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		h.logger.Warn("automation forward rejected", "status", resp.StatusCode, "message_id", msg.MessageID)
	}
}
