package emailgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aoemotors/driveflow/pkg/logging"
)

const systemPrompt = "You are the AOE Motors concierge. Write short, warm booking " +
	"confirmation emails for test-drive customers. Mention the vehicle's standout " +
	"features when provided. Plain text only, no markdown. Start your reply with a " +
	"line of the form 'Subject: ...' followed by a blank line and the body."

var drafterTracer = otel.Tracer("driveflow.internal.emailgen")

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// DraftRequest describes the booking the confirmation email is drafted for.
type DraftRequest struct {
	FullName      string
	Vehicle       string
	VehicleType   string
	Powertrain    string
	Features      []string
	Location      string
	PreferredDate string
	PreferredTime string
	TimeFrame     string
}

// Draft is a generated customer email.
type Draft struct {
	Subject string
	Body    string
}

// Drafter generates customer confirmation emails with OpenAI.
type Drafter struct {
	client chatClient
	model  string
	logger *logging.Logger
}

// NewDrafter returns an OpenAI-backed drafter. A nil client disables
// drafting; Generate then returns the deterministic fallback.
func NewDrafter(client chatClient, model string, logger *logging.Logger) *Drafter {
	if model == "" {
		model = "gpt-4"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Drafter{
		client: client,
		model:  model,
		logger: logger,
	}
}

// NewOpenAIDrafter builds a drafter from an API key. An empty key returns a
// drafter that only produces fallbacks.
func NewOpenAIDrafter(apiKey, model string, logger *logging.Logger) *Drafter {
	if apiKey == "" {
		return NewDrafter(nil, model, logger)
	}
	return NewDrafter(openai.NewClient(apiKey), model, logger)
}

// Generate drafts the confirmation email. Model failures degrade to the
// fallback draft so intake never blocks on the model.
func (d *Drafter) Generate(ctx context.Context, req DraftRequest) Draft {
	if d.client == nil {
		return fallbackDraft(req)
	}

	ctx, span := drafterTracer.Start(ctx, "emailgen.generate")
	defer span.End()
	span.SetAttributes(attribute.String("driveflow.vehicle", req.Vehicle))

	draft, err := d.generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		d.logger.Warn("email draft failed, using fallback", "error", err, "vehicle", req.Vehicle)
		return fallbackDraft(req)
	}
	return draft
}

func (d *Drafter) generate(ctx context.Context, req DraftRequest) (Draft, error) {
	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := d.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: draftPrompt(req)},
		},
	})
	if err != nil {
		return Draft{}, fmt.Errorf("emailgen: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Draft{}, errors.New("emailgen: openai returned no choices")
	}

	draft := parseDraft(resp.Choices[0].Message.Content)
	if draft.Body == "" {
		return Draft{}, errors.New("emailgen: model returned empty body")
	}
	if draft.Subject == "" {
		draft.Subject = fallbackSubject(req)
	}
	return draft, nil
}

func draftPrompt(req DraftRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer: %s\n", req.FullName)
	fmt.Fprintf(&b, "Vehicle: %s", req.Vehicle)
	if req.VehicleType != "" {
		fmt.Fprintf(&b, " (%s, %s)", req.VehicleType, req.Powertrain)
	}
	b.WriteString("\n")
	if len(req.Features) > 0 {
		fmt.Fprintf(&b, "Standout features: %s\n", strings.Join(req.Features, ", "))
	}
	fmt.Fprintf(&b, "Test drive: %s at %s, %s location\n", req.PreferredDate, req.PreferredTime, req.Location)
	if req.TimeFrame != "" {
		fmt.Fprintf(&b, "Purchase timeframe: %s\n", req.TimeFrame)
	}
	return b.String()
}

// parseDraft splits a "Subject: ..." first line from the body. Replies
// without the marker become body-only drafts.
func parseDraft(raw string) Draft {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Draft{}
	}
	line, rest, found := strings.Cut(raw, "\n")
	if subject, ok := strings.CutPrefix(strings.TrimSpace(line), "Subject:"); ok && found {
		return Draft{
			Subject: strings.TrimSpace(subject),
			Body:    strings.TrimSpace(rest),
		}
	}
	return Draft{Body: raw}
}

func fallbackSubject(req DraftRequest) string {
	return fmt.Sprintf("Your %s test drive is booked", req.Vehicle)
}

func fallbackDraft(req DraftRequest) Draft {
	first := strings.TrimSpace(req.FullName)
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	if first == "" {
		first = "there"
	}
	return Draft{
		Subject: fallbackSubject(req),
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour test drive of the %s is confirmed for %s at %s (%s location).\n\nSee you soon,\nAOE Motors",
			first, req.Vehicle, req.PreferredDate, req.PreferredTime, req.Location,
		),
	}
}
