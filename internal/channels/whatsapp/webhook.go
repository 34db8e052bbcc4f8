package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"
)

// SignatureHeader is the header carrying the HMAC over the raw request body.
const SignatureHeader = "X-Hub-Signature-256"

// VerifySignature verifies the X-Hub-Signature-256 header against the raw,
// unparsed request bytes. Re-serialized JSON is not guaranteed to reproduce
// the signed bytes, so callers must capture the body before decoding it.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	// Signature format: "sha256=<hex>"
	const prefix = "sha256="
	if len(signature) <= len(prefix) || signature[:len(prefix)] != prefix {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}

// VerifyHandshake answers the one-time subscription challenge: the challenge
// is echoed back only when mode and token both match. Fails closed.
func VerifyHandshake(verifyToken, mode, token, challenge string) (string, bool) {
	if verifyToken == "" {
		return "", false
	}
	if mode != "subscribe" || !hmac.Equal([]byte(token), []byte(verifyToken)) {
		return "", false
	}
	return challenge, true
}

// ParseWebhookEvent extracts ParsedInboundMessages from a webhook event.
// Unknown message types are skipped.
func ParseWebhookEvent(event WebhookEvent) []ParsedInboundMessage {
	var messages []ParsedInboundMessage

	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			for _, raw := range change.Value.Messages {
				var m InboundMessage
				if err := json.Unmarshal(raw, &m); err != nil {
					continue
				}
				parsed, ok := parseInbound(m, raw)
				if !ok {
					continue
				}
				messages = append(messages, parsed)
			}
		}
	}

	return messages
}

func parseInbound(m InboundMessage, raw json.RawMessage) (ParsedInboundMessage, bool) {
	parsed := ParsedInboundMessage{
		WAID:      m.From,
		MessageID: m.ID,
		Type:      m.Type,
		Raw:       raw,
	}
	if secs, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
		parsed.Timestamp = time.Unix(secs, 0)
	}
	if m.Context != nil {
		parsed.ContextID = m.Context.ID
	}

	switch m.Type {
	case "text":
		if m.Text == nil {
			return parsed, false
		}
		parsed.Text = m.Text.Body
	case "button":
		if m.Button == nil {
			return parsed, false
		}
		parsed.IsButtonReply = true
		parsed.ViaTemplate = true
		parsed.Text = m.Button.Text
	case "interactive":
		if m.Interactive == nil || m.Interactive.ButtonReply == nil {
			return parsed, false
		}
		parsed.IsButtonReply = true
		parsed.Text = m.Interactive.ButtonReply.Title
	default:
		return parsed, false
	}

	return parsed, true
}
