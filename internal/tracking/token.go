package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrBadSignature is returned when a token's signature does not match its payload.
	ErrBadSignature = errors.New("tracking: bad signature")

	// ErrExpired is returned when a token is past its embedded expiry.
	ErrExpired = errors.New("tracking: token expired")

	// ErrMissingTarget is returned when a verified token carries no redirect URL.
	ErrMissingTarget = errors.New("tracking: missing target url")
)

// Payload is the signed content of a tracking token. The token is its own
// credential: no server-side row is written per issued link.
type Payload struct {
	RequestID string `json:"request_id"`
	WAID      string `json:"wa_id,omitempty"`
	TargetURL string `json:"url"`
	Kind      string `json:"kind,omitempty"`
	ExpiresAt int64  `json:"exp"`
}

// Codec issues and verifies signed, expiring tracking tokens.
type Codec struct {
	key []byte
	now func() time.Time
}

// NewCodec creates a codec with the process-wide signing key.
func NewCodec(signingKey string) *Codec {
	return &Codec{
		key: []byte(signingKey),
		now: time.Now,
	}
}

// NewCodecWithClock creates a codec with an injected clock for tests.
func NewCodecWithClock(signingKey string, now func() time.Time) *Codec {
	return &Codec{key: []byte(signingKey), now: now}
}

// Issue builds a token wrapping targetURL, valid for ttl from now.
func (c *Codec) Issue(requestID, waID, targetURL, kind string, ttl time.Duration) (string, error) {
	if len(c.key) == 0 {
		return "", errors.New("tracking: signing key not configured")
	}
	payload := Payload{
		RequestID: requestID,
		WAID:      waID,
		TargetURL: targetURL,
		Kind:      kind,
		ExpiresAt: c.now().Add(ttl).Unix(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("tracking: marshal payload: %w", err)
	}
	sig := c.sign(raw)
	enc := base64.RawURLEncoding
	return enc.EncodeToString(raw) + "." + enc.EncodeToString(sig), nil
}

// Verify checks the token's signature and expiry and returns its payload.
// No payload field is trusted until the signature check passes.
func (c *Codec) Verify(token string) (*Payload, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, ErrBadSignature
	}
	// Strict decoding rejects non-canonical trailing bits, so a flipped
	// byte anywhere in the token invalidates it.
	enc := base64.RawURLEncoding.Strict()
	raw, err := enc.DecodeString(parts[0])
	if err != nil {
		return nil, ErrBadSignature
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return nil, ErrBadSignature
	}
	if !hmac.Equal(c.sign(raw), sig) {
		return nil, ErrBadSignature
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrBadSignature
	}
	if payload.ExpiresAt != 0 && !c.now().Before(time.Unix(payload.ExpiresAt, 0)) {
		return nil, ErrExpired
	}
	return &payload, nil
}

func (c *Codec) sign(raw []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(raw)
	return mac.Sum(nil)
}
