package messaging

import (
	"regexp"
	"strings"
)

// Leading country-code digit plus 7-14 more; bare local numbers like
// "555-1234" are not usable for outbound sends.
var e164Re = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// NormalizeE164 reduces a free-form phone string to strict E.164 form.
// Returns "" when the input cannot represent a usable number.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	candidate := "+" + digits
	if !e164Re.MatchString(candidate) {
		return ""
	}
	return candidate
}

// sanitizePhone strips everything but digits.
func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WAIDFromPhone converts an E.164 number to the platform's wa_id form
// (digits, no plus).
func WAIDFromPhone(e164 string) string {
	return strings.TrimPrefix(e164, "+")
}
