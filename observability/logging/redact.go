package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// sensitiveKeys lists the log keys that must never carry their raw value:
// PSBT payloads identify wallet UTXOs, and bolt11 payment requests embed the
// destination node and amount.
var sensitiveKeys = map[string]struct{}{
	"psbt":            {},
	"signed_psbt":     {},
	"payment_request": {},
}

// IsSensitive reports whether the provided key must be masked before logging.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns a slog.Attr with the value replaced by the redaction
// placeholder when the key is sensitive. Empty values pass through unchanged
// to avoid masking noise in logs.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
