package psbt

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func TestValidateUnsignedAcceptsPristineTemplate(t *testing.T) {
	raw := buildPacket(0x00)
	hash, err := NewValidator(nil).ValidateUnsigned(encode(raw))
	require.NoError(t, err)

	digest := sha256.Sum256(raw)
	require.Equal(t, hex.EncodeToString(digest[:]), hash)
}

func TestValidateUnsignedRejectsSignedPacket(t *testing.T) {
	raw := buildPacket(0x02, 0x01, 0xab, 0x03, 0x01, 0x02, 0x03, 0x00)
	_, err := NewValidator(nil).ValidateUnsigned(encode(raw))
	require.ErrorIs(t, err, ErrAlreadySigned)
}

func TestValidateUnsignedRejectsTruncatedPacket(t *testing.T) {
	// Unparseable bytes must never pass as safely unsigned.
	raw := buildPacket(0x03, 0xff)
	_, err := NewValidator(nil).ValidateUnsigned(encode(raw))
	require.ErrorIs(t, err, ErrAlreadySigned)
}

func TestValidateUnsignedRejectsBadTransport(t *testing.T) {
	v := NewValidator(nil)

	_, err := v.ValidateUnsigned("!!!not base64!!!")
	require.ErrorIs(t, err, ErrMalformedPsbt)

	_, err = v.ValidateUnsigned(encode([]byte("wrong magic bytes here")))
	require.ErrorIs(t, err, ErrMalformedPsbt)
}

func TestValidateSignedAcceptsSignatureRecord(t *testing.T) {
	raw := buildPacket(0x02, 0x01, 0xab, 0x03, 0x01, 0x02, 0x03, 0x00)
	require.NoError(t, NewValidator(nil).ValidateSigned(encode(raw)))
}

func TestValidateSignedAcceptsPercentEncodedPayload(t *testing.T) {
	raw := buildPacket(0x02, 0x01, 0xab, 0x03, 0x01, 0x02, 0x03, 0x00)
	wrapped := url.QueryEscape(encode(raw))
	require.NoError(t, NewValidator(nil).ValidateSigned(wrapped))
}

func TestValidateSignedAcceptsModifiedInputSection(t *testing.T) {
	// No signature record, but the input section is non-empty: some signer
	// software finalizes witness data without a partial-signature record.
	raw := buildPacket(0x01, 0x01, 0xab, 0x02, 0xcd, 0xef, 0x00)
	require.NoError(t, NewValidator(nil).ValidateSigned(encode(raw)))
}

func TestValidateSignedAcceptsLargePayload(t *testing.T) {
	// Pristine input section but a payload well past the size threshold.
	packet := []byte{0x70, 0x73, 0x62, 0x74, 0xff}
	value := make([]byte, 0xf0)
	packet = append(packet, 0x01, 0x01, 0xaa, byte(len(value)))
	packet = append(packet, value...)
	packet = append(packet, 0x00, 0x00)
	require.GreaterOrEqual(t, len(packet), probablySignedMinBytes)
	require.NoError(t, NewValidator(nil).ValidateSigned(encode(packet)))
}

func TestValidateSignedRejectsPristineTemplate(t *testing.T) {
	raw := buildPacket(0x00)
	require.Less(t, len(raw), probablySignedMinBytes)
	require.ErrorIs(t, NewValidator(nil).ValidateSigned(encode(raw)), ErrNotSigned)
}

func TestValidateSignedRejectsBadMagic(t *testing.T) {
	err := NewValidator(nil).ValidateSigned(encode([]byte("wrong magic bytes here")))
	require.ErrorIs(t, err, ErrMalformedPsbt)
}
