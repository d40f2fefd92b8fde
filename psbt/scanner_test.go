package psbt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildPacket assembles a synthetic PSBT: magic, one global record, the
// section separator, then the supplied input-section bytes.
func buildPacket(inputSection ...byte) []byte {
	packet := []byte{0x70, 0x73, 0x62, 0x74, 0xff}
	// Global record: keyType 0x01, one key byte, two value bytes.
	packet = append(packet, 0x01, 0x01, 0xaa, 0x02, 0xbb, 0xcc)
	packet = append(packet, 0x00)
	return append(packet, inputSection...)
}

func TestScanRejectsMalformedPreamble(t *testing.T) {
	cases := map[string][]byte{
		"empty":       nil,
		"too short":   {0x70, 0x73, 0x62, 0x74, 0xff, 0x00},
		"wrong magic": {0x71, 0x73, 0x62, 0x74, 0xff, 0x00, 0x00, 0x00, 0x00, 0x00},
		"text":        []byte("not a psbt at all"),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Scan(raw)
			require.ErrorIs(t, err, ErrMalformedPsbt)
		})
	}
}

func TestScanUnsignedTemplate(t *testing.T) {
	res, err := Scan(buildPacket(0x00))
	require.NoError(t, err)
	require.False(t, res.HasPartialSignature)
	require.False(t, res.Truncated)
	require.Zero(t, res.InputRecords)
}

func TestScanDetectsPartialSignature(t *testing.T) {
	// Input record with key type 0x02 and a short signature value.
	signed := buildPacket(
		0x02, 0x01, 0xab, 0x03, 0x01, 0x02, 0x03,
		0x00,
	)
	res, err := Scan(signed)
	require.NoError(t, err)
	require.True(t, res.HasPartialSignature)
	require.False(t, res.Truncated)
}

func TestScanPartialSignatureInSecondSection(t *testing.T) {
	signed := buildPacket(
		// First input section: one non-signature record.
		0x01, 0x01, 0xab, 0x01, 0xcd,
		0x00,
		// Second input section carries the signature.
		0x02, 0x02, 0xab, 0xcd, 0x02, 0xee, 0xff,
		0x00,
	)
	res, err := Scan(signed)
	require.NoError(t, err)
	require.True(t, res.HasPartialSignature)
}

func TestScanCountsInputRecordsWithoutSignature(t *testing.T) {
	modified := buildPacket(
		0x01, 0x01, 0xab, 0x02, 0xcd, 0xef,
		0x06, 0x01, 0xab, 0x01, 0xcd,
		0x00,
	)
	res, err := Scan(modified)
	require.NoError(t, err)
	require.False(t, res.HasPartialSignature)
	require.Equal(t, 2, res.InputRecords)
}

func TestScanTruncatedRecordFailsTowardSigned(t *testing.T) {
	cases := map[string][]byte{
		"key length past end":  buildPacket(0x03, 0xff),
		"missing value length": buildPacket(0x03, 0x01, 0xab),
		"value past end":       buildPacket(0x03, 0x01, 0xab, 0x10, 0x01),
		"truncated global":     {0x70, 0x73, 0x62, 0x74, 0xff, 0x01, 0xff, 0x00, 0x00, 0x00},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := Scan(raw)
			require.NoError(t, err)
			require.True(t, res.HasPartialSignature, "truncated packets must read as signed")
			require.True(t, res.Truncated)
		})
	}
}
