// Package psbt implements the record-level PSBT inspection the cosigning
// marketplace gates on. It deliberately does not implement full BIP-174
// semantics (finalizing, broadcasting, multi-input coordination); it only
// walks the serialized key-value records far enough to decide whether an
// input section already carries a partial signature.
package psbt

import "errors"

// magicLength is the length of the magic bytes that signal the start of a
// serialized PSBT packet.
const magicLength = 5

// magic is the fixed preamble "psbt" plus the 0xff separator.
var magic = [magicLength]byte{0x70, 0x73, 0x62, 0x74, 0xff}

// keyTypePartialSig is the input-level key type carrying one party's
// signature before the transaction is fully signed.
const keyTypePartialSig = 0x02

// minPacketLength is the smallest buffer worth scanning: the magic bytes plus
// at least one record's worth of framing.
const minPacketLength = 10

// ErrMalformedPsbt indicates the buffer is too short or does not begin with
// the PSBT magic bytes.
var ErrMalformedPsbt = errors.New("malformed PSBT packet")

// Result reports what the record walk observed.
type Result struct {
	// HasPartialSignature is true when any section past the global one
	// contains a partial-signature record, or when the walk hit a
	// truncated record and fell back to the signed verdict.
	HasPartialSignature bool

	// InputRecords counts the non-separator records seen after the global
	// section. A pristine unsigned template typically has none.
	InputRecords int

	// Truncated is set when the walk ran off the end of the buffer
	// mid-record. Callers surfacing the signed verdict should warn when
	// this is the reason for it.
	Truncated bool
}

// Scan walks the raw PSBT buffer and reports whether any input section
// carries a partial-signature record. The only error is a malformed
// preamble; past the magic check the scan never fails. Truncated or
// otherwise unparseable records yield HasPartialSignature=true, so that
// unparseable bytes can never pass an unsigned-admission check while a
// legitimately signed packet is never blocked on release.
func Scan(raw []byte) (Result, error) {
	if len(raw) < minPacketLength {
		return Result{}, ErrMalformedPsbt
	}
	for i := 0; i < magicLength; i++ {
		if raw[i] != magic[i] {
			return Result{}, ErrMalformedPsbt
		}
	}

	pos := magicLength

	// Skip the global (transaction) section: consume records until the
	// zero-length key separator.
	var truncated bool
	pos, truncated = skipSection(raw, pos)
	if truncated {
		return Result{HasPartialSignature: true, Truncated: true}, nil
	}

	res := Result{}
	for pos < len(raw) {
		if raw[pos] == 0x00 {
			// Section separator: the next input section follows.
			pos++
			continue
		}
		keyType := raw[pos]
		pos++
		if pos >= len(raw) {
			return Result{HasPartialSignature: true, InputRecords: res.InputRecords, Truncated: true}, nil
		}
		keyLen := int(raw[pos])
		pos++
		pos += keyLen
		if pos >= len(raw) {
			return Result{HasPartialSignature: true, InputRecords: res.InputRecords, Truncated: true}, nil
		}
		valueLen := int(raw[pos])
		pos++
		pos += valueLen
		if pos > len(raw) {
			return Result{HasPartialSignature: true, InputRecords: res.InputRecords, Truncated: true}, nil
		}

		res.InputRecords++
		if keyType == keyTypePartialSig {
			res.HasPartialSignature = true
			// No need to walk the remaining sections; one
			// signature record settles the verdict.
			return res, nil
		}
	}
	return res, nil
}

// skipSection consumes records until a zero key byte ends the section,
// returning the position just past the separator. The second return is true
// when the buffer ended mid-record.
func skipSection(raw []byte, pos int) (int, bool) {
	for pos < len(raw) {
		if raw[pos] == 0x00 {
			return pos + 1, false
		}
		pos++ // key type
		if pos >= len(raw) {
			return pos, true
		}
		keyLen := int(raw[pos])
		pos++
		pos += keyLen
		if pos >= len(raw) {
			return pos, true
		}
		valueLen := int(raw[pos])
		pos++
		pos += valueLen
		if pos > len(raw) {
			return pos, true
		}
	}
	return pos, true
}
