// Package eeprom models the byte layout persisted to the board's EEPROM:
// a fixed-width serial number and a set of per-thermistor offset
// coefficients, matching spec.md §3's persisted-state data model. The
// storage medium itself (real I2C EEPROM wear-levelling) is out of scope;
// this package only defines the byte layout and round-trips it against a
// policy.SystemPolicy-shaped backing store.
package eeprom

import "errors"

// SerialNumberLength is the fixed width of the persisted serial number
// field, matching the 23-character serial numbers used in the wire protocol
// (spec.md §6's M996 command).
const SerialNumberLength = 23

// ErrSerialNumberTooLong is returned when a caller tries to persist a
// serial number longer than SerialNumberLength.
var ErrSerialNumberTooLong = errors.New("eeprom: serial number exceeds fixed field width")

// EncodeSerialNumber produces the fixed-width, zero-padded byte layout for
// sn. It fails if sn does not fit in SerialNumberLength bytes.
func EncodeSerialNumber(sn string) ([SerialNumberLength]byte, error) {
	var out [SerialNumberLength]byte
	if len(sn) > SerialNumberLength {
		return out, ErrSerialNumberTooLong
	}
	copy(out[:], sn)
	return out, nil
}

// DecodeSerialNumber trims the trailing zero padding written by
// EncodeSerialNumber.
func DecodeSerialNumber(raw [SerialNumberLength]byte) string {
	n := len(raw)
	for n > 0 && raw[n-1] == 0 {
		n--
	}
	return string(raw[:n])
}

// ThermistorOffset is the per-channel linear correction applied on top of
// the policy's raw ADC-to-temperature conversion: corrected = a + b*converted + c.
// A, B and C are all stored per channel; nothing here keeps A equal across
// the channels of a board.
type ThermistorOffset struct {
	A float64
	B float64
	C float64
}

// IdentityOffset is the correction applied to a channel with no persisted
// or configured calibration: pass the converted reading through unchanged.
var IdentityOffset = ThermistorOffset{B: 1}

// Apply returns the corrected temperature for a converted (uncorrected)
// reading.
func (o ThermistorOffset) Apply(converted float64) float64 {
	return o.A + o.B*converted + o.C
}

// OffsetTable holds one ThermistorOffset per channel, persisted alongside
// the serial number.
type OffsetTable struct {
	Offsets []ThermistorOffset
}

// EncodeOffsets packs the table into 24 bytes per channel (3 float64s),
// mirroring a simple fixed-record EEPROM layout.
func EncodeOffsets(t OffsetTable) []byte {
	out := make([]byte, 0, len(t.Offsets)*24)
	for _, o := range t.Offsets {
		out = appendFloat64(out, o.A)
		out = appendFloat64(out, o.B)
		out = appendFloat64(out, o.C)
	}
	return out
}

// DecodeOffsets unpacks a byte slice produced by EncodeOffsets.
func DecodeOffsets(raw []byte) OffsetTable {
	var t OffsetTable
	for i := 0; i+24 <= len(raw); i += 24 {
		t.Offsets = append(t.Offsets, ThermistorOffset{
			A: readFloat64(raw[i : i+8]),
			B: readFloat64(raw[i+8 : i+16]),
			C: readFloat64(raw[i+16 : i+24]),
		})
	}
	return t
}
