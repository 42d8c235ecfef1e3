package eeprom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialNumberRoundTrips(t *testing.T) {
	raw, err := EncodeSerialNumber("HSM02250613A03")
	require.NoError(t, err)
	assert.Equal(t, "HSM02250613A03", DecodeSerialNumber(raw))
}

func TestSerialNumberTooLongFails(t *testing.T) {
	_, err := EncodeSerialNumber("THIS-SERIAL-NUMBER-IS-WAY-TOO-LONG-FOR-THE-FIELD")
	assert.ErrorIs(t, err, ErrSerialNumberTooLong)
}

func TestEmptySerialNumberDecodesEmpty(t *testing.T) {
	var raw [SerialNumberLength]byte
	assert.Equal(t, "", DecodeSerialNumber(raw))
}

func TestOffsetTableRoundTrips(t *testing.T) {
	table := OffsetTable{Offsets: []ThermistorOffset{
		{A: 0.5, B: 1.01, C: -0.3},
		{A: -1.2, B: 0.99, C: 0.1},
	}}
	raw := EncodeOffsets(table)
	decoded := DecodeOffsets(raw)
	require.Len(t, decoded.Offsets, 2)
	assert.InDelta(t, 0.5, decoded.Offsets[0].A, 1e-9)
	assert.InDelta(t, 0.99, decoded.Offsets[1].B, 1e-9)
}

func TestThermistorOffsetApply(t *testing.T) {
	o := ThermistorOffset{A: 1, B: 1, C: 0.5}
	assert.InDelta(t, 21.5, o.Apply(20), 1e-9)
}
