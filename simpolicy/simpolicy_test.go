package simpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labctrl/policy"
)

func TestSystemSerialNumberRoundTrip(t *testing.T) {
	s := NewSystem()
	require.NoError(t, s.WriteSerialNumber("HSM02250613A03"))
	sn, err := s.ReadSerialNumber()
	require.NoError(t, err)
	assert.Equal(t, "HSM02250613A03", sn)
}

func TestSystemWriteSerialNumberFailureMode(t *testing.T) {
	s := NewSystem()
	s.FailSerialWrite = true
	assert.Error(t, s.WriteSerialNumber("HSM02250613A03"))
}

func TestSystemBoardRevisionPins(t *testing.T) {
	s := NewSystem()
	s.SetPins([3]policy.PinState{policy.PinFloating, policy.PinFloating, policy.PinFloating})
	assert.Equal(t, policy.PinFloating, s.BoardRevisionPins()[0])
}

func TestMotorHomeCompletesAfterFixedPolls(t *testing.T) {
	m := NewMotor()
	m.StartHome()
	done, stalled := false, false
	polls := 0
	for !done && polls < 10 {
		done, stalled = m.HomeComplete()
		polls++
	}
	assert.True(t, done)
	assert.False(t, stalled)
	assert.Equal(t, 3, polls)
}

func TestMotorHomeStalls(t *testing.T) {
	m := NewMotor()
	m.StallHome = true
	m.StartHome()
	done, stalled := m.HomeComplete()
	assert.True(t, done)
	assert.True(t, stalled)
}
