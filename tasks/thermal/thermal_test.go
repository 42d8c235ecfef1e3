package thermal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labctrl/messages"
	"labctrl/simpolicy"
)

func newTestTask() (*Task, *simpolicy.Thermal) {
	pol := simpolicy.NewThermal()
	channels := []Channel{{Limits: Limits{DisconnectedBelow: 5, ShortAbove: 1000, OvertempC: 110}}}
	task := New("plate", channels, pol, PID{Kp: 1, Ki: 0.1, Kd: 0, OutputMin: 0, OutputMax: 1})
	return task, pol
}

func TestSetTemperatureEntersControlling(t *testing.T) {
	task, _ := newTestTask()
	code := task.HandleSetTemperature(messages.SetTemperatureMessage{Setpoint: 95})
	require.Zero(t, code)
	assert.Equal(t, StateControlling, task.State)
	assert.Equal(t, 95.0, task.Setpoint)
}

func TestSetTemperatureRejectedWhileInError(t *testing.T) {
	task, _ := newTestTask()
	task.State = StateError
	code := task.HandleSetTemperature(messages.SetTemperatureMessage{Setpoint: 95})
	assert.NotZero(t, code)
	assert.Equal(t, StateError, task.State)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	task, pol := newTestTask()
	task.HandleSetTemperature(messages.SetTemperatureMessage{Setpoint: 95})
	task.HandleDeactivate()
	assert.Equal(t, StateIdle, task.State)
	assert.Equal(t, 0.0, pol.Power(0))

	task.HandleDeactivate() // no-op, must not panic or change state
	assert.Equal(t, StateIdle, task.State)
}

func TestDeactivateFromErrorReturnsToIdle(t *testing.T) {
	task, _ := newTestTask()
	task.State = StateError
	task.HandleDeactivate()
	assert.Equal(t, StateIdle, task.State)
}

func TestDisconnectedThermistorLatchesError(t *testing.T) {
	task, _ := newTestTask()
	task.HandleSetTemperature(messages.SetTemperatureMessage{Setpoint: 95})
	task.HandleTemperatureReading(messages.TemperatureReadingComplete{RawADCSamples: []uint16{2}})
	assert.Equal(t, StateError, task.State)
	assert.NotZero(t, task.ErrorBits)
}

func TestShortedThermistorLatchesError(t *testing.T) {
	task, _ := newTestTask()
	task.HandleTemperatureReading(messages.TemperatureReadingComplete{RawADCSamples: []uint16{1200}})
	assert.Equal(t, StateError, task.State)
}

func TestControllingDrivesPower(t *testing.T) {
	task, pol := newTestTask()
	task.HandleSetTemperature(messages.SetTemperatureMessage{Setpoint: 95})
	task.HandleTemperatureReading(messages.TemperatureReadingComplete{RawADCSamples: []uint16{500}})
	assert.Greater(t, pol.Power(0), 0.0)
}

func TestAtTargetWithinTolerance(t *testing.T) {
	task, _ := newTestTask()
	task.HandleSetTemperature(messages.SetTemperatureMessage{Setpoint: 50})
	assert.True(t, task.AtTarget(49.8, 0.5))
	assert.False(t, task.AtTarget(40, 0.5))
}

func TestStatusUpdateReportsState(t *testing.T) {
	task, _ := newTestTask()
	task.HandleSetTemperature(messages.SetTemperatureMessage{Setpoint: 50})
	plateState, errState := task.StatusUpdate()
	assert.Equal(t, "CONTROLLING", plateState.State)
	assert.Equal(t, "plate", errState.Source)
}
