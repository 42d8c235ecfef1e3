// Package thermal implements the shared controller shape used by both the
// plate (heater) and lid thermal sub-tasks described in spec.md §4.4: ADC
// sample conversion, per-channel offset, disconnected/short/overtemp
// detection, a latched ERROR state, PID-driven CONTROLLING, and periodic
// status pushes to the system task.
package thermal

import (
	"labctrl/eeprom"
	"labctrl/errorcode"
	"labctrl/messages"
	"labctrl/policy"
)

// State is the thermal controller's lifecycle state (spec.md §7/§8:
// Deactivate after Deactivate is a no-op; Deactivate from ERROR returns to
// IDLE).
type State int

const (
	StateIdle State = iota
	StateControlling
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateControlling:
		return "CONTROLLING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// PID is a standard parallel-form PID controller with output clamping,
// sized for the single-setpoint loops this package drives.
type PID struct {
	Kp, Ki, Kd   float64
	OutputMin    float64
	OutputMax    float64
	integral     float64
	previousErr  float64
	hasPrevious  bool
}

// Step advances the controller by one tick and returns a clamped output.
func (p *PID) Step(setpoint, measured float64) float64 {
	err := setpoint - measured
	p.integral += err
	derivative := 0.0
	if p.hasPrevious {
		derivative = err - p.previousErr
	}
	p.previousErr = err
	p.hasPrevious = true

	out := p.Kp*err + p.Ki*p.integral + p.Kd*derivative
	if out > p.OutputMax {
		out = p.OutputMax
		p.integral -= err // anti-windup: undo this step's integral contribution
	}
	if out < p.OutputMin {
		out = p.OutputMin
		p.integral -= err
	}
	return out
}

// Reset clears the controller's accumulated state, used when re-entering
// CONTROLLING after an error or deactivate.
func (p *PID) Reset() {
	p.integral = 0
	p.previousErr = 0
	p.hasPrevious = false
}

// Limits bounds valid readings for disconnected/short/overtemp detection.
type Limits struct {
	DisconnectedBelow uint16 // raw ADC counts at or below this mean an open thermistor
	ShortAbove        uint16 // raw ADC counts at or above this mean a shorted thermistor
	OvertempC         float64
}

// Channel is one thermistor/heater-output pair. Offset is the persisted
// EEPROM calibration for this channel (spec.md §3); the zero value would
// zero out every reading, so callers that have no calibration to apply
// should use eeprom.IdentityOffset rather than leaving this unset.
type Channel struct {
	Offset eeprom.ThermistorOffset
	Limits Limits
}

// Task is a thermal controller for a fixed set of channels (1 for the lid,
// N for the plate). Name distinguishes which one a log line or status push
// came from.
type Task struct {
	Name     string
	Channels []Channel
	Setpoint float64
	HasSetpoint bool
	HoldUntilTicks int32
	HoldRemainingSeconds int32
	State    State
	ErrorBits uint32

	// Tolerance is used internally by HandleTemperatureReading to decide
	// whether the active hold timer should count down; kernel sets it from
	// configuration after New returns (it has no effect on AtTarget, which
	// always takes its own tolerance argument).
	Tolerance float64

	lastAvg  float64
	pid      PID
	fanPower float64

	pol policy.ThermalPolicy
}

// New builds a thermal task with one PID loop shared across its channels
// and the given per-channel conversion limits.
func New(name string, channels []Channel, pol policy.ThermalPolicy, pid PID) *Task {
	return &Task{
		Name:     name,
		Channels: channels,
		State:    StateIdle,
		pid:      pid,
		pol:      pol,
	}
}

// HandleSetTemperature accepts a new setpoint and moves the controller into
// CONTROLLING, unless it is latched in ERROR.
func (t *Task) HandleSetTemperature(msg messages.SetTemperatureMessage) errorcode.Code {
	if t.State == StateError {
		return errorcode.ThermalPlateBusy
	}
	t.Setpoint = msg.Setpoint
	t.HasSetpoint = true
	if msg.HasHold {
		t.HoldUntilTicks = msg.HoldSeconds
		t.HoldRemainingSeconds = msg.HoldSeconds
	}
	if t.State != StateControlling {
		t.pid.Reset()
	}
	t.State = StateControlling
	return errorcode.NoError
}

// HandleDeactivate disables all outputs and returns to IDLE; a second
// Deactivate while already IDLE is a no-op (spec.md §7).
func (t *Task) HandleDeactivate() {
	if t.State == StateIdle {
		return
	}
	t.State = StateIdle
	t.HasSetpoint = false
	t.HoldUntilTicks = 0
	t.HoldRemainingSeconds = 0
	t.fanPower = 0
	t.pid.Reset()
	for i := range t.Channels {
		t.pol.SetPower(i, 0)
	}
	t.pol.SetFanPower(0)
	t.ErrorBits = 0
}

// HandleTemperatureReading converts one ADC sample per channel, detects
// per-thermistor faults, and (while CONTROLLING) drives the PID loop. It
// returns the average converted temperature across channels, used for
// status reporting.
func (t *Task) HandleTemperatureReading(msg messages.TemperatureReadingComplete) float64 {
	if len(msg.RawADCSamples) == 0 {
		return 0
	}
	var sum float64
	var errBits uint32
	for i, raw := range msg.RawADCSamples {
		var limits Limits
		offset := eeprom.IdentityOffset
		if i < len(t.Channels) {
			limits = t.Channels[i].Limits
			offset = t.Channels[i].Offset
		}
		switch {
		case limits.DisconnectedBelow != 0 && raw <= limits.DisconnectedBelow:
			errBits |= 1 << uint(i*3)
			continue
		case limits.ShortAbove != 0 && raw >= limits.ShortAbove:
			errBits |= 1 << uint(i*3+1)
			continue
		}
		temp := offset.Apply(t.pol.ConvertADCToTemperature(raw))
		if limits.OvertempC != 0 && temp >= limits.OvertempC {
			errBits |= 1 << uint(i*3+2)
		}
		sum += temp
	}
	avg := sum / float64(len(msg.RawADCSamples))
	t.lastAvg = avg

	if errBits != 0 {
		t.ErrorBits = errBits
		t.enterError()
		return avg
	}

	if t.State == StateControlling {
		out := t.pid.Step(t.Setpoint, avg)
		for i := range t.Channels {
			t.pol.SetPower(i, out)
		}
		if t.HoldRemainingSeconds > 0 && t.AtTarget(avg, t.Tolerance) {
			t.HoldRemainingSeconds--
		}
	}
	return avg
}

// CurrentReading returns the most recent converted average temperature
// reported to HandleTemperatureReading (0 before any reading has arrived).
func (t *Task) CurrentReading() float64 {
	return t.lastAvg
}

func (t *Task) enterError() {
	t.State = StateError
	for i := range t.Channels {
		t.pol.SetPower(i, 0)
	}
	t.pol.SetFanPower(0)
}

// AtTarget reports whether the last conversion landed within tolerance of
// the active setpoint. Callers pass the most recent HandleTemperatureReading
// result.
func (t *Task) AtTarget(current float64, tolerance float64) bool {
	if !t.HasSetpoint {
		return false
	}
	delta := t.Setpoint - current
	if delta < 0 {
		delta = -delta
	}
	return delta <= tolerance
}

// StatusUpdate builds the periodic push to the system task.
func (t *Task) StatusUpdate() (messages.UpdatePlateState, messages.UpdateTaskErrorState) {
	return messages.UpdatePlateState{State: t.State.String()},
		messages.UpdateTaskErrorState{Source: t.Name, ErrorBits: t.ErrorBits}
}
