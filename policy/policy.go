// Package policy declares the narrow capability interfaces each task uses to
// reach hardware (or a fake of it), per spec.md §4.5. Real hardware access —
// register-level ADC reads, PWM duty cycles, USB CDC interrupt plumbing,
// EEPROM wear levelling — stays out of this module's scope; these interfaces
// are the seam a real firmware build would implement against and a host
// simulator fakes for tests (simpolicy) or drives over a real serial link
// (serialtransport).
package policy

import "time"

// Transport is the host-comms task's view of the wire: read bytes as they
// arrive and write a formatted reply. A tx overrun is reported in the reply
// bytes themselves (ERR001), not through this interface.
type Transport interface {
	ReadAvailable() []byte
	Write(p []byte) (int, error)
}

// SystemPolicy is the capability set the system task uses: persistence,
// front-panel bookkeeping, board-revision pins, and bootloader entry.
type SystemPolicy interface {
	ReadSerialNumber() (string, error)
	WriteSerialNumber(sn string) error
	// ReadOffsetTable returns the raw bytes of the persisted per-thermistor
	// offset block (eeprom.EncodeOffsets' output), or an empty slice if
	// nothing has been written yet.
	ReadOffsetTable() ([]byte, error)
	// WriteOffsetTable persists raw (eeprom.EncodeOffsets' output) as the
	// per-thermistor offset block, idempotently (spec.md §3).
	WriteOffsetTable(raw []byte) error
	FirmwareVersion() string
	HardwareVersion() string
	BoardRevisionPins() [3]PinState
	SetLED(on bool)
	EnterBootloader()
	DelayTicks(d time.Duration)
}

// PinState models one board-revision probe pin's observed level, matching
// the reference firmware's tri-state pin read (floating, pulled low, driven
// high) used to distinguish hardware revisions without a dedicated strap.
type PinState int

const (
	PinFloating PinState = iota
	PinPulledDown
	PinPulledUp
)

// ThermalPolicy is the capability set a plate or lid thermal controller
// uses: ADC conversion, per-channel output, and fan control.
type ThermalPolicy interface {
	ConvertADCToTemperature(raw uint16) float64
	SetPower(channel int, power float64)
	SetFanPower(power float64)
	DelayTicks(d time.Duration)
}

// MotorPolicy is the capability set the motor task uses: spindle control,
// homing/limit-switch queries, and the solenoid.
type MotorPolicy interface {
	SetRPM(rpm int32)
	CurrentRPM() int32
	StartHome()
	HomeComplete() (done bool, stalled bool)
	StartOpenLid()
	OpenLidComplete() (done bool, stalled bool)
	StartPlateLift()
	PlateLiftComplete() (done bool, stalled bool)
	SetSolenoid(engage bool)
	DelayTicks(d time.Duration)
}
