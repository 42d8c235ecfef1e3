// Package simpolicy supplies deterministic, in-memory implementations of the
// policy package's interfaces, used by package tests and by cmd/labctl's
// simulator mode. Nothing here touches real time or real hardware; delays
// are recorded, not slept, and homing/lift sequences complete after a fixed
// number of CheckStatus polls so tests stay fast and deterministic.
package simpolicy

import (
	"sync"
	"time"

	"labctrl/policy"
)

// System is an in-memory policy.SystemPolicy.
type System struct {
	mu              sync.Mutex
	serialNumber    string
	offsetTable     []byte
	firmwareVersion string
	hardwareVersion string
	pins            [3]policy.PinState
	ledOn           bool
	bootloaderCalls int
	FailSerialWrite bool
}

// NewSystem constructs a System fake with placeholder version strings and
// all revision pins floating (matching an unpopulated prototype board).
func NewSystem() *System {
	return &System{
		firmwareVersion: "0.0.1",
		hardwareVersion: "4",
	}
}

func (s *System) ReadSerialNumber() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serialNumber, nil
}

func (s *System) WriteSerialNumber(sn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSerialWrite {
		return errSerialWrite
	}
	s.serialNumber = sn
	return nil
}

func (s *System) ReadOffsetTable() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsetTable, nil
}

func (s *System) WriteOffsetTable(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsetTable = append([]byte(nil), raw...)
	return nil
}

func (s *System) FirmwareVersion() string { return s.firmwareVersion }
func (s *System) HardwareVersion() string { return s.hardwareVersion }

func (s *System) BoardRevisionPins() [3]policy.PinState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins
}

// SetPins lets a test or the CLI simulator stage a board revision.
func (s *System) SetPins(pins [3]policy.PinState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins = pins
}

func (s *System) SetLED(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledOn = on
}

func (s *System) LEDOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledOn
}

func (s *System) EnterBootloader() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootloaderCalls++
}

func (s *System) BootloaderCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootloaderCalls
}

func (s *System) DelayTicks(time.Duration) {}

type serialWriteError struct{}

func (serialWriteError) Error() string { return "simpolicy: simulated EEPROM write failure" }

var errSerialWrite = serialWriteError{}

// Thermal is an in-memory policy.ThermalPolicy for a plate or lid channel
// set. Power levels are recorded, not applied to anything physical.
type Thermal struct {
	mu        sync.Mutex
	offset    float64
	powers    map[int]float64
	fanPower  float64
}

// NewThermal constructs a Thermal fake with a linear ADC-to-temperature
// conversion (°C per raw count), sufficient for deterministic tests that
// stage raw ADC samples and assert on the converted reading.
func NewThermal() *Thermal {
	return &Thermal{powers: make(map[int]float64)}
}

func (t *Thermal) ConvertADCToTemperature(raw uint16) float64 {
	// A simple affine model: 0 counts is 0°C, 1000 counts is 100°C.
	return float64(raw) / 10.0
}

func (t *Thermal) SetPower(channel int, power float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.powers[channel] = power
}

func (t *Thermal) Power(channel int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.powers[channel]
}

func (t *Thermal) SetFanPower(power float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fanPower = power
}

func (t *Thermal) FanPower() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fanPower
}

func (t *Thermal) DelayTicks(time.Duration) {}

// Motor is an in-memory policy.MotorPolicy. Long-running operations
// (home, open-lid, plate-lift) complete after completeAfterPolls calls to
// their respective *Complete method, modelling a fixed number of
// CheckStatus retries instead of a real limit-switch debounce.
type Motor struct {
	mu                 sync.Mutex
	currentRPM         int32
	setRPM             int32
	solenoidEngaged    bool
	homePolls          int
	openLidPolls       int
	plateLiftPolls     int
	CompleteAfterPolls int
	StallHome          bool
	StallOpenLid       bool
	StallPlateLift     bool
}

// NewMotor constructs a Motor fake that completes any long-running operation
// after 3 CheckStatus polls by default.
func NewMotor() *Motor {
	return &Motor{CompleteAfterPolls: 3}
}

func (m *Motor) SetRPM(rpm int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setRPM = rpm
	m.currentRPM = rpm
}

func (m *Motor) CurrentRPM() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentRPM
}

func (m *Motor) StartHome() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.homePolls = 0
}

func (m *Motor) HomeComplete() (done bool, stalled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.homePolls++
	if m.StallHome {
		return true, true
	}
	return m.homePolls >= m.CompleteAfterPolls, false
}

func (m *Motor) StartOpenLid() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openLidPolls = 0
}

func (m *Motor) OpenLidComplete() (done bool, stalled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openLidPolls++
	if m.StallOpenLid {
		return true, true
	}
	return m.openLidPolls >= m.CompleteAfterPolls, false
}

func (m *Motor) StartPlateLift() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plateLiftPolls = 0
}

func (m *Motor) PlateLiftComplete() (done bool, stalled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plateLiftPolls++
	if m.StallPlateLift {
		return true, true
	}
	return m.plateLiftPolls >= m.CompleteAfterPolls, false
}

func (m *Motor) SetSolenoid(engage bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.solenoidEngaged = engage
}

func (m *Motor) SolenoidEngaged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.solenoidEngaged
}

func (m *Motor) DelayTicks(time.Duration) {}
