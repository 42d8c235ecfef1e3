package gcode

import "fmt"

// SetRPM is M3 S<rpm> — set the spindle/shaker speed.
type SetRPM struct {
	RPM int32
}

func (SetRPM) isCommand() {}

// ParseSetRPM recognizes "M3 S<int>".
func ParseSetRPM(line []byte, start int) (Command, int, bool) {
	pos, ok := PrefixMatches(line, start, "M3")
	if !ok {
		return nil, start, false
	}
	pos = gobbleWhitespace(line, pos)
	pos, ok = PrefixMatches(line, pos, "S")
	if !ok {
		return nil, start, false
	}
	rpm, pos, ok := ParseInt(line, pos)
	if !ok {
		return nil, start, false
	}
	return SetRPM{RPM: int32(rpm)}, pos, true
}

// WriteResponse writes the ack-only reply for SetRPM: "M3 OK\n".
func (SetRPM) WriteResponse(dst []byte) (int, bool) {
	return writeString(dst, "M3 OK\n")
}

// GetRPM is M123 — report current and set spindle speed.
type GetRPM struct{}

func (GetRPM) isCommand() {}

func ParseGetRPM(line []byte, start int) (Command, int, bool) {
	pos, ok := PrefixMatches(line, start, "M123")
	if !ok {
		return nil, start, false
	}
	return GetRPM{}, pos, true
}

// GetRPMResponse carries the asynchronously produced data for a GetRPM.
type GetRPMResponse struct {
	CurrentRPM int32
	SetRPM     int32
}

// WriteGetRPMResponse formats "M123 C:<current> T:<set> OK\n".
func WriteGetRPMResponse(dst []byte, r GetRPMResponse) (int, bool) {
	return writeString(dst, fmt.Sprintf("M123 C:%d T:%d OK\n", r.CurrentRPM, r.SetRPM))
}

// SetTemperature is M104 S<temp> [H<hold_s>] — set plate target temperature.
type SetTemperature struct {
	Setpoint float64
	HoldSeconds int32
	HasHold bool
}

func (SetTemperature) isCommand() {}

func ParseSetTemperature(line []byte, start int) (Command, int, bool) {
	pos, ok := PrefixMatches(line, start, "M104")
	if !ok {
		return nil, start, false
	}
	pos = gobbleWhitespace(line, pos)
	pos, ok = PrefixMatches(line, pos, "S")
	if !ok {
		return nil, start, false
	}
	setpoint, pos, ok := ParseFloat(line, pos)
	if !ok {
		return nil, start, false
	}
	cmd := SetTemperature{Setpoint: setpoint}
	next := gobbleWhitespace(line, pos)
	if holdPos, ok := PrefixMatches(line, next, "H"); ok {
		hold, afterHold, ok := ParseInt(line, holdPos)
		if ok {
			cmd.HoldSeconds = int32(hold)
			cmd.HasHold = true
			pos = afterHold
		}
	}
	return cmd, pos, true
}

// WriteResponse writes the ack-only reply for SetTemperature: "M104 OK\n".
func (SetTemperature) WriteResponse(dst []byte) (int, bool) {
	return writeString(dst, "M104 OK\n")
}

// GetTemperature is M105 — report plate temperature and heat state.
type GetTemperature struct{}

func (GetTemperature) isCommand() {}

func ParseGetTemperature(line []byte, start int) (Command, int, bool) {
	pos, ok := PrefixMatches(line, start, "M105")
	if !ok {
		return nil, start, false
	}
	return GetTemperature{}, pos, true
}

// GetTemperatureResponse carries a GetTemperature's asynchronous data.
type GetTemperatureResponse struct {
	Set              float64
	Current          float64
	RemainingSeconds float64
	TotalSeconds     float64
	AtTarget         bool
}

// WriteGetTemperatureResponse formats the exact wire reply used by the
// heater/shaker and thermocycler plate status query.
func WriteGetTemperatureResponse(dst []byte, r GetTemperatureResponse) (int, bool) {
	atTarget := 0
	if r.AtTarget {
		atTarget = 1
	}
	return writeString(dst, fmt.Sprintf(
		"M105 T:%.2f C:%.2f H:%.2f Total_H:%.2f At_target?:%d OK\n",
		r.Set, r.Current, r.RemainingSeconds, r.TotalSeconds, atTarget))
}

// SetLidTemperature is M140 S<temp> — set the lid heater target.
type SetLidTemperature struct {
	Setpoint float64
}

func (SetLidTemperature) isCommand() {}

func ParseSetLidTemperature(line []byte, start int) (Command, int, bool) {
	pos, ok := PrefixMatches(line, start, "M140")
	if !ok {
		return nil, start, false
	}
	pos = gobbleWhitespace(line, pos)
	pos, ok = PrefixMatches(line, pos, "S")
	if !ok {
		return nil, start, false
	}
	setpoint, pos, ok := ParseFloat(line, pos)
	if !ok {
		return nil, start, false
	}
	return SetLidTemperature{Setpoint: setpoint}, pos, true
}

func (SetLidTemperature) WriteResponse(dst []byte) (int, bool) {
	return writeString(dst, "M140 OK\n")
}

// DeactivateLid is M108 — turn off the lid heater.
type DeactivateLid struct{}

func (DeactivateLid) isCommand() {}

func ParseDeactivateLid(line []byte, start int) (Command, int, bool) {
	pos, ok := PrefixMatches(line, start, "M108")
	if !ok {
		return nil, start, false
	}
	return DeactivateLid{}, pos, true
}

func (DeactivateLid) WriteResponse(dst []byte) (int, bool) {
	return writeString(dst, "M108 OK\n")
}

// DeactivateAll is M18 — deactivate every thermal sub-task; host-comms waits
// for both plate and lid acks before replying once (spec.md §4.4).
type DeactivateAll struct{}

func (DeactivateAll) isCommand() {}

func ParseDeactivateAll(line []byte, start int) (Command, int, bool) {
	pos, ok := PrefixMatches(line, start, "M18")
	if !ok {
		return nil, start, false
	}
	return DeactivateAll{}, pos, true
}

func (DeactivateAll) WriteResponse(dst []byte) (int, bool) {
	return writeString(dst, "M18 OK\n")
}

// GetDeviceInfo is M115 — report firmware/hardware version and serial no.
type GetDeviceInfo struct{}

func (GetDeviceInfo) isCommand() {}

func ParseGetDeviceInfo(line []byte, start int) (Command, int, bool) {
	pos, ok := PrefixMatches(line, start, "M115")
	if !ok {
		return nil, start, false
	}
	return GetDeviceInfo{}, pos, true
}

// GetDeviceInfoResponse carries the asynchronous device-info reply data.
type GetDeviceInfoResponse struct {
	FirmwareVersion string
	HardwareVersion string
	SerialNumber    string
}

func WriteGetDeviceInfoResponse(dst []byte, r GetDeviceInfoResponse) (int, bool) {
	return writeString(dst, fmt.Sprintf("M115 FW:%s HW:%s SerialNo:%s OK\n",
		r.FirmwareVersion, r.HardwareVersion, r.SerialNumber))
}

// SetSerialNumber is M996 <23-char-sn> — persist a new serial number.
type SetSerialNumber struct {
	SerialNumber string
}

func (SetSerialNumber) isCommand() {}

func ParseSetSerialNumber(line []byte, start int) (Command, int, bool) {
	pos, ok := PrefixMatches(line, start, "M996")
	if !ok {
		return nil, start, false
	}
	pos = gobbleWhitespace(line, pos)
	tokenStart := pos
	for pos < len(line) && !isSpace(line[pos]) {
		pos++
	}
	if pos == tokenStart {
		return nil, start, false
	}
	return SetSerialNumber{SerialNumber: string(line[tokenStart:pos])}, pos, true
}

func (SetSerialNumber) WriteResponse(dst []byte) (int, bool) {
	return writeString(dst, "M996 OK\n")
}

// SetSolenoid is G28.D 0|1 — actuate the lid solenoid.
type SetSolenoid struct {
	Engage bool
}

func (SetSolenoid) isCommand() {}

func ParseSetSolenoid(line []byte, start int) (Command, int, bool) {
	pos, ok := PrefixMatches(line, start, "G28.D")
	if !ok {
		return nil, start, false
	}
	pos = gobbleWhitespace(line, pos)
	val, pos, ok := ParseInt(line, pos)
	if !ok {
		return nil, start, false
	}
	return SetSolenoid{Engage: val != 0}, pos, true
}

func (SetSolenoid) WriteResponse(dst []byte) (int, bool) {
	return writeString(dst, "G28.D OK\n")
}

// EnterBootloader is "dfu" or M112 — request cooperative shutdown into the
// bootloader (tasks/system §4.4's three-slot prep cache).
type EnterBootloader struct{}

func (EnterBootloader) isCommand() {}

func ParseEnterBootloader(line []byte, start int) (Command, int, bool) {
	if pos, ok := PrefixMatches(line, start, "dfu"); ok {
		return EnterBootloader{}, pos, true
	}
	if pos, ok := PrefixMatches(line, start, "M112"); ok {
		return EnterBootloader{}, pos, true
	}
	return nil, start, false
}

func (EnterBootloader) WriteResponse(dst []byte) (int, bool) {
	return writeString(dst, "M112 OK\n")
}

// BoardRevisionProbe is M900.D — thermocycler board-revision pin probe.
type BoardRevisionProbe struct{}

func (BoardRevisionProbe) isCommand() {}

func ParseBoardRevisionProbe(line []byte, start int) (Command, int, bool) {
	pos, ok := PrefixMatches(line, start, "M900.D")
	if !ok {
		return nil, start, false
	}
	return BoardRevisionProbe{}, pos, true
}

// BoardRevisionProbeResponse carries the pin-pattern-derived revision code.
type BoardRevisionProbeResponse struct {
	Revision int
}

func WriteBoardRevisionProbeResponse(dst []byte, r BoardRevisionProbeResponse) (int, bool) {
	return writeString(dst, fmt.Sprintf("M900.D C:%d OK\n", r.Revision))
}

// writeString copies s into dst, truncating if dst is too small. It reports
// how many bytes were written and whether the full string fit; the tx
// overflow scenario in spec.md §8 relies on the truncation, not an error.
func writeString(dst []byte, s string) (int, bool) {
	n := copy(dst, s)
	return n, n == len(s)
}

// AllRecognizers returns the default recognizer set in the priority order
// host-comms installs into its GroupParser. Longer/more specific prefixes
// that share a leading literal with a shorter command (G28.D before a
// hypothetical G28, M900.D is unambiguous against M- commands) are ordered
// first to keep the "first match wins" rule from mis-firing.
func AllRecognizers() []Recognizer {
	return []Recognizer{
		ParseSetRPM,
		ParseGetRPM,
		ParseSetTemperature,
		ParseGetTemperature,
		ParseSetLidTemperature,
		ParseDeactivateLid,
		ParseDeactivateAll,
		ParseGetDeviceInfo,
		ParseSetSerialNumber,
		ParseSetSolenoid,
		ParseEnterBootloader,
		ParseBoardRevisionProbe,
	}
}
