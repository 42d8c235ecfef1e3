// Package errorcode defines the ERRxxx wire-format error surface shared by
// every task in the kernel.
package errorcode

import "fmt"

// Code is a 3-digit error code as specified in the wire protocol.
type Code uint16

const (
	NoError Code = 0

	USBTxOverrun             Code = 1
	USBRxOverrun             Code = 2
	UnhandledGCode           Code = 3
	GCodeCacheFull           Code = 4
	BadMessageAcknowledgement Code = 5
	InternalQueueFull        Code = 6

	SerialNumberHAL Code = 302

	ThermalPlateBusy Code = 401
	PeltierError     Code = 402
	HeatsinkFan      Code = 403
	LidBusy          Code = 404
	HeaterError      Code = 405

	ThermistorOutOfRangeLow  Code = 410
	ThermistorOutOfRangeHigh Code = 411
	ThermistorShort          Code = 412

	LidMotorBusy Code = 501
	MotorTimeout Code = 502
	MotorStall   Code = 503
	SolenoidFault Code = 504

	LidClosed Code = 507
)

var descriptions = map[Code]string{
	NoError:                   "no error",
	USBTxOverrun:              "tx buffer overrun",
	USBRxOverrun:              "rx buffer overrun",
	UnhandledGCode:            "unhandled gcode",
	GCodeCacheFull:            "gcode cache full",
	BadMessageAcknowledgement: "bad message acknowledgement",
	InternalQueueFull:         "internal queue full",
	SerialNumberHAL:           "serial number hal error",
	ThermalPlateBusy:          "thermal plate busy",
	PeltierError:              "peltier error",
	HeatsinkFan:               "heatsink fan error",
	LidBusy:                   "lid busy",
	HeaterError:               "heater error",
	ThermistorOutOfRangeLow:   "thermistor out of range, low",
	ThermistorOutOfRangeHigh:  "thermistor out of range, high",
	ThermistorShort:           "thermistor shorted",
	LidMotorBusy:              "lid motor busy",
	MotorTimeout:              "motor timeout",
	MotorStall:                "motor stall",
	SolenoidFault:             "solenoid fault",
	LidClosed:                 "lid closed",
}

// Description returns the human-readable text for a code, or "unknown error"
// if the code has not been registered.
func (c Code) Description() string {
	if d, ok := descriptions[c]; ok {
		return d
	}
	return "unknown error"
}

// String formats the code the way it appears on the wire: ERR003:unhandled gcode
func (c Code) String() string {
	return fmt.Sprintf("ERR%03d:%s", uint16(c), c.Description())
}

// WriteInto writes the wire-format error line, including its trailing newline, into
// dst, truncating if dst is too short. It returns the number of bytes written
// and whether the full line fit.
func WriteInto(dst []byte, c Code) (int, bool) {
	line := c.String() + "\n"
	n := copy(dst, line)
	return n, n == len(line)
}
