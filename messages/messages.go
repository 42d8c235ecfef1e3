// Package messages declares the message variants exchanged between tasks
// through the aggregator, grounded on spec.md §3's tagged-variant data model.
// Each task package declares its own marker interface (HostCommsMessage,
// ThermalMessage, MotorMessage, SystemMessage); a struct here may implement
// more than one marker when the same message is legitimately routable to
// more than one mailbox kind.
package messages

// HostCommsMessage is implemented by every message deliverable to the
// host-comms task's mailbox.
type HostCommsMessage interface{ isHostCommsMessage() }

// ThermalMessage is implemented by every message deliverable to a thermal
// (plate or lid) task's mailbox.
type ThermalMessage interface{ isThermalMessage() }

// MotorMessage is implemented by every message deliverable to the motor
// task's mailbox.
type MotorMessage interface{ isMotorMessage() }

// SystemMessage is implemented by every message deliverable to the system
// task's mailbox.
type SystemMessage interface{ isSystemMessage() }

// IncomingBytes carries raw bytes read off the transport into host-comms.
type IncomingBytes struct {
	Buffer []byte
}

func (IncomingBytes) isHostCommsMessage() {}

// AcknowledgePrevious closes the ack-cache entry responding_to_id. WithError
// is errorcode.NoError on success.
type AcknowledgePrevious struct {
	RespondingToID uint32
	WithError      uint16
}

func (AcknowledgePrevious) isHostCommsMessage() {}

// ForceUSBDisconnect is sent to host-comms as part of the system task's
// bootloader-entry cooperative shutdown (spec.md §4.4, §9).
type ForceUSBDisconnect struct {
	ID            uint32
	ReturnAddress int
}

func (ForceUSBDisconnect) isHostCommsMessage() {}
func (ForceUSBDisconnect) isSystemMessage()    {}

// AsyncError is an unsolicited error report not tied to a specific request
// (spec.md §7's "asynchronous domain errors").
type AsyncError struct {
	Code uint16
}

func (AsyncError) isHostCommsMessage() {}

// SetRPMMessage is the internal counterpart of gcode.SetRPM, addressed to the
// motor task.
type SetRPMMessage struct {
	ID  uint32
	RPM int32
}

func (SetRPMMessage) isMotorMessage() {}

// GetRPMMessage requests the motor task's current/target spindle speed.
type GetRPMMessage struct {
	ID uint32
}

func (GetRPMMessage) isMotorMessage() {}

// GetRPMResponse answers a GetRPMMessage. It is sent straight to host-comms,
// which reaps the original M123 cache entry by ID and formats the reply.
type GetRPMResponse struct {
	ID         uint32
	CurrentRPM int32
	SetRPM     int32
}

func (GetRPMResponse) isHostCommsMessage() {}

// SetTemperatureMessage is the internal counterpart of gcode.SetTemperature.
type SetTemperatureMessage struct {
	ID          uint32
	Setpoint    float64
	HoldSeconds int32
	HasHold     bool
}

func (SetTemperatureMessage) isThermalMessage() {}

// GetTemperatureMessage requests a thermal task's current status.
type GetTemperatureMessage struct {
	ID uint32
}

func (GetTemperatureMessage) isThermalMessage() {}

// GetTemperatureResponse answers a GetTemperatureMessage.
type GetTemperatureResponse struct {
	ID               uint32
	Set              float64
	Current          float64
	RemainingSeconds float64
	TotalSeconds     float64
	AtTarget         bool
}

func (GetTemperatureResponse) isHostCommsMessage() {}

// SetLidTemperatureMessage is the internal counterpart of gcode.SetLidTemperature.
type SetLidTemperatureMessage struct {
	ID       uint32
	Setpoint float64
}

func (SetLidTemperatureMessage) isThermalMessage() {}

// DeactivateMessage tells a thermal task to disable its outputs and return
// to IDLE. The motor mailbox also accepts it, but the kernel's motor
// dispatch does not act on it. A single DeactivateAll command fans out to one of these
// per sub-task, coordinated by a secondary cache in hostcomms. ReturnTag
// identifies which mailbox (by aggregator.Tag, carried as a plain int to
// avoid a package import cycle) should receive the matching DeactivateAck —
// hostcomms for an ordinary M18/M108, or the system task for a bootloader
// prep sequence.
type DeactivateMessage struct {
	ID        uint32
	ReturnTag int
}

func (DeactivateMessage) isThermalMessage() {}
func (DeactivateMessage) isMotorMessage()   {}

// DeactivateAck is sent back to ReturnTag once a DeactivateMessage has been
// applied.
type DeactivateAck struct {
	ID uint32
}

func (DeactivateAck) isHostCommsMessage() {}
func (DeactivateAck) isSystemMessage()    {}

// TemperatureReadingComplete is pushed periodically by the ADC policy,
// carrying one raw sample per thermistor channel on the task's board.
type TemperatureReadingComplete struct {
	RawADCSamples []uint16
}

func (TemperatureReadingComplete) isThermalMessage() {}

// UpdatePlateState is thermal's periodic status push to the system task.
type UpdatePlateState struct {
	State string
}

func (UpdatePlateState) isSystemMessage() {}

// UpdateTaskErrorState is thermal's periodic error-bitmap push to the
// system task (latched ERROR is surfaced here, not just on the reply path).
type UpdateTaskErrorState struct {
	Source    string
	ErrorBits uint32
}

func (UpdateTaskErrorState) isSystemMessage() {}

// CheckStatus is the self-addressed message a long-running motor operation
// (home, open-lid, plate-lift) sends to itself to poll completion without
// blocking inside a handler (spec.md §9).
type CheckStatus struct {
	RespondingToID uint32
	Attempt        int
}

func (CheckStatus) isMotorMessage() {}

// HomeMessage starts the homing sequence.
type HomeMessage struct {
	ID uint32
}

func (HomeMessage) isMotorMessage() {}

// OpenLidMessage starts the open-lid sequence.
type OpenLidMessage struct {
	ID uint32
}

func (OpenLidMessage) isMotorMessage() {}

// PlateLiftMessage starts the plate-lift sequence.
type PlateLiftMessage struct {
	ID uint32
}

func (PlateLiftMessage) isMotorMessage() {}

// EnterBootloaderMessage begins the system task's cooperative-shutdown prep
// sequence.
type EnterBootloaderMessage struct {
	ID uint32
}

func (EnterBootloaderMessage) isSystemMessage() {}

// SetSerialNumberMessage persists a new serial number via eeprom.
type SetSerialNumberMessage struct {
	ID           uint32
	SerialNumber string
}

func (SetSerialNumberMessage) isSystemMessage() {}

// GetSystemInfoMessage requests firmware/hardware version and serial number.
type GetSystemInfoMessage struct {
	ID uint32
}

func (GetSystemInfoMessage) isSystemMessage() {}

// GetSystemInfoResponse answers a GetSystemInfoMessage.
type GetSystemInfoResponse struct {
	ID              uint32
	FirmwareVersion string
	HardwareVersion string
	SerialNumber    string
}

func (GetSystemInfoResponse) isHostCommsMessage() {}

// SetSolenoidMessage actuates the lid solenoid.
type SetSolenoidMessage struct {
	ID     uint32
	Engage bool
}

func (SetSolenoidMessage) isMotorMessage() {}

// BoardRevisionProbeMessage requests the thermocycler board-revision pin
// probe result.
type BoardRevisionProbeMessage struct {
	ID uint32
}

func (BoardRevisionProbeMessage) isSystemMessage() {}

// BoardRevisionProbeResponse answers a BoardRevisionProbeMessage.
type BoardRevisionProbeResponse struct {
	ID       uint32
	Revision int
}

func (BoardRevisionProbeResponse) isHostCommsMessage() {}
