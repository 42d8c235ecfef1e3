// Package system implements the board-management task from spec.md §4.4:
// cooperative bootloader entry via a three-slot prep ack cache, serial
// number persistence, front-button/LED bookkeeping, and the board-revision
// probe used by the thermocycler module. The prep cache has three entries:
// plate deactivate, lid deactivate, and force USB disconnect. The motor
// task is not part of the sequence, so motion is not stopped before the
// bootloader is entered.
package system

import (
	"labctrl/ackcache"
	"labctrl/aggregator"
	"labctrl/eeprom"
	"labctrl/errorcode"
	"labctrl/messages"
	"labctrl/policy"
)

// prepEntry is what the bootloader-prep cache stashes: just enough to know
// which of the three sub-systems this slot is waiting on.
type prepEntry struct {
	name string
}

const bootloaderPrepSlots = 3

// Task is the system/UI state machine.
type Task struct {
	pol policy.SystemPolicy
	agg *aggregator.Aggregator

	selfTag         aggregator.Tag
	thermalPlateTag aggregator.Tag
	thermalLidTag   aggregator.Tag
	motorTag        aggregator.Tag
	hostCommsTag    aggregator.Tag

	prepCache          *ackcache.Cache[prepEntry]
	bootloaderOriginal uint32
	ledOn              bool
}

// New builds a system task. selfTag is the aggregator tag this task is
// registered under, stamped onto outgoing DeactivateMessage/ForceUSBDisconnect
// requests so the replying task knows where to route the ack back to.
func New(pol policy.SystemPolicy, agg *aggregator.Aggregator, selfTag, thermalPlateTag, thermalLidTag, motorTag, hostCommsTag aggregator.Tag) *Task {
	return &Task{
		pol:             pol,
		agg:             agg,
		selfTag:         selfTag,
		thermalPlateTag: thermalPlateTag,
		thermalLidTag:   thermalLidTag,
		motorTag:        motorTag,
		hostCommsTag:    hostCommsTag,
		prepCache:       ackcache.New[prepEntry](bootloaderPrepSlots),
	}
}

// HandleEnterBootloader begins the cooperative shutdown sequence: it asks
// the plate and lid thermal tasks to deactivate and host-comms to force a
// USB disconnect, and only calls into the policy's EnterBootloader once all
// three have acknowledged (HandlePrepAck). The motor task is not asked to
// stop.
func (t *Task) HandleEnterBootloader(msg messages.EnterBootloaderMessage) bool {
	t.bootloaderOriginal = msg.ID

	plateID := t.prepCache.Add(prepEntry{name: "plate"})
	lidID := t.prepCache.Add(prepEntry{name: "lid"})
	usbID := t.prepCache.Add(prepEntry{name: "usb"})
	if plateID == 0 || lidID == 0 || usbID == 0 {
		t.prepCache.Clear()
		return false
	}

	okPlate := t.agg.SendTag(t.thermalPlateTag, messages.DeactivateMessage{ID: plateID, ReturnTag: int(t.selfTag)})
	okLid := t.agg.SendTag(t.thermalLidTag, messages.DeactivateMessage{ID: lidID, ReturnTag: int(t.selfTag)})
	okUSB := t.agg.SendTag(t.hostCommsTag, messages.ForceUSBDisconnect{ID: usbID, ReturnAddress: int(t.selfTag)})
	if !okPlate || !okLid || !okUSB {
		t.prepCache.Clear()
		return false
	}

	// Ack the host's M112 immediately, per spec.md §4.4: the actual
	// policy.EnterBootloader() call happens later, once HandlePrepAck has
	// drained all three prep-cache slots.
	t.agg.SendTag(t.hostCommsTag, messages.AcknowledgePrevious{RespondingToID: msg.ID})
	return true
}

// HandlePrepAck reaps one of the three bootloader-prep slots. Once the
// cache is empty, it calls the policy's EnterBootloader.
func (t *Task) HandlePrepAck(id uint32) {
	t.prepCache.RemoveIfPresent(id)
	if t.prepCache.Empty() && t.bootloaderOriginal != 0 {
		t.pol.EnterBootloader()
		t.bootloaderOriginal = 0
	}
}

// HandleSetSerialNumber persists a new serial number via the policy,
// surfacing ERR302 on a simulated EEPROM failure (spec.md §6). The value is
// round-tripped through the fixed-width EEPROM byte layout (zero-padded,
// then trimmed back) before it ever reaches the policy, so what gets
// persisted is exactly what a firmware upgrade would read back.
func (t *Task) HandleSetSerialNumber(msg messages.SetSerialNumberMessage) errorcode.Code {
	encoded, err := eeprom.EncodeSerialNumber(msg.SerialNumber)
	if err != nil {
		return errorcode.SerialNumberHAL
	}
	if err := t.pol.WriteSerialNumber(eeprom.DecodeSerialNumber(encoded)); err != nil {
		return errorcode.SerialNumberHAL
	}
	return errorcode.NoError
}

// LoadOffsetTable reads the persisted per-thermistor offset block and
// decodes it. It returns a zero-value OffsetTable (no offsets) if nothing
// has been written yet or the policy read fails.
func (t *Task) LoadOffsetTable() eeprom.OffsetTable {
	raw, err := t.pol.ReadOffsetTable()
	if err != nil || len(raw) == 0 {
		return eeprom.OffsetTable{}
	}
	return eeprom.DecodeOffsets(raw)
}

// SaveOffsetTable encodes ot and persists it, idempotently (spec.md §3).
func (t *Task) SaveOffsetTable(ot eeprom.OffsetTable) error {
	return t.pol.WriteOffsetTable(eeprom.EncodeOffsets(ot))
}

// HandleGetSystemInfo answers with firmware/hardware version and the
// persisted serial number.
func (t *Task) HandleGetSystemInfo(msg messages.GetSystemInfoMessage) messages.GetSystemInfoResponse {
	sn, _ := t.pol.ReadSerialNumber()
	return messages.GetSystemInfoResponse{
		ID:              msg.ID,
		FirmwareVersion: t.pol.FirmwareVersion(),
		HardwareVersion: t.pol.HardwareVersion(),
		SerialNumber:    sn,
	}
}

// boardRevisionTable mirrors the reference firmware's expected pin patterns
// per revision (board_revision.cpp): all-floating is rev 1, all-pulldown is
// rev 2; anything else is unrecognized.
var boardRevisionTable = []struct {
	pins     [3]policy.PinState
	revision int
}{
	{[3]policy.PinState{policy.PinFloating, policy.PinFloating, policy.PinFloating}, 1},
	{[3]policy.PinState{policy.PinPulledDown, policy.PinPulledDown, policy.PinPulledDown}, 2},
}

// HandleBoardRevisionProbe reads the revision-strap pins through the policy
// and matches them against the known patterns.
func (t *Task) HandleBoardRevisionProbe(msg messages.BoardRevisionProbeMessage) messages.BoardRevisionProbeResponse {
	pins := t.pol.BoardRevisionPins()
	for _, row := range boardRevisionTable {
		if row.pins == pins {
			return messages.BoardRevisionProbeResponse{ID: msg.ID, Revision: row.revision}
		}
	}
	return messages.BoardRevisionProbeResponse{ID: msg.ID, Revision: 0xFF}
}

// HandleFrontButtonPress toggles the LED, the simplified bookkeeping
// spec.md §4.4 carries forward from the front-panel UI concern (the PWM/DMA
// detail behind it is a policy matter, out of scope here).
func (t *Task) HandleFrontButtonPress() {
	t.ledOn = !t.ledOn
	t.pol.SetLED(t.ledOn)
}

// LEDOn reports the system task's own bookkeeping of the LED state.
func (t *Task) LEDOn() bool {
	return t.ledOn
}
