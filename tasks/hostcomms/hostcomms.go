// Package hostcomms implements the stateful reply formatter described in
// spec.md §4.4: it drives a gcode.GroupParser over incoming bytes, allocates
// ack-cache ids to correlate outgoing commands with their eventual replies,
// and formats every wire-visible reply — acks, async data responses, and
// the ERRxxx error surface — exactly per spec.md §6/§8.
package hostcomms

import (
	"labctrl/ackcache"
	"labctrl/aggregator"
	"labctrl/errorcode"
	"labctrl/gcode"
	"labctrl/messages"
)

const (
	defaultCacheSize           = 16
	defaultDeactivateCacheSize = 4
)

// ackEntry is what the cache stores per in-flight command: enough to format
// its own ack-only reply once the owning task's AcknowledgePrevious arrives.
type ackEntry struct {
	cmd gcode.Command
}

// deactivateEntry tracks a single M18 waiting on acks from more than one
// thermal sub-task before it can reply once (spec.md §4.4). originalID is
// the id the host originally allocated for the M18 command itself, used to
// format its stored WriteResponse once both sub-acks land.
type deactivateEntry struct {
	originalID uint32
	remaining  int
	errCode    errorcode.Code
}

// Task is the host-comms state machine. It has no goroutine of its own in
// this package; kernel wires it to a mailbox and pumps messages into it.
type Task struct {
	parser          *gcode.GroupParser
	cache           *ackcache.Cache[ackEntry]
	deactivateCache *ackcache.Cache[deactivateEntry]
	agg             *aggregator.Aggregator

	selfTag         aggregator.Tag
	thermalPlateTag aggregator.Tag
	thermalLidTag   aggregator.Tag
	motorTag        aggregator.Tag
	systemTag       aggregator.Tag

	forceDisconnected bool
}

// New builds a host-comms task routing newly parsed commands to the given
// mailbox tags through agg. selfTag is the tag this task is registered
// under, stamped onto outgoing DeactivateMessages so the owning sub-task
// knows to route its DeactivateAck back here.
func New(agg *aggregator.Aggregator, selfTag, thermalPlateTag, thermalLidTag, motorTag, systemTag aggregator.Tag) *Task {
	return &Task{
		parser:          gcode.NewGroupParser(gcode.AllRecognizers()...),
		cache:           ackcache.New[ackEntry](defaultCacheSize),
		deactivateCache: ackcache.New[deactivateEntry](defaultDeactivateCacheSize),
		agg:             agg,
		selfTag:         selfTag,
		thermalPlateTag: thermalPlateTag,
		thermalLidTag:   thermalLidTag,
		motorTag:        motorTag,
		systemTag:       systemTag,
	}
}

// writeOrOverflow writes a formatted reply using write, falling back to a
// (possibly truncated) USB_TX_OVERRUN line if the reply does not fit in dst.
// It returns the bytes actually written and whether the reply fit; false
// means an overflow occurred and the caller should stop writing into dst.
func writeOrOverflow(dst []byte, write func([]byte) (int, bool)) (int, bool) {
	n, ok := write(dst)
	if ok {
		return n, true
	}
	n, _ = errorcode.WriteInto(dst, errorcode.USBTxOverrun)
	return n, false
}

func writeErr(dst []byte, c errorcode.Code) (int, bool) {
	n, ok := errorcode.WriteInto(dst, c)
	return n, ok
}

// HandleIncomingBytes processes one batch of raw bytes per spec.md §4.4: it
// requires a \n or \r in buf (discarding silently otherwise), then repeatedly
// parses and dispatches recognized commands, appending every synchronous
// reply byte into tx starting at offset 0. It returns the slice of tx
// actually written.
func (t *Task) HandleIncomingBytes(buf []byte, tx []byte) []byte {
	if !containsTerminator(buf) {
		return tx[:0]
	}
	pos := 0
	txPos := 0
	for pos < len(buf) {
		result, ok, err := t.parser.ParseAvailable(buf[pos:])
		if !ok && err == nil {
			break // nothing left but whitespace
		}
		if err != nil {
			n, fits := writeOrOverflow(tx[txPos:], func(d []byte) (int, bool) {
				return writeErr(d, errorcode.UnhandledGCode)
			})
			txPos += n
			if !fits {
				return tx[:txPos]
			}
			// Unhandled input consumes the rest of the line; stop here,
			// matching the reference parser's "parse-error consumes to end".
			break
		}
		pos += result.Consumed

		_, n, overflowed := t.dispatch(result.Command, tx[txPos:])
		txPos += n
		if overflowed {
			return tx[:txPos]
		}
	}
	return tx[:txPos]
}

// dispatch allocates a cache id for cmd, builds the matching internal
// message, and sends it to the owning task. It writes a synchronous error
// into dst (GCODE_CACHE_FULL or INTERNAL_QUEUE_FULL) if either step fails.
func (t *Task) dispatch(cmd gcode.Command, dst []byte) (sent bool, written int, overflowed bool) {
	id := t.cache.Add(ackEntry{cmd: cmd})
	if id == 0 {
		n, fits := writeOrOverflow(dst, func(d []byte) (int, bool) { return writeErr(d, errorcode.GCodeCacheFull) })
		return false, n, !fits
	}

	var ok bool
	switch c := cmd.(type) {
	case gcode.SetRPM:
		ok = t.agg.SendTag(t.motorTag, messages.SetRPMMessage{ID: id, RPM: c.RPM})
	case gcode.GetRPM:
		ok = t.agg.SendTag(t.motorTag, messages.GetRPMMessage{ID: id})
	case gcode.SetTemperature:
		ok = t.agg.SendTag(t.thermalPlateTag, messages.SetTemperatureMessage{ID: id, Setpoint: c.Setpoint, HoldSeconds: c.HoldSeconds, HasHold: c.HasHold})
	case gcode.GetTemperature:
		ok = t.agg.SendTag(t.thermalPlateTag, messages.GetTemperatureMessage{ID: id})
	case gcode.SetLidTemperature:
		ok = t.agg.SendTag(t.thermalLidTag, messages.SetLidTemperatureMessage{ID: id, Setpoint: c.Setpoint})
	case gcode.DeactivateLid:
		ok = t.agg.SendTag(t.thermalLidTag, messages.DeactivateMessage{ID: id, ReturnTag: int(t.selfTag)})
	case gcode.DeactivateAll:
		return t.dispatchDeactivateAll(id, dst)
	case gcode.GetDeviceInfo:
		ok = t.agg.SendTag(t.systemTag, messages.GetSystemInfoMessage{ID: id})
	case gcode.SetSerialNumber:
		ok = t.agg.SendTag(t.systemTag, messages.SetSerialNumberMessage{ID: id, SerialNumber: c.SerialNumber})
	case gcode.SetSolenoid:
		ok = t.agg.SendTag(t.motorTag, messages.SetSolenoidMessage{ID: id, Engage: c.Engage})
	case gcode.EnterBootloader:
		ok = t.agg.SendTag(t.systemTag, messages.EnterBootloaderMessage{ID: id})
	case gcode.BoardRevisionProbe:
		ok = t.agg.SendTag(t.systemTag, messages.BoardRevisionProbeMessage{ID: id})
	default:
		ok = false
	}

	if !ok {
		t.cache.RemoveIfPresent(id)
		n, fits := writeOrOverflow(dst, func(d []byte) (int, bool) { return writeErr(d, errorcode.InternalQueueFull) })
		return false, n, !fits
	}
	return true, 0, false
}

// dispatchDeactivateAll seeds the secondary cache with 2 pending acks (plate
// and lid) before fanning the deactivate out to both mailboxes.
func (t *Task) dispatchDeactivateAll(id uint32, dst []byte) (sent bool, written int, overflowed bool) {
	dID := t.deactivateCache.Add(deactivateEntry{originalID: id, remaining: 2})
	if dID == 0 {
		t.cache.RemoveIfPresent(id)
		n, fits := writeOrOverflow(dst, func(d []byte) (int, bool) { return writeErr(d, errorcode.GCodeCacheFull) })
		return false, n, !fits
	}
	plateOK := t.agg.SendTag(t.thermalPlateTag, messages.DeactivateMessage{ID: dID, ReturnTag: int(t.selfTag)})
	lidOK := t.agg.SendTag(t.thermalLidTag, messages.DeactivateMessage{ID: dID, ReturnTag: int(t.selfTag)})
	if !plateOK || !lidOK {
		t.cache.RemoveIfPresent(id)
		t.deactivateCache.RemoveIfPresent(dID)
		n, fits := writeOrOverflow(dst, func(d []byte) (int, bool) { return writeErr(d, errorcode.InternalQueueFull) })
		return false, n, !fits
	}
	return true, 0, false
}

func containsTerminator(buf []byte) bool {
	for _, b := range buf {
		if b == '\n' || b == '\r' {
			return true
		}
	}
	return false
}

// AcknowledgePrevious closes a cache entry for an ack-only command and
// formats its reply into dst, per spec.md §4.4. It returns the bytes
// written.
func (t *Task) AcknowledgePrevious(msg messages.AcknowledgePrevious, dst []byte) []byte {
	entry, ok := t.cache.RemoveIfPresent(msg.RespondingToID)
	if !ok {
		n, _ := writeErr(dst, errorcode.BadMessageAcknowledgement)
		return dst[:n]
	}
	if msg.WithError != uint16(errorcode.NoError) {
		n, _ := writeErr(dst, errorcode.Code(msg.WithError))
		return dst[:n]
	}
	n, _ := writeOrOverflow(dst, entry.cmd.(interface {
		WriteResponse([]byte) (int, bool)
	}).WriteResponse)
	return dst[:n]
}

// AcknowledgeDeactivate reaps one of the two pending deactivate acks for a
// DeactivateAll; once both have landed it formats the single final M18
// reply into dst. It returns (written, done) where done is false while a
// sibling ack is still outstanding, matching "single final ack after both
// thermal sub-tasks acknowledge" (spec.md §6).
func (t *Task) AcknowledgeDeactivate(dID uint32, withError errorcode.Code, dst []byte) (out []byte, done bool) {
	entry, ok := t.deactivateCache.Peek(dID)
	if !ok {
		n, _ := writeErr(dst, errorcode.BadMessageAcknowledgement)
		return dst[:n], true
	}
	if withError != errorcode.NoError {
		entry.errCode = withError
	}
	entry.remaining--
	if entry.remaining > 0 {
		t.deactivateCache.Update(dID, entry)
		return nil, false
	}
	t.deactivateCache.RemoveIfPresent(dID)
	t.cache.RemoveIfPresent(entry.originalID)
	if entry.errCode != errorcode.NoError {
		n, _ := writeErr(dst, entry.errCode)
		return dst[:n], true
	}
	n, _ := writeOrOverflow(dst, gcode.DeactivateAll{}.WriteResponse)
	return dst[:n], true
}

// HandleGetTemperatureResponse formats the async data reply for a prior
// M105, reaping the original cache entry by id.
func (t *Task) HandleGetTemperatureResponse(msg messages.GetTemperatureResponse, dst []byte) []byte {
	if _, ok := t.cache.RemoveIfPresent(msg.ID); !ok {
		n, _ := writeErr(dst, errorcode.BadMessageAcknowledgement)
		return dst[:n]
	}
	n, _ := writeOrOverflow(dst, func(d []byte) (int, bool) {
		return gcode.WriteGetTemperatureResponse(d, gcode.GetTemperatureResponse{
			Set: msg.Set, Current: msg.Current,
			RemainingSeconds: msg.RemainingSeconds, TotalSeconds: msg.TotalSeconds,
			AtTarget: msg.AtTarget,
		})
	})
	return dst[:n]
}

// HandleGetRPMResponse formats the async data reply for a prior M123.
func (t *Task) HandleGetRPMResponse(msg messages.GetRPMResponse, dst []byte) []byte {
	if _, ok := t.cache.RemoveIfPresent(msg.ID); !ok {
		n, _ := writeErr(dst, errorcode.BadMessageAcknowledgement)
		return dst[:n]
	}
	n, _ := writeOrOverflow(dst, func(d []byte) (int, bool) {
		return gcode.WriteGetRPMResponse(d, gcode.GetRPMResponse{CurrentRPM: msg.CurrentRPM, SetRPM: msg.SetRPM})
	})
	return dst[:n]
}

// HandleGetSystemInfoResponse formats the async data reply for a prior M115.
func (t *Task) HandleGetSystemInfoResponse(msg messages.GetSystemInfoResponse, dst []byte) []byte {
	if _, ok := t.cache.RemoveIfPresent(msg.ID); !ok {
		n, _ := writeErr(dst, errorcode.BadMessageAcknowledgement)
		return dst[:n]
	}
	n, _ := writeOrOverflow(dst, func(d []byte) (int, bool) {
		return gcode.WriteGetDeviceInfoResponse(d, gcode.GetDeviceInfoResponse{
			FirmwareVersion: msg.FirmwareVersion, HardwareVersion: msg.HardwareVersion, SerialNumber: msg.SerialNumber,
		})
	})
	return dst[:n]
}

// HandleBoardRevisionProbeResponse formats the async data reply for a prior
// M900.D.
func (t *Task) HandleBoardRevisionProbeResponse(msg messages.BoardRevisionProbeResponse, dst []byte) []byte {
	if _, ok := t.cache.RemoveIfPresent(msg.ID); !ok {
		n, _ := writeErr(dst, errorcode.BadMessageAcknowledgement)
		return dst[:n]
	}
	n, _ := writeOrOverflow(dst, func(d []byte) (int, bool) {
		return gcode.WriteBoardRevisionProbeResponse(d, gcode.BoardRevisionProbeResponse{Revision: msg.Revision})
	})
	return dst[:n]
}

// Ack routes a generic completion (DeactivateAck, or any other
// id-correlated sub-task reply) to whichever internal cache allocated id:
// the ordinary per-command cache first, then the DeactivateAll secondary
// cache. It writes nothing and reports handled == false if id matches
// neither, so a kernel can fall through to another task's mailbox (e.g. the
// system task's bootloader-prep cache) instead of misreporting a bad ack.
func (t *Task) Ack(id uint32, withError errorcode.Code, dst []byte) (out []byte, handled bool) {
	if _, ok := t.cache.Peek(id); ok {
		b := t.AcknowledgePrevious(messages.AcknowledgePrevious{RespondingToID: id, WithError: uint16(withError)}, dst)
		return b, true
	}
	if _, ok := t.deactivateCache.Peek(id); ok {
		b, _ := t.AcknowledgeDeactivate(id, withError, dst)
		return b, true
	}
	return nil, false
}

// HandleForceUSBDisconnect latches the transport-disconnect flag used by the
// system task's cooperative-shutdown sequence (spec.md §9), then sends a
// DeactivateAck back to msg.ReturnAddress so the originating task (normally
// the system task) can reap its prep-cache slot. It writes nothing to the
// wire.
func (t *Task) HandleForceUSBDisconnect(msg messages.ForceUSBDisconnect) {
	t.forceDisconnected = true
	t.agg.SendTag(aggregator.Tag(msg.ReturnAddress), messages.DeactivateAck{ID: msg.ID})
}

// ForceDisconnected reports whether a ForceUSBDisconnect has been latched.
func (t *Task) ForceDisconnected() bool {
	return t.forceDisconnected
}
