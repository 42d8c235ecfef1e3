// Package motor implements the spindle and long-running motion state
// machines described in spec.md §4.4: immediate SetRPM/GetRPM handling, and
// home/open-lid/plate-lift sequences driven by self-addressed CheckStatus
// messages rather than a blocking sleep inside a handler (spec.md §9).
package motor

import (
	"labctrl/aggregator"
	"labctrl/errorcode"
	"labctrl/messages"
	"labctrl/policy"
)

// MaxCheckStatusRetries bounds how many times a long-running operation polls
// before giving up with a TIMEOUT, matching the "bounded retries" contract
// in spec.md §4.4.
const MaxCheckStatusRetries = 50

// operation names a long-running sequence in progress.
type operation int

const (
	opNone operation = iota
	opHome
	opOpenLid
	opPlateLift
)

// Task is the motor controller state machine.
type Task struct {
	pol policy.MotorPolicy
	agg *aggregator.Aggregator
	selfTag aggregator.Tag

	inFlight       operation
	inFlightID     uint32
	setRPM         int32
}

// New builds a motor task. selfTag is the tag this task is registered under
// in agg, used to send itself CheckStatus polls.
func New(pol policy.MotorPolicy, agg *aggregator.Aggregator, selfTag aggregator.Tag) *Task {
	return &Task{pol: pol, agg: agg, selfTag: selfTag}
}

// HandleSetRPM sets the spindle speed immediately; it does not participate
// in the long-running-operation state machine.
func (t *Task) HandleSetRPM(msg messages.SetRPMMessage) {
	t.setRPM = msg.RPM
	t.pol.SetRPM(msg.RPM)
}

// HandleGetRPM returns the current/target spindle speed synchronously.
func (t *Task) HandleGetRPM(msg messages.GetRPMMessage) messages.GetRPMResponse {
	return messages.GetRPMResponse{ID: msg.ID, CurrentRPM: t.pol.CurrentRPM(), SetRPM: t.setRPM}
}

// HandleSetSolenoid actuates the solenoid immediately.
func (t *Task) HandleSetSolenoid(msg messages.SetSolenoidMessage) {
	t.pol.SetSolenoid(msg.Engage)
}

// HandleHome begins a homing sequence, returning false if another
// long-running operation is already in flight.
func (t *Task) HandleHome(msg messages.HomeMessage) bool {
	if t.inFlight != opNone {
		return false
	}
	t.inFlight = opHome
	t.inFlightID = msg.ID
	t.pol.StartHome()
	t.sendCheckStatus(msg.ID, 0)
	return true
}

// HandleOpenLid begins an open-lid sequence.
func (t *Task) HandleOpenLid(msg messages.OpenLidMessage) bool {
	if t.inFlight != opNone {
		return false
	}
	t.inFlight = opOpenLid
	t.inFlightID = msg.ID
	t.pol.StartOpenLid()
	t.sendCheckStatus(msg.ID, 0)
	return true
}

// HandlePlateLift begins a plate-lift sequence.
func (t *Task) HandlePlateLift(msg messages.PlateLiftMessage) bool {
	if t.inFlight != opNone {
		return false
	}
	t.inFlight = opPlateLift
	t.inFlightID = msg.ID
	t.pol.StartPlateLift()
	t.sendCheckStatus(msg.ID, 0)
	return true
}

func (t *Task) sendCheckStatus(id uint32, attempt int) {
	t.agg.SendTag(t.selfTag, messages.CheckStatus{RespondingToID: id, Attempt: attempt})
}

// CheckStatusResult is what HandleCheckStatus reports back to the caller
// (normally host-comms, via an AcknowledgePrevious on RespondingToID).
type CheckStatusResult struct {
	RespondingToID uint32
	Done           bool
	Error          errorcode.Code
}

// HandleCheckStatus polls the in-flight operation, if any. It returns
// Done == false while the operation should keep polling, having already
// queued the next CheckStatus (Attempt + 1) to this task's own mailbox;
// Done == true once the operation has completed, stalled, or timed out.
func (t *Task) HandleCheckStatus(msg messages.CheckStatus) CheckStatusResult {
	if t.inFlight == opNone || msg.RespondingToID != t.inFlightID {
		return CheckStatusResult{RespondingToID: msg.RespondingToID, Done: true, Error: errorcode.BadMessageAcknowledgement}
	}

	var done, stalled bool
	switch t.inFlight {
	case opHome:
		done, stalled = t.pol.HomeComplete()
	case opOpenLid:
		done, stalled = t.pol.OpenLidComplete()
	case opPlateLift:
		done, stalled = t.pol.PlateLiftComplete()
	}

	if stalled {
		t.finish()
		return CheckStatusResult{RespondingToID: msg.RespondingToID, Done: true, Error: errorcode.MotorStall}
	}
	if done {
		t.finish()
		return CheckStatusResult{RespondingToID: msg.RespondingToID, Done: true, Error: errorcode.NoError}
	}
	if msg.Attempt+1 >= MaxCheckStatusRetries {
		t.finish()
		return CheckStatusResult{RespondingToID: msg.RespondingToID, Done: true, Error: errorcode.MotorTimeout}
	}
	t.sendCheckStatus(msg.RespondingToID, msg.Attempt+1)
	return CheckStatusResult{RespondingToID: msg.RespondingToID, Done: false}
}

func (t *Task) finish() {
	t.inFlight = opNone
	t.inFlightID = 0
}

// Busy reports whether a long-running operation is currently in flight.
func (t *Task) Busy() bool {
	return t.inFlight != opNone
}
