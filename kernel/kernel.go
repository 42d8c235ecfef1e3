// Package kernel wires the aggregator and every task's mailbox into a
// runnable system, per spec.md §5: Run starts one goroutine per task (the
// production shape), while StepAll drives every mailbox round-robin on the
// caller's own goroutine for deterministic tests.
package kernel

import (
	"context"
	"time"

	"labctrl/aggregator"
	"labctrl/config"
	"labctrl/eeprom"
	"labctrl/errorcode"
	"labctrl/mailbox"
	"labctrl/messages"
	"labctrl/policy"
	"labctrl/tasks/hostcomms"
	"labctrl/tasks/motor"
	"labctrl/tasks/system"
	"labctrl/tasks/thermal"
)

// Tags assigns one aggregator.Tag per task, fixed for the lifetime of a
// Runtime.
const (
	TagHostComms aggregator.Tag = iota
	TagThermalPlate
	TagThermalLid
	TagMotor
	TagSystem
)

// pollInterval bounds how long a task's run loop blocks waiting on its
// mailbox before re-checking ctx.Done and, for host-comms, the transport.
const pollInterval = 5 * time.Millisecond

// Policies bundles the per-task hardware (or fake) capability sets a
// Runtime is built from.
type Policies struct {
	System policy.SystemPolicy
	Plate  policy.ThermalPolicy
	Lid    policy.ThermalPolicy
	Motor  policy.MotorPolicy
}

// Runtime owns every task, their mailboxes, and the aggregator routing
// messages between them.
type Runtime struct {
	agg       *aggregator.Aggregator
	transport policy.Transport

	hostComms *hostcomms.Task
	plate     *thermal.Task
	lid       *thermal.Task
	motorTask *motor.Task
	system    *system.Task

	hostCommsMB *mailbox.Mailbox[messages.HostCommsMessage]
	plateMB     *mailbox.Mailbox[messages.ThermalMessage]
	lidMB       *mailbox.Mailbox[messages.ThermalMessage]
	motorMB     *mailbox.Mailbox[messages.MotorMessage]
	systemMB    *mailbox.Mailbox[messages.SystemMessage]

	tx []byte
}

// New builds a fully-wired Runtime. plateChannels/lidChannels describe the
// thermistor/heater-output channels for each thermal sub-task (1 for the
// lid, N for the plate on a thermocycler).
func New(cfg config.Config, pol Policies, plateChannels, lidChannels []thermal.Channel, transport policy.Transport) *Runtime {
	agg := aggregator.New(5)

	hostCommsMB := mailbox.New[messages.HostCommsMessage](cfg.Cache.MailboxCapacity)
	plateMB := mailbox.New[messages.ThermalMessage](cfg.Cache.MailboxCapacity)
	lidMB := mailbox.New[messages.ThermalMessage](cfg.Cache.MailboxCapacity)
	motorMB := mailbox.New[messages.MotorMessage](cfg.Cache.MailboxCapacity)
	systemMB := mailbox.New[messages.SystemMessage](cfg.Cache.MailboxCapacity)

	aggregator.RegisterMailbox(agg, TagHostComms, hostCommsMB)
	aggregator.RegisterMailbox(agg, TagThermalPlate, plateMB)
	aggregator.RegisterMailbox(agg, TagThermalLid, lidMB)
	aggregator.RegisterMailbox(agg, TagMotor, motorMB)
	aggregator.RegisterMailbox(agg, TagSystem, systemMB)

	mot := motor.New(pol.Motor, agg, TagMotor)
	sysTask := system.New(pol.System, agg, TagSystem, TagThermalPlate, TagThermalLid, TagMotor, TagHostComms)
	hc := hostcomms.New(agg, TagHostComms, TagThermalPlate, TagThermalLid, TagMotor, TagSystem)

	// Load the persisted per-thermistor offset block, seeding it with
	// identity offsets on a blank board so every channel round-trips
	// through the same EEPROM byte layout from first boot (spec.md §3).
	offsetTable := sysTask.LoadOffsetTable()
	if len(offsetTable.Offsets) == 0 {
		offsetTable.Offsets = make([]eeprom.ThermistorOffset, len(plateChannels)+len(lidChannels))
		for i := range offsetTable.Offsets {
			offsetTable.Offsets[i] = eeprom.IdentityOffset
		}
		sysTask.SaveOffsetTable(offsetTable)
	}

	plate := thermal.New("plate", withOffsets(plateChannels, offsetTable.Offsets, 0), pol.Plate, thermal.PID{
		Kp: cfg.Thermal.PlateKp, Ki: cfg.Thermal.PlateKi, Kd: cfg.Thermal.PlateKd,
		OutputMin: 0, OutputMax: 1,
	})
	plate.Tolerance = cfg.Thermal.AtTargetToleranceC

	lid := thermal.New("lid", withOffsets(lidChannels, offsetTable.Offsets, len(plateChannels)), pol.Lid, thermal.PID{
		Kp: cfg.Thermal.LidKp, Ki: cfg.Thermal.LidKi, Kd: cfg.Thermal.LidKd,
		OutputMin: 0, OutputMax: 1,
	})
	lid.Tolerance = cfg.Thermal.AtTargetToleranceC

	return &Runtime{
		agg:       agg,
		transport: transport,
		hostComms: hc,
		plate:     plate,
		lid:       lid,
		motorTask: mot,
		system:    sysTask,

		hostCommsMB: hostCommsMB,
		plateMB:     plateMB,
		lidMB:       lidMB,
		motorMB:     motorMB,
		systemMB:    systemMB,

		tx: make([]byte, 512),
	}
}

// withOffsets returns a copy of channels with Offset set from offsets[start:],
// one entry per channel in order; a channel with no corresponding persisted
// entry gets eeprom.IdentityOffset rather than a zeroed-out correction.
func withOffsets(channels []thermal.Channel, offsets []eeprom.ThermistorOffset, start int) []thermal.Channel {
	out := make([]thermal.Channel, len(channels))
	for i, ch := range channels {
		ch.Offset = eeprom.IdentityOffset
		if idx := start + i; idx < len(offsets) {
			ch.Offset = offsets[idx]
		}
		out[i] = ch
	}
	return out
}

// Run starts one goroutine per task and blocks until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) {
	done := make(chan struct{}, 5)
	go func() { r.runHostComms(ctx); done <- struct{}{} }()
	go func() { r.runThermal(ctx, r.plate, r.plateMB); done <- struct{}{} }()
	go func() { r.runThermal(ctx, r.lid, r.lidMB); done <- struct{}{} }()
	go func() { r.runMotor(ctx); done <- struct{}{} }()
	go func() { r.runSystem(ctx); done <- struct{}{} }()
	for i := 0; i < 5; i++ {
		<-done
	}
}

func (r *Runtime) runHostComms(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if buf := r.transport.ReadAvailable(); len(buf) > 0 {
			if out := r.hostComms.HandleIncomingBytes(buf, r.tx); len(out) > 0 {
				r.transport.Write(out)
			}
		}
		if msg, ok := r.hostCommsMB.RecvTimeout(pollInterval); ok {
			if out := r.dispatchHostCommsMessage(msg); len(out) > 0 {
				r.transport.Write(out)
			}
		}
	}
}

func (r *Runtime) runThermal(ctx context.Context, task *thermal.Task, mb *mailbox.Mailbox[messages.ThermalMessage]) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if msg, ok := mb.RecvTimeout(pollInterval); ok {
			r.handleThermalMessage(task, msg)
		}
	}
}

func (r *Runtime) runMotor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if msg, ok := r.motorMB.RecvTimeout(pollInterval); ok {
			r.handleMotorMessage(msg)
		}
	}
}

func (r *Runtime) runSystem(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if msg, ok := r.systemMB.RecvTimeout(pollInterval); ok {
			r.handleSystemMessage(msg)
		}
	}
}

// StepAll drives every mailbox currently holding messages, plus one
// transport poll, on the caller's own goroutine — a deterministic
// round-robin collapse of Run's five goroutines, for tests.
func (r *Runtime) StepAll() {
	if buf := r.transport.ReadAvailable(); len(buf) > 0 {
		if out := r.hostComms.HandleIncomingBytes(buf, r.tx); len(out) > 0 {
			r.transport.Write(out)
		}
	}
	for r.hostCommsMB.HasMessage() {
		if out := r.dispatchHostCommsMessage(r.hostCommsMB.Recv()); len(out) > 0 {
			r.transport.Write(out)
		}
	}
	for r.plateMB.HasMessage() {
		r.handleThermalMessage(r.plate, r.plateMB.Recv())
	}
	for r.lidMB.HasMessage() {
		r.handleThermalMessage(r.lid, r.lidMB.Recv())
	}
	for r.motorMB.HasMessage() {
		r.handleMotorMessage(r.motorMB.Recv())
	}
	for r.systemMB.HasMessage() {
		r.handleSystemMessage(r.systemMB.Recv())
	}
}

func (r *Runtime) dispatchHostCommsMessage(msg messages.HostCommsMessage) []byte {
	switch m := msg.(type) {
	case messages.IncomingBytes:
		return r.hostComms.HandleIncomingBytes(m.Buffer, r.tx)
	case messages.AcknowledgePrevious:
		return r.hostComms.AcknowledgePrevious(m, r.tx)
	case messages.GetTemperatureResponse:
		return r.hostComms.HandleGetTemperatureResponse(m, r.tx)
	case messages.GetRPMResponse:
		return r.hostComms.HandleGetRPMResponse(m, r.tx)
	case messages.GetSystemInfoResponse:
		return r.hostComms.HandleGetSystemInfoResponse(m, r.tx)
	case messages.BoardRevisionProbeResponse:
		return r.hostComms.HandleBoardRevisionProbeResponse(m, r.tx)
	case messages.DeactivateAck:
		out, _ := r.hostComms.Ack(m.ID, errorcode.NoError, r.tx)
		return out
	case messages.ForceUSBDisconnect:
		r.hostComms.HandleForceUSBDisconnect(m)
		return nil
	case messages.AsyncError:
		n, _ := errorcode.WriteInto(r.tx, errorcode.Code(m.Code))
		return r.tx[:n]
	default:
		return nil
	}
}

func (r *Runtime) handleThermalMessage(task *thermal.Task, msg messages.ThermalMessage) {
	switch m := msg.(type) {
	case messages.SetTemperatureMessage:
		code := task.HandleSetTemperature(m)
		r.agg.SendTag(TagHostComms, messages.AcknowledgePrevious{RespondingToID: m.ID, WithError: uint16(code)})
	case messages.SetLidTemperatureMessage:
		code := task.HandleSetTemperature(messages.SetTemperatureMessage{ID: m.ID, Setpoint: m.Setpoint})
		r.agg.SendTag(TagHostComms, messages.AcknowledgePrevious{RespondingToID: m.ID, WithError: uint16(code)})
	case messages.GetTemperatureMessage:
		current := task.CurrentReading()
		r.agg.SendTag(TagHostComms, messages.GetTemperatureResponse{
			ID:               m.ID,
			Set:              task.Setpoint,
			Current:          current,
			RemainingSeconds: float64(task.HoldRemainingSeconds),
			TotalSeconds:     float64(task.HoldUntilTicks),
			AtTarget:         task.AtTarget(current, task.Tolerance),
		})
	case messages.DeactivateMessage:
		task.HandleDeactivate()
		r.agg.SendTag(aggregator.Tag(m.ReturnTag), messages.DeactivateAck{ID: m.ID})
	case messages.TemperatureReadingComplete:
		task.HandleTemperatureReading(m)
		plateState, errState := task.StatusUpdate()
		r.agg.SendTag(TagSystem, plateState)
		r.agg.SendTag(TagSystem, errState)
	}
}

func (r *Runtime) handleMotorMessage(msg messages.MotorMessage) {
	switch m := msg.(type) {
	case messages.SetRPMMessage:
		r.motorTask.HandleSetRPM(m)
		r.agg.SendTag(TagHostComms, messages.AcknowledgePrevious{RespondingToID: m.ID})
	case messages.GetRPMMessage:
		r.agg.SendTag(TagHostComms, r.motorTask.HandleGetRPM(m))
	case messages.SetSolenoidMessage:
		r.motorTask.HandleSetSolenoid(m)
		r.agg.SendTag(TagHostComms, messages.AcknowledgePrevious{RespondingToID: m.ID})
	case messages.HomeMessage:
		if !r.motorTask.HandleHome(m) {
			r.agg.SendTag(TagHostComms, messages.AcknowledgePrevious{RespondingToID: m.ID, WithError: uint16(errorcode.LidMotorBusy)})
		}
	case messages.OpenLidMessage:
		if !r.motorTask.HandleOpenLid(m) {
			r.agg.SendTag(TagHostComms, messages.AcknowledgePrevious{RespondingToID: m.ID, WithError: uint16(errorcode.LidMotorBusy)})
		}
	case messages.PlateLiftMessage:
		if !r.motorTask.HandlePlateLift(m) {
			r.agg.SendTag(TagHostComms, messages.AcknowledgePrevious{RespondingToID: m.ID, WithError: uint16(errorcode.LidMotorBusy)})
		}
	case messages.CheckStatus:
		result := r.motorTask.HandleCheckStatus(m)
		if result.Done {
			r.agg.SendTag(TagHostComms, messages.AcknowledgePrevious{RespondingToID: result.RespondingToID, WithError: uint16(result.Error)})
		}
	}
}

func (r *Runtime) handleSystemMessage(msg messages.SystemMessage) {
	switch m := msg.(type) {
	case messages.SetSerialNumberMessage:
		code := r.system.HandleSetSerialNumber(m)
		r.agg.SendTag(TagHostComms, messages.AcknowledgePrevious{RespondingToID: m.ID, WithError: uint16(code)})
	case messages.GetSystemInfoMessage:
		r.agg.SendTag(TagHostComms, r.system.HandleGetSystemInfo(m))
	case messages.BoardRevisionProbeMessage:
		r.agg.SendTag(TagHostComms, r.system.HandleBoardRevisionProbe(m))
	case messages.EnterBootloaderMessage:
		if !r.system.HandleEnterBootloader(m) {
			r.agg.SendTag(TagHostComms, messages.AcknowledgePrevious{RespondingToID: m.ID, WithError: uint16(errorcode.InternalQueueFull)})
		}
	case messages.DeactivateAck:
		r.system.HandlePrepAck(m.ID)
	}
}
