package hostcomms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labctrl/aggregator"
	"labctrl/errorcode"
	"labctrl/mailbox"
	"labctrl/messages"
)

const (
	tagHostComms aggregator.Tag = iota
	tagThermalPlate
	tagThermalLid
	tagMotor
	tagSystem
)

func newTestTask() (*Task, *mailbox.Mailbox[messages.ThermalMessage], *mailbox.Mailbox[messages.ThermalMessage], *mailbox.Mailbox[messages.MotorMessage], *mailbox.Mailbox[messages.SystemMessage]) {
	agg := aggregator.New(4)
	plateMB := mailbox.New[messages.ThermalMessage](8)
	lidMB := mailbox.New[messages.ThermalMessage](8)
	motorMB := mailbox.New[messages.MotorMessage](8)
	systemMB := mailbox.New[messages.SystemMessage](8)
	aggregator.RegisterMailbox(agg, tagThermalPlate, plateMB)
	aggregator.RegisterMailbox(agg, tagThermalLid, lidMB)
	aggregator.RegisterMailbox(agg, tagMotor, motorMB)
	aggregator.RegisterMailbox(agg, tagSystem, systemMB)
	task := New(agg, tagHostComms, tagThermalPlate, tagThermalLid, tagMotor, tagSystem)
	return task, plateMB, lidMB, motorMB, systemMB
}

// Scenario 1: empty line.
func TestScenarioEmptyLine(t *testing.T) {
	task, _, _, _, _ := newTestTask()
	tx := []byte("cccccccccc")
	out := task.HandleIncomingBytes([]byte("\n"), tx)
	assert.Empty(t, out)
	assert.Equal(t, "cccccccccc", string(tx), "tx buffer must be left untouched")
}

// Scenario 2: malformed gcode.
func TestScenarioMalformedGCode(t *testing.T) {
	task, _, _, _, _ := newTestTask()
	tx := make([]byte, 64)
	out := task.HandleIncomingBytes([]byte("aosjhdakljshd\n"), tx)
	assert.Equal(t, "ERR003:unhandled gcode\n", string(out))
}

// Scenario 3: set-RPM round trip.
func TestScenarioSetRPMRoundTrip(t *testing.T) {
	task, _, _, motorMB, _ := newTestTask()
	tx := make([]byte, 64)
	out := task.HandleIncomingBytes([]byte("M3 S3000\n"), tx)
	assert.Empty(t, out)

	require.True(t, motorMB.HasMessage())
	msg := motorMB.Recv().(messages.SetRPMMessage)
	assert.EqualValues(t, 3000, msg.RPM)
	require.NotZero(t, msg.ID)

	ackOut := task.AcknowledgePrevious(messages.AcknowledgePrevious{RespondingToID: msg.ID}, tx)
	assert.Equal(t, "M3 OK\n", string(ackOut))
	assert.Equal(t, 6, len(ackOut))
}

// Scenario 4: get-temperature round trip.
func TestScenarioGetTemperatureRoundTrip(t *testing.T) {
	task, plateMB, _, _, _ := newTestTask()
	tx := make([]byte, 128)
	out := task.HandleIncomingBytes([]byte("M105\n"), tx)
	assert.Empty(t, out)

	require.True(t, plateMB.HasMessage())
	msg := plateMB.Recv().(messages.GetTemperatureMessage)
	require.NotZero(t, msg.ID)

	resp := task.HandleGetTemperatureResponse(messages.GetTemperatureResponse{
		ID: msg.ID, Current: 30, Set: 35, RemainingSeconds: 10, TotalSeconds: 15, AtTarget: true,
	}, tx)
	assert.Equal(t, "M105 T:35.00 C:30.00 H:10.00 Total_H:15.00 At_target?:1 OK\n", string(resp))
}

// Scenario 5: bad ack id.
func TestScenarioBadAckID(t *testing.T) {
	task, _, _, _, _ := newTestTask()
	tx := make([]byte, 32)
	out := task.AcknowledgePrevious(messages.AcknowledgePrevious{RespondingToID: 99}, tx)
	assert.Contains(t, string(out), "ERR005")
}

// Scenario 6: tx overflow.
func TestScenarioTxOverflow(t *testing.T) {
	task, plateMB, _, _, _ := newTestTask()
	txBig := make([]byte, 128)
	task.HandleIncomingBytes([]byte("M105\n"), txBig)
	msg := plateMB.Recv().(messages.GetTemperatureMessage)

	small := make([]byte, 20)
	out := task.HandleGetTemperatureResponse(messages.GetTemperatureResponse{
		ID: msg.ID, Current: 30, Set: 35, RemainingSeconds: 10, TotalSeconds: 15, AtTarget: true,
	}, small)
	assert.Equal(t, "ERR001:tx buffer ove", string(out))
	assert.Equal(t, 20, len(out))
}

// Scenario 7: board-revision probe.
func TestScenarioBoardRevisionProbe(t *testing.T) {
	task, _, _, _, systemMB := newTestTask()
	tx := make([]byte, 64)
	task.HandleIncomingBytes([]byte("M900.D\n"), tx)
	msg := systemMB.Recv().(messages.BoardRevisionProbeMessage)

	out := task.HandleBoardRevisionProbeResponse(messages.BoardRevisionProbeResponse{ID: msg.ID, Revision: 1}, tx)
	assert.Equal(t, "M900.D C:1 OK\n", string(out))

	tx2 := make([]byte, 64)
	task.HandleIncomingBytes([]byte("M900.D\n"), tx2)
	msg2 := systemMB.Recv().(messages.BoardRevisionProbeMessage)
	out2 := task.HandleBoardRevisionProbeResponse(messages.BoardRevisionProbeResponse{ID: msg2.ID, Revision: 2}, tx2)
	assert.Equal(t, "M900.D C:2 OK\n", string(out2))
}

func TestGCodeCacheFullWritesError(t *testing.T) {
	agg := aggregator.New(4)
	motorMB := mailbox.New[messages.MotorMessage](32)
	aggregator.RegisterMailbox(agg, tagMotor, motorMB)
	plateMB := mailbox.New[messages.ThermalMessage](32)
	lidMB := mailbox.New[messages.ThermalMessage](32)
	aggregator.RegisterMailbox(agg, tagThermalPlate, plateMB)
	aggregator.RegisterMailbox(agg, tagThermalLid, lidMB)
	systemMB := mailbox.New[messages.SystemMessage](32)
	aggregator.RegisterMailbox(agg, tagSystem, systemMB)
	task := New(agg, tagHostComms, tagThermalPlate, tagThermalLid, tagMotor, tagSystem)

	tx := make([]byte, 512)
	for i := 0; i < defaultCacheSize; i++ {
		out := task.HandleIncomingBytes([]byte("M123\n"), tx)
		assert.Empty(t, out)
	}
	out := task.HandleIncomingBytes([]byte("M123\n"), tx)
	assert.Equal(t, "ERR004:gcode cache full\n", string(out))
}

func TestInternalQueueFullWritesError(t *testing.T) {
	agg := aggregator.New(4)
	motorMB := mailbox.New[messages.MotorMessage](1)
	aggregator.RegisterMailbox(agg, tagMotor, motorMB)
	plateMB := mailbox.New[messages.ThermalMessage](8)
	lidMB := mailbox.New[messages.ThermalMessage](8)
	aggregator.RegisterMailbox(agg, tagThermalPlate, plateMB)
	aggregator.RegisterMailbox(agg, tagThermalLid, lidMB)
	systemMB := mailbox.New[messages.SystemMessage](8)
	aggregator.RegisterMailbox(agg, tagSystem, systemMB)
	task := New(agg, tagHostComms, tagThermalPlate, tagThermalLid, tagMotor, tagSystem)

	tx := make([]byte, 512)
	task.HandleIncomingBytes([]byte("M123\n"), tx) // fills motorMB's single slot
	out := task.HandleIncomingBytes([]byte("M123\n"), tx)
	assert.Equal(t, errorcode.InternalQueueFull.String()+"\n", string(out))
}

func TestHandleForceUSBDisconnectLatchesAndAcksReturnTag(t *testing.T) {
	task, _, _, _, systemMB := newTestTask()
	assert.False(t, task.ForceDisconnected())

	task.HandleForceUSBDisconnect(messages.ForceUSBDisconnect{ID: 7, ReturnAddress: int(tagSystem)})
	assert.True(t, task.ForceDisconnected())

	require.True(t, systemMB.HasMessage())
	ack := systemMB.Recv().(messages.DeactivateAck)
	assert.EqualValues(t, 7, ack.ID)
}

func TestDeactivateAllWaitsForBothAcks(t *testing.T) {
	task, plateMB, lidMB, _, _ := newTestTask()
	tx := make([]byte, 64)
	out := task.HandleIncomingBytes([]byte("M18\n"), tx)
	assert.Empty(t, out)

	plateMsg := plateMB.Recv().(messages.DeactivateMessage)
	lidMsg := lidMB.Recv().(messages.DeactivateMessage)
	assert.Equal(t, plateMsg.ID, lidMsg.ID)

	out1, done1 := task.AcknowledgeDeactivate(plateMsg.ID, errorcode.NoError, tx)
	assert.Nil(t, out1)
	assert.False(t, done1)

	out2, done2 := task.AcknowledgeDeactivate(lidMsg.ID, errorcode.NoError, tx)
	assert.True(t, done2)
	assert.Equal(t, "M18 OK\n", string(out2))
}
