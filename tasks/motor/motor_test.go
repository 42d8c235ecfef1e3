package motor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labctrl/aggregator"
	"labctrl/errorcode"
	"labctrl/mailbox"
	"labctrl/messages"
	"labctrl/simpolicy"
)

const selfTag aggregator.Tag = 0

func newTestTask() (*Task, *simpolicy.Motor, *mailbox.Mailbox[messages.MotorMessage]) {
	agg := aggregator.New(1)
	mb := mailbox.New[messages.MotorMessage](16)
	aggregator.RegisterMailbox(agg, selfTag, mb)
	pol := simpolicy.NewMotor()
	return New(pol, agg, selfTag), pol, mb
}

func TestSetRPMAppliesImmediately(t *testing.T) {
	task, pol, _ := newTestTask()
	task.HandleSetRPM(messages.SetRPMMessage{RPM: 2500})
	assert.EqualValues(t, 2500, pol.CurrentRPM())
}

func TestGetRPMReportsCurrent(t *testing.T) {
	task, _, _ := newTestTask()
	task.HandleSetRPM(messages.SetRPMMessage{RPM: 1000})
	resp := task.HandleGetRPM(messages.GetRPMMessage{ID: 7})
	assert.EqualValues(t, 7, resp.ID)
	assert.EqualValues(t, 1000, resp.CurrentRPM)
}

func TestHomeSequenceCompletesAfterPolls(t *testing.T) {
	task, _, mb := newTestTask()
	require.True(t, task.HandleHome(messages.HomeMessage{ID: 5}))
	assert.True(t, task.Busy())
	require.True(t, mb.HasMessage())

	var result CheckStatusResult
	for i := 0; i < 10; i++ {
		poll := mb.Recv().(messages.CheckStatus)
		result = task.HandleCheckStatus(poll)
		if result.Done {
			break
		}
	}
	assert.True(t, result.Done)
	assert.Zero(t, result.Error)
	assert.False(t, task.Busy())
}

func TestHomeSequenceStallReportsError(t *testing.T) {
	task, pol, mb := newTestTask()
	pol.StallHome = true
	task.HandleHome(messages.HomeMessage{ID: 9})
	poll := mb.Recv().(messages.CheckStatus)
	result := task.HandleCheckStatus(poll)
	assert.True(t, result.Done)
	assert.Equal(t, errorcode.MotorStall, result.Error)
}

func TestSecondLongRunningOperationRejectedWhileBusy(t *testing.T) {
	task, _, _ := newTestTask()
	require.True(t, task.HandleHome(messages.HomeMessage{ID: 1}))
	assert.False(t, task.HandleOpenLid(messages.OpenLidMessage{ID: 2}))
}

func TestCheckStatusTimesOutAfterBoundedRetries(t *testing.T) {
	task, pol, mb := newTestTask()
	pol.CompleteAfterPolls = MaxCheckStatusRetries + 100 // never completes in time
	task.HandleHome(messages.HomeMessage{ID: 3})

	var result CheckStatusResult
	for i := 0; i < MaxCheckStatusRetries+5; i++ {
		poll := mb.Recv().(messages.CheckStatus)
		result = task.HandleCheckStatus(poll)
		if result.Done {
			break
		}
	}
	assert.True(t, result.Done)
	assert.Equal(t, errorcode.MotorTimeout, result.Error)
}

func TestSetSolenoidAppliesImmediately(t *testing.T) {
	task, pol, _ := newTestTask()
	task.HandleSetSolenoid(messages.SetSolenoidMessage{Engage: true})
	assert.True(t, pol.SolenoidEngaged())
}
