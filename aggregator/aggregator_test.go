package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"labctrl/mailbox"
	"labctrl/messages"
)

const (
	tagA Tag = iota
	tagB
)

type msgA struct{ n int }
type msgB struct{ s string }

func TestSendTagRoutesToExactMailbox(t *testing.T) {
	agg := New(2)
	mbA := mailbox.New[msgA](4)
	mbB := mailbox.New[msgB](4)
	assert.True(t, RegisterMailbox(agg, tagA, mbA))
	assert.True(t, RegisterMailbox(agg, tagB, mbB))

	assert.True(t, agg.SendTag(tagA, msgA{n: 1}))
	assert.True(t, mbA.HasMessage())
	assert.False(t, mbB.HasMessage())

	assert.False(t, agg.SendTag(tagA, msgB{s: "wrong type"}))
}

func TestRegisterTwiceFails(t *testing.T) {
	agg := New(1)
	mbA := mailbox.New[msgA](4)
	assert.True(t, RegisterMailbox(agg, tagA, mbA))
	assert.False(t, RegisterMailbox(agg, tagA, mbA))
}

func TestSendUniqueRoutesByType(t *testing.T) {
	agg := New(2)
	mbA := mailbox.New[msgA](4)
	mbB := mailbox.New[msgB](4)
	RegisterMailbox(agg, tagA, mbA)
	RegisterMailbox(agg, tagB, mbB)

	assert.True(t, agg.SendUnique(msgB{s: "hi"}))
	assert.True(t, mbB.HasMessage())
}

// TestSendUniqueRoutesByMarkerInterface proves SendUnique actually works for
// this module's own mailboxes, which are registered at the marker-interface
// element type (messages.MotorMessage, messages.HostCommsMessage), not at a
// message's own concrete type.
func TestSendUniqueRoutesByMarkerInterface(t *testing.T) {
	agg := New(2)
	motorMB := mailbox.New[messages.MotorMessage](4)
	hostMB := mailbox.New[messages.HostCommsMessage](4)
	assert.True(t, RegisterMailbox(agg, tagA, motorMB))
	assert.True(t, RegisterMailbox(agg, tagB, hostMB))

	assert.True(t, agg.SendUnique(messages.SetRPMMessage{ID: 1, RPM: 10}))
	assert.True(t, motorMB.HasMessage())
	assert.False(t, hostMB.HasMessage())
}

// TestSendUniquePanicsWhenMessageImplementsTwoMarkers proves a message that
// legitimately belongs to more than one mailbox (messages.DeactivateAck
// implements both HostCommsMessage and SystemMessage) is rejected rather
// than silently delivered to whichever route happened to be registered
// first.
func TestSendUniquePanicsWhenMessageImplementsTwoMarkers(t *testing.T) {
	agg := New(2)
	hostMB := mailbox.New[messages.HostCommsMessage](4)
	sysMB := mailbox.New[messages.SystemMessage](4)
	RegisterMailbox(agg, tagA, hostMB)
	RegisterMailbox(agg, tagB, sysMB)

	assert.Panics(t, func() { agg.SendUnique(messages.DeactivateAck{ID: 1}) })
}

func TestSendToAddressValidatesType(t *testing.T) {
	agg := New(2)
	mbA := mailbox.New[msgA](4)
	mbB := mailbox.New[msgB](4)
	RegisterMailbox(agg, tagA, mbA)
	RegisterMailbox(agg, tagB, mbB)

	assert.True(t, agg.SendToAddress(int(tagA), msgA{n: 9}))
	assert.False(t, agg.SendToAddress(int(tagA), msgB{s: "nope"}), "mismatched message type must be rejected")
	assert.False(t, agg.SendToAddress(99, msgA{n: 1}), "out of range address must do nothing")
}
