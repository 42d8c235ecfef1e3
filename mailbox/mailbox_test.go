package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrySendRespectsCapacity(t *testing.T) {
	mb := New[int](2)
	assert.True(t, mb.TrySend(1))
	assert.True(t, mb.TrySend(2))
	assert.False(t, mb.TrySend(3), "mailbox at capacity must reject without blocking")
	assert.Equal(t, 2, mb.Len())
}

func TestRecvDrainsFIFO(t *testing.T) {
	mb := New[int](4)
	mb.TrySend(1)
	mb.TrySend(2)
	mb.TrySend(3)
	assert.Equal(t, 1, mb.Recv())
	assert.Equal(t, 2, mb.Recv())
	assert.Equal(t, 3, mb.Recv())
	assert.False(t, mb.HasMessage())
}

func TestRecvTimeoutExpires(t *testing.T) {
	mb := New[int](1)
	_, ok := mb.RecvTimeout(10 * time.Millisecond)
	assert.False(t, ok)
}

func TestTrySendTimeoutSucceedsOnceRoomFrees(t *testing.T) {
	mb := New[int](1)
	assert.True(t, mb.TrySend(1))
	go func() {
		time.Sleep(5 * time.Millisecond)
		mb.Recv()
	}()
	assert.True(t, mb.TrySendTimeout(2, 100*time.Millisecond))
}

func TestHasMessage(t *testing.T) {
	mb := New[int](1)
	assert.False(t, mb.HasMessage())
	mb.TrySend(5)
	assert.True(t, mb.HasMessage())
}
