package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusSubscribeOnlySeesLaterEmits(t *testing.T) {
	bus := NewEventBus(4)
	bus.Emit(testTrigger{ID: 1}) // before subscribe, must not be observed

	recv := bus.Subscribe()
	bus.Emit(testTrigger{ID: 2})

	env, lagged, closed := recv.Recv()
	require.False(t, closed)
	require.Zero(t, lagged)
	v, ok := As[testTrigger](env)
	require.True(t, ok)
	assert.Equal(t, 2, v.ID)
}

func TestBusFIFOPerReceiver(t *testing.T) {
	bus := NewEventBus(8)
	recv := bus.Subscribe()

	for i := 0; i < 5; i++ {
		bus.Emit(testTrigger{ID: i})
	}

	for i := 0; i < 5; i++ {
		env, _, closed := recv.Recv()
		require.False(t, closed)
		v, _ := As[testTrigger](env)
		assert.Equal(t, i, v.ID)
	}
}

func TestBusMultiSubscriberBroadcast(t *testing.T) {
	bus := NewEventBus(4)
	r1 := bus.Subscribe()
	r2 := bus.Subscribe()

	bus.Emit(testTrigger{ID: 42})

	env1, _, _ := r1.Recv()
	env2, _, _ := r2.Recv()
	v1, _ := As[testTrigger](env1)
	v2, _ := As[testTrigger](env2)
	assert.Equal(t, 42, v1.ID)
	assert.Equal(t, 42, v2.ID)
}

func TestBusLaggedReceiverGetsSignalAndNeverBlocksEmitter(t *testing.T) {
	bus := NewEventBus(1) // tiny capacity forces a lag quickly
	recv := bus.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Emit(testTrigger{ID: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emitter blocked on a slow receiver")
	}

	sawLag := false
	for i := 0; i < 20; i++ {
		_, lagged, closed := recv.Recv()
		if closed {
			break
		}
		if lagged > 0 {
			sawLag = true
			break
		}
	}
	assert.True(t, sawLag, "expected at least one lag signal")
}

func TestBusUnsubscribeClosesReceiver(t *testing.T) {
	bus := NewEventBus(4)
	recv := bus.Subscribe()
	assert.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(recv)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, _, closed := recv.Recv()
	assert.True(t, closed)
}

func TestBusCloseClosesAllReceivers(t *testing.T) {
	bus := NewEventBus(4)
	r1 := bus.Subscribe()
	r2 := bus.Subscribe()

	bus.Close()

	_, _, c1 := r1.Recv()
	_, _, c2 := r2.Recv()
	assert.True(t, c1)
	assert.True(t, c2)
}

func TestBusPreservesCorrelationOnEmitEnvelope(t *testing.T) {
	bus := NewEventBus(4)
	recv := bus.Subscribe()
	cid := NewCorrelationId()

	bus.EmitEnvelope(NewEnvelopeWithCorrelation(testResult{ID: 1}, cid))

	env, _, _ := recv.Recv()
	assert.Equal(t, cid, env.Cid)
}
