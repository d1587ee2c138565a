package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsync/civicsync/pkg/queue"
	"github.com/civicsync/civicsync/pkg/runtime"
)

type fakeCommand struct {
	Value string
}

func (fakeCommand) ExecutionMode() runtime.ExecutionMode { return runtime.Inline() }

type fakeEvent struct{ Value string }

func (fakeEvent) Role() runtime.EventRole { return runtime.RoleFact }

type fakeEffect struct {
	executed chan string
}

func (e *fakeEffect) Execute(ctx context.Context, cmd runtime.Command, ectx runtime.EffectContext) (runtime.Event, error) {
	c := cmd.(fakeCommand)
	e.executed <- c.Value
	return fakeEvent{Value: c.Value}, nil
}

func decodeFakeCommand(payload []byte) (runtime.Command, error) {
	var c fakeCommand
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, err
	}
	return c, nil
}

func TestWorkerClaimsDecodesAndDispatches(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	bus := runtime.NewEventBus(16)
	effect := &fakeEffect{executed: make(chan string, 1)}
	dispatcher := runtime.NewDispatcher(nil, bus).WithEffect(fakeCommand{}, effect)

	payload, err := json.Marshal(fakeCommand{Value: "hello"})
	require.NoError(t, err)
	require.NoError(t, st.Enqueue(ctx, queue.Job{
		ID:            "job-1",
		TypeTag:       "fake_command",
		Payload:       payload,
		CorrelationID: runtime.NewCorrelationId().String(),
		RunAt:         time.Now().Add(-time.Second),
	}))

	decoders := queue.DecoderRegistry{"fake_command": decodeFakeCommand}
	w := queue.NewWorker("worker-test", st, dispatcher, decoders, 3, 10*time.Millisecond, 0)
	w.Start(ctx)
	defer w.Stop()

	select {
	case v := <-effect.executed:
		assert.Equal(t, "hello", v)
	case <-time.After(2 * time.Second):
		t.Fatal("effect was never executed")
	}

	require.Eventually(t, func() bool {
		depth, err := st.Depth(ctx)
		return err == nil && depth == 0
	}, 2*time.Second, 10*time.Millisecond, "job should be marked succeeded and removed")
}

func TestWorkerMarksFailedOnUnknownType(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	bus := runtime.NewEventBus(16)
	dispatcher := runtime.NewDispatcher(nil, bus)

	require.NoError(t, st.Enqueue(ctx, queue.Job{
		ID:            "job-2",
		TypeTag:       "unregistered_type",
		Payload:       []byte(`{}`),
		CorrelationID: runtime.NewCorrelationId().String(),
		RunAt:         time.Now().Add(-time.Second),
	}))

	w := queue.NewWorker("worker-test", st, dispatcher, queue.DecoderRegistry{}, 3, 10*time.Millisecond, 0)
	w.Start(ctx)
	defer w.Stop()

	require.Eventually(t, func() bool {
		claimed, err := st.ClaimNext(ctx, "inspector")
		if err == nil && claimed != nil {
			return claimed.LastError != ""
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "job should be marked failed with no decoder recorded")
}
