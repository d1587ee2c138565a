package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicsync/civicsync/pkg/queue"
	"github.com/civicsync/civicsync/pkg/runtime"
)

func TestPoolProcessesAcrossMultipleWorkers(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	bus := runtime.NewEventBus(16)
	effect := &fakeEffect{executed: make(chan string, 10)}
	dispatcher := runtime.NewDispatcher(nil, bus).WithEffect(fakeCommand{}, effect)
	decoders := queue.DecoderRegistry{"fake_command": decodeFakeCommand}

	for i := 0; i < 5; i++ {
		payload, err := json.Marshal(fakeCommand{Value: "job"})
		require.NoError(t, err)
		require.NoError(t, st.Enqueue(ctx, queue.Job{
			ID:            "pool-job-" + string(rune('a'+i)),
			TypeTag:       "fake_command",
			Payload:       payload,
			CorrelationID: runtime.NewCorrelationId().String(),
			RunAt:         time.Now().Add(-time.Second),
		}))
	}

	pool := queue.NewPool(3, st, dispatcher, decoders, 3, 5*time.Millisecond, 0, time.Minute)
	pool.Start(ctx)
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		select {
		case <-effect.executed:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d to execute", i)
		}
	}

	require.Eventually(t, func() bool {
		depth, err := st.Depth(ctx)
		return err == nil && depth == 0
	}, 2*time.Second, 10*time.Millisecond)

	health := pool.Health()
	require.Len(t, health, 3)
}
