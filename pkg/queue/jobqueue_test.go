package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsync/civicsync/pkg/queue"
	"github.com/civicsync/civicsync/pkg/runtime"
)

func TestJobQueueEnqueueAssignsCorrelationAndDefaultsRunAt(t *testing.T) {
	st := newTestSQLiteStore(t)
	jq := queue.NewJobQueue(st)
	ctx := context.Background()

	spec := runtime.NewJobSpec("extract_website").IdempotencyKey("w1:q1").Build()
	id, err := jq.Enqueue(ctx, []byte(`{"website_id":"w1"}`), spec)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	claimed, err := st.ClaimNext(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "extract_website", claimed.TypeTag)
	assert.NotEmpty(t, claimed.CorrelationID)
	assert.Equal(t, "w1:q1", claimed.IdempotencyKey)
	assert.Equal(t, 3, claimed.MaxRetries)
	assert.WithinDuration(t, time.Now(), claimed.RunAt, 5*time.Second)
}

func TestJobQueueEnqueueDedupesOnIdempotencyKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	jq := queue.NewJobQueue(st)
	ctx := context.Background()

	spec := runtime.NewJobSpec("extract_website").IdempotencyKey("w1:q1").Build()
	_, err := jq.Enqueue(ctx, []byte(`{"website_id":"w1"}`), spec)
	require.NoError(t, err)
	_, err = jq.Enqueue(ctx, []byte(`{"website_id":"w1"}`), spec)
	require.NoError(t, err)

	depth, err := st.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestJobQueueHonorsPerJobMaxRetries(t *testing.T) {
	st := newTestSQLiteStore(t)
	jq := queue.NewJobQueue(st)
	ctx := context.Background()

	spec := runtime.NewJobSpec("extract_website").MaxRetries(1).Build()
	_, err := jq.Enqueue(ctx, []byte(`{}`), spec)
	require.NoError(t, err)

	claimed, err := st.ClaimNext(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, 1, claimed.MaxRetries)

	require.NoError(t, st.MarkFailed(ctx, claimed.ID, "boom", claimed.MaxRetries))

	// attempts (1) now equals MaxRetries (1), so the row stays claimed
	// for operator inspection instead of becoming pollable again.
	_, err = st.ClaimNext(ctx, "worker-a")
	assert.ErrorIs(t, err, queue.ErrNoJobsAvailable)
}

func TestJobQueueScheduleHonorsRunAt(t *testing.T) {
	st := newTestSQLiteStore(t)
	jq := queue.NewJobQueue(st)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	spec := runtime.NewJobSpec("sync_website").Build()
	_, err := jq.Schedule(ctx, []byte(`{}`), spec, future)
	require.NoError(t, err)

	_, err = st.ClaimNext(ctx, "worker-a")
	assert.ErrorIs(t, err, queue.ErrNoJobsAvailable)
}
