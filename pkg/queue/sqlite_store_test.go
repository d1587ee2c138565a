package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsync/civicsync/pkg/queue"
	"github.com/civicsync/civicsync/pkg/store/sqlite"
)

func newTestSQLiteStore(t *testing.T) *queue.SQLiteStore {
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return queue.NewSQLiteStore(s.DB())
}

func TestSQLiteStoreClaimAndSucceed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := queue.Job{
		ID:            "job-1",
		TypeTag:       "extract_website",
		Payload:       []byte(`{"website_id":"w1"}`),
		CorrelationID: "00000000-0000-0000-0000-000000000001",
		RunAt:         time.Now().Add(-time.Second),
	}
	require.NoError(t, st.Enqueue(ctx, job))

	depth, err := st.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	claimed, err := st.ClaimNext(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, "worker-a", claimed.ClaimedBy)

	_, err = st.ClaimNext(ctx, "worker-b")
	assert.ErrorIs(t, err, queue.ErrNoJobsAvailable)

	require.NoError(t, st.MarkSucceeded(ctx, job.ID))
	depth, err = st.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestSQLiteStoreMarkFailedRetriesUnderLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := queue.Job{
		ID:            "job-2",
		TypeTag:       "sync_website",
		Payload:       []byte(`{}`),
		CorrelationID: "00000000-0000-0000-0000-000000000002",
		RunAt:         time.Now().Add(-time.Second),
	}
	require.NoError(t, st.Enqueue(ctx, job))

	claimed, err := st.ClaimNext(ctx, "worker-a")
	require.NoError(t, err)
	require.NoError(t, st.MarkFailed(ctx, claimed.ID, "boom", 3))

	retried, err := st.ClaimNext(ctx, "worker-b")
	require.NoError(t, err)
	require.NotNil(t, retried)
	assert.Equal(t, 1, retried.Attempts)
	assert.Equal(t, "boom", retried.LastError)
}

func TestSQLiteStoreReclaimStale(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job := queue.Job{
		ID:            "job-3",
		TypeTag:       "extract_website",
		Payload:       []byte(`{}`),
		CorrelationID: "00000000-0000-0000-0000-000000000003",
		RunAt:         time.Now().Add(-time.Second),
	}
	require.NoError(t, st.Enqueue(ctx, job))
	_, err := st.ClaimNext(ctx, "worker-a")
	require.NoError(t, err)

	n, err := st.ReclaimStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reclaimed, err := st.ClaimNext(ctx, "worker-b")
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
}
