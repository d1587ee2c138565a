package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsync/civicsync/pkg/domain"
)

func TestJobLifecycleTransitions(t *testing.T) {
	s := newTestStore(t)
	repo := NewJobRepository(s)
	ctx := context.Background()

	require.NoError(t, repo.CreateJob(ctx, domain.ExtractionJob{WebsiteID: "w1"}))

	pending, err := repo.ListPendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	id := pending[0].ID

	require.NoError(t, repo.UpdateJobStatus(ctx, id, domain.ExtractionJobRunning, ""))
	running, err := repo.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExtractionJobRunning, running.Status)
	assert.NotNil(t, running.StartedAt)

	require.NoError(t, repo.UpdateJobStatus(ctx, id, domain.ExtractionJobFailed, "boom"))
	failed, err := repo.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "boom", failed.Error)
	assert.NotNil(t, failed.FinishedAt)

	stillPending, err := repo.ListPendingJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, stillPending)
}

func TestGetJobMissingReturnsNilNotError(t *testing.T) {
	s := newTestStore(t)
	repo := NewJobRepository(s)
	got, err := repo.GetJob(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}
