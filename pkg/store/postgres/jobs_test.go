package postgres

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

	job := domain.ExtractionJob{WebsiteID: "w1"}
	require.NoError(t, repo.CreateJob(ctx, job))

	pending, err := repo.ListPendingJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	id := pending[0].ID
	assert.Equal(t, domain.ExtractionJobPending, pending[0].Status)

	require.NoError(t, repo.UpdateJobStatus(ctx, id, domain.ExtractionJobRunning, ""))
	running, err := repo.GetJob(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, domain.ExtractionJobRunning, running.Status)
	assert.NotNil(t, running.StartedAt)

	require.NoError(t, repo.UpdateJobStatus(ctx, id, domain.ExtractionJobFailed, "boom"))
	failed, err := repo.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ExtractionJobFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
	assert.NotNil(t, failed.FinishedAt)

	stillPending, err := repo.ListPendingJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, stillPending)
}

func TestGetJobMissingReturnsNilNotError(t *testing.T) {
	s := newTestStore(t)
	repo := NewJobRepository(s)
	got, err := repo.GetJob(context.Background(), "00000000-0000-0000-0000-000000000099")
	require.NoError(t, err)
	assert.Nil(t, got)
}
