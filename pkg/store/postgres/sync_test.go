package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsync/civicsync/pkg/domain"
)

func TestBatchAndProposalLifecycle(t *testing.T) {
	s := newTestStore(t)
	batches := NewBatchRepository(s)
	proposals := NewProposalRepository(s)
	ctx := context.Background()

	batch := domain.SyncBatch{WebsiteID: "w1", ResourceKind: "post", Summary: "3 new posts found"}
	require.NoError(t, batches.CreateBatch(ctx, batch))

	pending, err := batches.GetPendingBatch(ctx, "w1", "post")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, domain.SyncBatchPending, pending.Status)

	prop := domain.SyncProposal{BatchID: pending.ID, Operation: domain.SyncOpInsert, EntityType: "post"}
	require.NoError(t, proposals.CreateProposal(ctx, prop))

	open, err := proposals.ListPendingProposalsForBatch(ctx, pending.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, proposals.RejectProposal(ctx, open[0].ID, "duplicate of an existing post"))
	open, err = proposals.ListPendingProposalsForBatch(ctx, pending.ID)
	require.NoError(t, err)
	assert.Empty(t, open)

	require.NoError(t, batches.MarkBatchApplied(ctx, pending.ID))
	stillPending, err := batches.GetPendingBatch(ctx, "w1", "post")
	require.NoError(t, err)
	assert.Nil(t, stillPending)
}

func TestExpireBatchBeforeStagingReplacement(t *testing.T) {
	s := newTestStore(t)
	batches := NewBatchRepository(s)
	ctx := context.Background()

	first := domain.SyncBatch{WebsiteID: "w1", ResourceKind: "post"}
	require.NoError(t, batches.CreateBatch(ctx, first))
	pending, err := batches.GetPendingBatch(ctx, "w1", "post")
	require.NoError(t, err)

	require.NoError(t, batches.ExpireBatch(ctx, pending.ID))

	second := domain.SyncBatch{WebsiteID: "w1", ResourceKind: "post"}
	require.NoError(t, batches.CreateBatch(ctx, second))

	latest, err := batches.GetPendingBatch(ctx, "w1", "post")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.NotEqual(t, pending.ID, latest.ID)
}

func TestBatchRepositoryWithTxCommitsAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx, err := s.pool.Begin(ctx)
	require.NoError(t, err)

	txBatches := NewBatchRepository(s).WithTx(tx)
	batch := domain.SyncBatch{WebsiteID: "w1", ResourceKind: "note"}
	require.NoError(t, txBatches.CreateBatch(ctx, batch))
	require.NoError(t, tx.Commit(ctx))

	pending, err := NewBatchRepository(s).GetPendingBatch(ctx, "w1", "note")
	require.NoError(t, err)
	require.NotNil(t, pending)
}
