package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsync/civicsync/pkg/domain"
)

func TestGapInvestigationLifecycle(t *testing.T) {
	s := newTestStore(t)
	repo := NewGapRepository(s)
	ctx := context.Background()

	gap := domain.Gap{WebsiteID: "w1", Query: "school board meeting minutes", GapType: domain.GapSemantic, RecommendedWeight: 0.8}
	require.NoError(t, repo.CreateGap(ctx, gap))

	open, err := repo.ListUninvestigatedGaps(ctx, "w1", 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	id := open[0].ID
	assert.Equal(t, domain.GapSemantic, open[0].GapType)

	require.NoError(t, repo.AppendInvestigationLog(ctx, domain.InvestigationLog{GapID: id, Note: "re-ran with semantic_weight=0.8, still thin"}))
	require.NoError(t, repo.MarkInvestigated(ctx, id))

	open, err = repo.ListUninvestigatedGaps(ctx, "w1", 10)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestListUninvestigatedGapsFiltersByWebsite(t *testing.T) {
	s := newTestStore(t)
	repo := NewGapRepository(s)
	ctx := context.Background()

	require.NoError(t, repo.CreateGap(ctx, domain.Gap{WebsiteID: "w1", Query: "q1", GapType: domain.GapEntity, RecommendedWeight: 0.2}))
	require.NoError(t, repo.CreateGap(ctx, domain.Gap{WebsiteID: "w2", Query: "q2", GapType: domain.GapStructural, RecommendedWeight: 0.9}))

	gaps, err := repo.ListUninvestigatedGaps(ctx, "w1", 10)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, "q1", gaps[0].Query)
}
