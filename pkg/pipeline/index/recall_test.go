package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsync/civicsync/pkg/domain"
)

func TestRankedRecallReturnsEverythingUnderCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pages := map[string]string{"p1": "https://x/a", "p2": "https://x/b"}
	for id, url := range pages {
		require.NoError(t, s.PutPage(ctx, domain.Page{ID: id, WebsiteID: "w1", URL: url, Content: "c"}))
		require.NoError(t, s.PutSummary(ctx, domain.Summary{PageID: id, PromptHash: "h", Summary: "summary " + url}))
	}

	recalled, err := RankedRecall(ctx, s, "w1", nil, 10)
	require.NoError(t, err)
	assert.Len(t, recalled, 2)
}

func TestRankedRecallRanksOverCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	vectors := map[string][]float32{"p1": {1, 0}, "p2": {0, 1}, "p3": {0.9, 0.1}}
	for id, v := range vectors {
		require.NoError(t, s.PutPage(ctx, domain.Page{ID: id, WebsiteID: "w1", URL: "https://x/" + id, Content: "c"}))
		require.NoError(t, s.PutSummary(ctx, domain.Summary{PageID: id, PromptHash: "h", Summary: "s " + id}))
		require.NoError(t, s.PutEmbedding(ctx, domain.Embedding{OwnerType: "page", OwnerID: id, Model: "t", VectorNative: v}))
	}

	recalled, err := RankedRecall(ctx, s, "w1", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, recalled, 2)
	assert.Equal(t, "p1", recalled[0].Page.ID)
}
