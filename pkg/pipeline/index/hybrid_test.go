package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsync/civicsync/pkg/domain"
	"github.com/civicsync/civicsync/pkg/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHybridSearchFusesSemanticAndKeywordRanks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustPutPage(t, s, domain.Page{ID: "p1", WebsiteID: "w1", URL: "https://x/a", Content: "volunteer shifts at the food shelf"})
	mustPutPage(t, s, domain.Page{ID: "p2", WebsiteID: "w1", URL: "https://x/b", Content: "donation drop-off hours"})

	require.NoError(t, s.PutEmbedding(ctx, domain.Embedding{OwnerType: "page", OwnerID: "p1", Model: "test", VectorNative: []float32{1, 0, 0}}))
	require.NoError(t, s.PutEmbedding(ctx, domain.Embedding{OwnerType: "page", OwnerID: "p2", Model: "test", VectorNative: []float32{0, 1, 0}}))

	results, err := HybridSearch(ctx, s, "volunteer", []float32{1, 0, 0}, 10, nil, 0.5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "https://x/a", results[0].Page.URL)
}

func TestHybridSearchFallsBackToKeywordOnlyWithoutVector(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustPutPage(t, s, domain.Page{ID: "p1", WebsiteID: "w1", URL: "https://x/a", Content: "food pantry hours"})

	results, err := HybridSearch(ctx, s, "pantry", nil, 10, nil, 0.7, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://x/a", results[0].Page.URL)
}

func mustPutPage(t *testing.T, s *sqlite.Store, p domain.Page) {
	t.Helper()
	require.NoError(t, s.PutPage(context.Background(), p))
}
