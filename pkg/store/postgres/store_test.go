package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/civicsync/civicsync/pkg/config"
	"github.com/civicsync/civicsync/pkg/database"
	"github.com/civicsync/civicsync/pkg/domain"
	"github.com/civicsync/civicsync/pkg/store"
)

// newTestStore starts a real Postgres container with pgvector disabled
// (deterministic across whatever image is pulled) and wraps it in a
// Store, exercising the same NewClient path production uses.
func newTestStore(t *testing.T) *Store {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dbCfg := config.DatabaseConfig{
		Host: host, Port: port.Int(), User: "test", Password: "test", Database: "test",
		SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 2,
	}
	disabled := false
	storeCfg := config.StoreConfig{Backend: "postgres", PgvectorEnabled: &disabled, HNSWEnabled: &disabled}

	client, err := database.NewClient(ctx, dbCfg, storeCfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return New(client)
}

func TestPutPageAndGetPageRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	page := domain.Page{WebsiteID: "w1", URL: "https://example.org/a", Content: "hello", ContentHash: "h1", FetchedAt: time.Now()}
	require.NoError(t, s.PutPage(ctx, page))

	got, err := s.GetPage(ctx, "w1", "https://example.org/a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Content)
}

func TestPutPageUpsertsOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	page := domain.Page{WebsiteID: "w1", URL: "https://example.org/a", Content: "v1", ContentHash: "h1", FetchedAt: time.Now()}
	require.NoError(t, s.PutPage(ctx, page))
	page.Content = "v2"
	page.ContentHash = "h2"
	require.NoError(t, s.PutPage(ctx, page))

	got, err := s.GetPage(ctx, "w1", "https://example.org/a")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)

	pages, err := s.ListPages(ctx, "w1")
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestGetPageMissingReturnsNilNotError(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetPage(context.Background(), "w1", "https://example.org/missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInvalidateStaleSummariesDeletesOnlyMismatched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	page := domain.Page{WebsiteID: "w1", URL: "https://example.org/a", Content: "c", ContentHash: "h", FetchedAt: time.Now()}
	require.NoError(t, s.PutPage(ctx, page))
	stored, err := s.GetPage(ctx, "w1", "https://example.org/a")
	require.NoError(t, err)

	require.NoError(t, s.PutSummary(ctx, domain.Summary{PageID: stored.ID, PromptHash: "old", Summary: "stale"}))
	require.NoError(t, s.PutSummary(ctx, domain.Summary{PageID: stored.ID, PromptHash: "new", Summary: "fresh"}))

	n, err := s.InvalidateStaleSummaries(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sm, err := s.GetSummary(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, sm)
	assert.Equal(t, "fresh", sm.Summary)
}

func TestSearchKeywordRanksByRelevance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutPage(ctx, domain.Page{WebsiteID: "w1", URL: "https://example.org/a", Content: "permit application for zoning variance", ContentHash: "h1", FetchedAt: time.Now()}))
	require.NoError(t, s.PutPage(ctx, domain.Page{WebsiteID: "w1", URL: "https://example.org/b", Content: "weekly trash collection schedule", ContentHash: "h2", FetchedAt: time.Now()}))

	results, err := s.SearchKeyword(ctx, "zoning permit", 10, &store.QueryFilter{WebsiteID: "w1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.org/a", results[0].Page.URL)
}

func TestSearchSimilarFallbackRanksByCosineSimilarity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pageA := domain.Page{WebsiteID: "w1", URL: "https://example.org/a", Content: "a", ContentHash: "h1", FetchedAt: time.Now()}
	pageB := domain.Page{WebsiteID: "w1", URL: "https://example.org/b", Content: "b", ContentHash: "h2", FetchedAt: time.Now()}
	require.NoError(t, s.PutPage(ctx, pageA))
	require.NoError(t, s.PutPage(ctx, pageB))
	gotA, err := s.GetPage(ctx, "w1", "https://example.org/a")
	require.NoError(t, err)
	gotB, err := s.GetPage(ctx, "w1", "https://example.org/b")
	require.NoError(t, err)

	require.NoError(t, s.PutEmbedding(ctx, domain.Embedding{OwnerType: "page", OwnerID: gotA.ID, Model: "m", VectorNative: []float32{1, 0, 0}}))
	require.NoError(t, s.PutEmbedding(ctx, domain.Embedding{OwnerType: "page", OwnerID: gotB.ID, Model: "m", VectorNative: []float32{0, 1, 0}}))

	results, err := s.SearchSimilar(ctx, []float32{1, 0, 0}, 10, &store.QueryFilter{WebsiteID: "w1"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "https://example.org/a", results[0].Page.URL)
}
