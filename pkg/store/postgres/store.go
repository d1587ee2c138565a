// Package postgres implements pkg/store's repositories over pgx/v5,
// grounded on the teacher's hand-written-SQL idiom (pkg/database) and
// on original_source's postgres.rs for capability-gated query shape
// (native pgvector distance operator vs an application-side cosine
// fallback over the bytea column).
package postgres

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicsync/civicsync/pkg/database"
	"github.com/civicsync/civicsync/pkg/domain"
	"github.com/civicsync/civicsync/pkg/store"
)

// Store implements store.Store over a shared *pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
	caps database.Capabilities
}

// New wraps a connected database.Client's pool for use by the store
// repositories. The client has already run migrations and detected
// capabilities by the time this is called.
func New(client *database.Client) *Store {
	return &Store{pool: client.Pool(), caps: client.Capabilities()}
}

func (s *Store) GetPage(ctx context.Context, websiteID, url string) (*domain.Page, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, website_id, url, content, content_hash, fetched_at, created_at, updated_at
		FROM pages WHERE website_id = $1 AND url = $2`, websiteID, url)
	return scanPage(row)
}

func (s *Store) PutPage(ctx context.Context, p domain.Page) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pages (id, website_id, url, content, content_hash, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (website_id, url) DO UPDATE SET
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			fetched_at = EXCLUDED.fetched_at,
			updated_at = now()`,
		p.ID, p.WebsiteID, p.URL, p.Content, p.ContentHash, p.FetchedAt)
	return err
}

func (s *Store) ListPages(ctx context.Context, websiteID string) ([]domain.Page, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, website_id, url, content, content_hash, fetched_at, created_at, updated_at
		FROM pages WHERE website_id = $1 ORDER BY fetched_at DESC`, websiteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []domain.Page
	for rows.Next() {
		p, err := scanPageRows(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *p)
	}
	return pages, rows.Err()
}

func (s *Store) GetSummary(ctx context.Context, pageID string) (*domain.Summary, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, page_id, prompt_hash, summary, created_at
		FROM summaries WHERE page_id = $1 ORDER BY created_at DESC LIMIT 1`, pageID)
	var sm domain.Summary
	if err := row.Scan(&sm.ID, &sm.PageID, &sm.PromptHash, &sm.Summary, &sm.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &sm, nil
}

func (s *Store) PutSummary(ctx context.Context, sm domain.Summary) error {
	if sm.ID == "" {
		sm.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO summaries (id, page_id, prompt_hash, summary)
		VALUES ($1, $2, $3, $4)`,
		sm.ID, sm.PageID, sm.PromptHash, sm.Summary)
	return err
}

func (s *Store) InvalidateStaleSummaries(ctx context.Context, currentPromptHash string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM summaries WHERE prompt_hash <> $1`, currentPromptHash)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) PutEmbedding(ctx context.Context, emb domain.Embedding) error {
	if emb.ID == "" {
		emb.ID = uuid.NewString()
	}
	if s.caps.PgvectorEnabled && emb.VectorNative != nil {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO embeddings (id, owner_type, owner_id, model, vector_native)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (owner_type, owner_id, model) DO UPDATE SET vector_native = EXCLUDED.vector_native`,
			emb.ID, emb.OwnerType, emb.OwnerID, emb.Model, encodeVector(emb.VectorNative))
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO embeddings (id, owner_type, owner_id, model, vector_bytes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_type, owner_id, model) DO UPDATE SET vector_bytes = EXCLUDED.vector_bytes`,
		emb.ID, emb.OwnerType, emb.OwnerID, emb.Model, encodeFloats(emb.VectorNative))
	return err
}

// SearchSimilar runs a native pgvector cosine-distance query when the
// store has vector support, else falls back to scanning vector_bytes
// and ranking in process (fine at the page counts this system targets;
// see DESIGN.md for why this isn't IVFFLAT-by-default).
func (s *Store) SearchSimilar(ctx context.Context, queryVector []float32, limit int, filter *store.QueryFilter) ([]store.ScoredPage, error) {
	if s.caps.PgvectorEnabled {
		return s.searchSimilarNative(ctx, queryVector, limit, filter)
	}
	return s.searchSimilarFallback(ctx, queryVector, limit, filter)
}

func (s *Store) searchSimilarNative(ctx context.Context, queryVector []float32, limit int, filter *store.QueryFilter) ([]store.ScoredPage, error) {
	websiteID := ""
	if filter != nil {
		websiteID = filter.WebsiteID
	}
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.website_id, p.url, p.content, p.content_hash, p.fetched_at, p.created_at, p.updated_at,
		       1 - (e.vector_native <=> $1) AS score
		FROM embeddings e
		JOIN pages p ON p.id = e.owner_id AND e.owner_type = 'page'
		WHERE ($2 = '' OR p.website_id = $2)
		ORDER BY e.vector_native <=> $1
		LIMIT $3`, encodeVector(queryVector), websiteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScoredPages(rows)
}

func (s *Store) searchSimilarFallback(ctx context.Context, queryVector []float32, limit int, filter *store.QueryFilter) ([]store.ScoredPage, error) {
	websiteID := ""
	if filter != nil {
		websiteID = filter.WebsiteID
	}
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.website_id, p.url, p.content, p.content_hash, p.fetched_at, p.created_at, p.updated_at,
		       e.vector_bytes
		FROM embeddings e
		JOIN pages p ON p.id = e.owner_id AND e.owner_type = 'page'
		WHERE ($1 = '' OR p.website_id = $1)`, websiteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []store.ScoredPage
	for rows.Next() {
		var p domain.Page
		var vecBytes []byte
		if err := rows.Scan(&p.ID, &p.WebsiteID, &p.URL, &p.Content, &p.ContentHash,
			&p.FetchedAt, &p.CreatedAt, &p.UpdatedAt, &vecBytes); err != nil {
			return nil, err
		}
		vec := decodeFloats(vecBytes)
		scored = append(scored, store.ScoredPage{Page: p, Score: cosineSimilarity(queryVector, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortScoredDesc(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *Store) SearchKeyword(ctx context.Context, query string, limit int, filter *store.QueryFilter) ([]store.ScoredPage, error) {
	websiteID := ""
	if filter != nil {
		websiteID = filter.WebsiteID
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, website_id, url, content, content_hash, fetched_at, created_at, updated_at,
		       ts_rank(to_tsvector('english', content), plainto_tsquery('english', $1)) AS score
		FROM pages
		WHERE to_tsvector('english', content) @@ plainto_tsquery('english', $1)
		  AND ($2 = '' OR website_id = $2)
		ORDER BY score DESC
		LIMIT $3`, query, websiteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScoredPages(rows)
}

func scanScoredPages(rows pgx.Rows) ([]store.ScoredPage, error) {
	var out []store.ScoredPage
	for rows.Next() {
		var p domain.Page
		var score float64
		if err := rows.Scan(&p.ID, &p.WebsiteID, &p.URL, &p.Content, &p.ContentHash,
			&p.FetchedAt, &p.CreatedAt, &p.UpdatedAt, &score); err != nil {
			return nil, err
		}
		out = append(out, store.ScoredPage{Page: p, Score: score})
	}
	return out, rows.Err()
}

func scanPage(row pgx.Row) (*domain.Page, error) {
	var p domain.Page
	err := row.Scan(&p.ID, &p.WebsiteID, &p.URL, &p.Content, &p.ContentHash, &p.FetchedAt, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPageRows(rows pgx.Rows) (*domain.Page, error) {
	var p domain.Page
	err := rows.Scan(&p.ID, &p.WebsiteID, &p.URL, &p.Content, &p.ContentHash, &p.FetchedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// encodeVector formats a []float32 as pgvector's text input format,
// e.g. "[0.1,0.2,0.3]".
func encodeVector(v []float32) string {
	s := "["
	for i, f := range v {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%g", f)
	}
	return s + "]"
}

func encodeFloats(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloats(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortScoredDesc(s []store.ScoredPage) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Score > s[j].Score })
}
