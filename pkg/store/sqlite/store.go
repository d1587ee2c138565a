// Package sqlite implements pkg/store's repositories over
// modernc.org/sqlite, for local development and tests where standing
// up Postgres isn't worth it. Grounded on original_source's sqlite.rs:
// same table shapes, but LIKE-based keyword search in place of FTS5
// (modernc.org/sqlite doesn't ship the fts5 virtual table module) and
// an in-process cosine similarity pass in place of pgvector, since
// there is no vector extension to fall back on here at all.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/civicsync/civicsync/pkg/domain"
	"github.com/civicsync/civicsync/pkg/store"
)

// Store implements store.Store over a single *sql.DB connection to a
// SQLite file or in-memory database.
type Store struct {
	db *sql.DB
}

// Open connects to path (":memory:" for an ephemeral database) and
// applies the schema. SQLite serializes writers regardless of pool
// size, so the pool is capped at one connection to avoid SQLITE_BUSY
// churn under concurrent writes.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying connection for packages that need to
// share it outside the store.Store surface (the queue package's
// SQLiteStore mirrors jobs_queue on the same file/connection).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pages (
			id uuid PRIMARY KEY,
			website_id TEXT NOT NULL,
			url TEXT NOT NULL,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			fetched_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
			UNIQUE (website_id, url)
		);
		CREATE INDEX IF NOT EXISTS idx_pages_website_id ON pages(website_id);

		CREATE TABLE IF NOT EXISTS summaries (
			id TEXT PRIMARY KEY,
			page_id TEXT NOT NULL,
			prompt_hash TEXT NOT NULL,
			summary TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);
		CREATE INDEX IF NOT EXISTS idx_summaries_prompt_hash ON summaries(prompt_hash);

		CREATE TABLE IF NOT EXISTS embeddings (
			id TEXT PRIMARY KEY,
			owner_type TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			model TEXT NOT NULL,
			vector_bytes BLOB,
			UNIQUE (owner_type, owner_id, model)
		);

		CREATE TABLE IF NOT EXISTS extraction_jobs (
			id TEXT PRIMARY KEY,
			website_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			run_at TEXT,
			started_at TEXT,
			finished_at TEXT,
			error TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS gaps (
			id TEXT PRIMARY KEY,
			website_id TEXT NOT NULL,
			query TEXT NOT NULL,
			gap_type TEXT NOT NULL,
			recommended_weight REAL NOT NULL,
			investigated INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS investigation_logs (
			id TEXT PRIMARY KEY,
			gap_id TEXT NOT NULL,
			note TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS sync_batches (
			id TEXT PRIMARY KEY,
			website_id TEXT NOT NULL,
			resource_kind TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			summary TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
			expired_at TEXT
		);

		CREATE TABLE IF NOT EXISTS sync_proposals (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			draft_entity_id TEXT,
			merge_source_ids TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			reason TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			website_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			revision_of_post_id TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			website_id TEXT NOT NULL,
			post_id TEXT,
			body TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);

		CREATE TABLE IF NOT EXISTS jobs_queue (
			id TEXT PRIMARY KEY,
			type_tag TEXT NOT NULL,
			payload BLOB NOT NULL,
			correlation_id TEXT NOT NULL,
			idempotency_key TEXT,
			priority INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 3,
			version INTEGER NOT NULL DEFAULT 1,
			reference_id TEXT,
			container_id TEXT,
			run_at TEXT NOT NULL,
			claimed_at TEXT,
			claimed_by TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_queue_idempotency_key
			ON jobs_queue(idempotency_key) WHERE idempotency_key IS NOT NULL;
	`)
	return err
}

func (s *Store) GetPage(ctx context.Context, websiteID, url string) (*domain.Page, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, website_id, url, content, content_hash, fetched_at, created_at, updated_at
		FROM pages WHERE website_id = ? AND url = ?`, websiteID, url)
	return scanPage(row)
}

func (s *Store) PutPage(ctx context.Context, p domain.Page) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, website_id, url, content, content_hash, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (website_id, url) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			fetched_at = excluded.fetched_at,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		p.ID, p.WebsiteID, p.URL, p.Content, p.ContentHash, p.FetchedAt.Format(timeLayout))
	return err
}

func (s *Store) ListPages(ctx context.Context, websiteID string) ([]domain.Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, website_id, url, content, content_hash, fetched_at, created_at, updated_at
		FROM pages WHERE website_id = ? ORDER BY fetched_at DESC`, websiteID)
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
	row := s.db.QueryRowContext(ctx, `
		SELECT id, page_id, prompt_hash, summary, created_at
		FROM summaries WHERE page_id = ? ORDER BY created_at DESC LIMIT 1`, pageID)
	var sm domain.Summary
	var createdAt string
	if err := row.Scan(&sm.ID, &sm.PageID, &sm.PromptHash, &sm.Summary, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	sm.CreatedAt = mustParseTime(createdAt)
	return &sm, nil
}

func (s *Store) PutSummary(ctx context.Context, sm domain.Summary) error {
	if sm.ID == "" {
		sm.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (id, page_id, prompt_hash, summary) VALUES (?, ?, ?, ?)`,
		sm.ID, sm.PageID, sm.PromptHash, sm.Summary)
	return err
}

func (s *Store) InvalidateStaleSummaries(ctx context.Context, currentPromptHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM summaries WHERE prompt_hash <> ?`, currentPromptHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) PutEmbedding(ctx context.Context, emb domain.Embedding) error {
	if emb.ID == "" {
		emb.ID = uuid.NewString()
	}
	vec := emb.VectorBytes
	if vec == nil {
		vec = encodeFloats(emb.VectorNative)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (id, owner_type, owner_id, model, vector_bytes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_type, owner_id, model) DO UPDATE SET vector_bytes = excluded.vector_bytes`,
		emb.ID, emb.OwnerType, emb.OwnerID, emb.Model, vec)
	return err
}

// SearchSimilar has no vector extension to defer to here, so it always
// scans vector_bytes and ranks in process.
func (s *Store) SearchSimilar(ctx context.Context, queryVector []float32, limit int, filter *store.QueryFilter) ([]store.ScoredPage, error) {
	websiteID := ""
	if filter != nil {
		websiteID = filter.WebsiteID
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.website_id, p.url, p.content, p.content_hash, p.fetched_at, p.created_at, p.updated_at,
		       e.vector_bytes
		FROM embeddings e
		JOIN pages p ON p.id = e.owner_id AND e.owner_type = 'page'
		WHERE (? = '' OR p.website_id = ?)`, websiteID, websiteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []store.ScoredPage
	for rows.Next() {
		var p domain.Page
		var fetchedAt, createdAt, updatedAt string
		var vecBytes []byte
		if err := rows.Scan(&p.ID, &p.WebsiteID, &p.URL, &p.Content, &p.ContentHash,
			&fetchedAt, &createdAt, &updatedAt, &vecBytes); err != nil {
			return nil, err
		}
		p.FetchedAt, p.CreatedAt, p.UpdatedAt = mustParseTime(fetchedAt), mustParseTime(createdAt), mustParseTime(updatedAt)
		scored = append(scored, store.ScoredPage{Page: p, Score: cosineSimilarity(queryVector, decodeFloats(vecBytes))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// SearchKeyword uses a LIKE scan rather than FTS5 (see package doc).
// Fine at the page counts this backend targets; Postgres is the
// recommended backend once a site's corpus grows past local-dev scale.
func (s *Store) SearchKeyword(ctx context.Context, query string, limit int, filter *store.QueryFilter) ([]store.ScoredPage, error) {
	websiteID := ""
	if filter != nil {
		websiteID = filter.WebsiteID
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, website_id, url, content, content_hash, fetched_at, created_at, updated_at
		FROM pages
		WHERE content LIKE '%' || ? || '%' AND (? = '' OR website_id = ?)
		ORDER BY fetched_at DESC
		LIMIT ?`, query, websiteID, websiteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []store.ScoredPage
	for rows.Next() {
		p, err := scanPageRows(rows)
		if err != nil {
			return nil, err
		}
		// No relevance signal beyond containment; every match scores
		// equal and RRF fusion ranks purely on recency order above.
		scored = append(scored, store.ScoredPage{Page: *p, Score: 1})
	}
	return scored, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPage(row scannable) (*domain.Page, error) {
	var p domain.Page
	var fetchedAt, createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.WebsiteID, &p.URL, &p.Content, &p.ContentHash, &fetchedAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.FetchedAt, p.CreatedAt, p.UpdatedAt = mustParseTime(fetchedAt), mustParseTime(createdAt), mustParseTime(updatedAt)
	return &p, nil
}

func scanPageRows(rows *sql.Rows) (*domain.Page, error) {
	return scanPage(rows)
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
