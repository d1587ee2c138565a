// Package store defines the small async interface family spec.md §4.9
// groups pages/summaries/embeddings/keyword-search CRUD under, plus
// the read-model repositories for extraction jobs, gaps, and the sync
// pipeline's batches/proposals. Two implementations exist:
// pkg/store/postgres (production) and pkg/store/sqlite (local dev and
// test), both satisfying these same interfaces.
package store

import (
	"context"

	"github.com/civicsync/civicsync/pkg/domain"
)

// QueryFilter narrows a search to a specific website; an empty
// WebsiteID means "search everything".
type QueryFilter struct {
	WebsiteID string
}

// ScoredPage is a Page with a search-relevance score attached, used by
// both keyword and vector search results before RRF fusion.
type ScoredPage struct {
	Page  domain.Page
	Score float64
}

// PageCache stores and retrieves fetched page snapshots, keyed by
// (website_id, url).
type PageCache interface {
	GetPage(ctx context.Context, websiteID, url string) (*domain.Page, error)
	PutPage(ctx context.Context, page domain.Page) error
	ListPages(ctx context.Context, websiteID string) ([]domain.Page, error)
}

// SummaryCache stores LLM-produced summaries and supports bulk
// invalidation when the prompt that produces them changes.
type SummaryCache interface {
	GetSummary(ctx context.Context, pageID string) (*domain.Summary, error)
	PutSummary(ctx context.Context, summary domain.Summary) error
	// InvalidateStaleSummaries deletes every summary whose prompt_hash
	// differs from currentPromptHash and returns the affected row count
	// (spec §4.9).
	InvalidateStaleSummaries(ctx context.Context, currentPromptHash string) (int64, error)
}

// EmbeddingStore persists vectors and supports nearest-neighbor search.
// The concrete backend decides whether similarity runs in the database
// (pgvector) or in the calling process (SQLite, bytea fallback).
type EmbeddingStore interface {
	PutEmbedding(ctx context.Context, emb domain.Embedding) error
	// SearchSimilar returns up to limit pages ranked by cosine similarity
	// to queryVector, most similar first.
	SearchSimilar(ctx context.Context, queryVector []float32, limit int, filter *QueryFilter) ([]ScoredPage, error)
}

// KeywordSearch performs full-text search over page content.
type KeywordSearch interface {
	// SearchKeyword returns up to limit pages ranked by full-text
	// relevance to query, most relevant first.
	SearchKeyword(ctx context.Context, query string, limit int, filter *QueryFilter) ([]ScoredPage, error)
}

// Store bundles the four CRUD families a Postgres or SQLite backend
// must implement together, since they share one connection/pool.
type Store interface {
	PageCache
	SummaryCache
	EmbeddingStore
	KeywordSearch
}

// JobRepository is the read-model CRUD surface for extraction_jobs.
type JobRepository interface {
	CreateJob(ctx context.Context, job domain.ExtractionJob) error
	GetJob(ctx context.Context, id string) (*domain.ExtractionJob, error)
	UpdateJobStatus(ctx context.Context, id string, status domain.ExtractionJobStatus, errMsg string) error
	ListPendingJobs(ctx context.Context, limit int) ([]domain.ExtractionJob, error)
}

// GapRepository is the CRUD surface for recall gaps and their
// investigation logs.
type GapRepository interface {
	CreateGap(ctx context.Context, gap domain.Gap) error
	MarkInvestigated(ctx context.Context, gapID string) error
	AppendInvestigationLog(ctx context.Context, log domain.InvestigationLog) error
	ListUninvestigatedGaps(ctx context.Context, websiteID string, limit int) ([]domain.Gap, error)
}

// ProposalRepository is the CRUD surface for sync proposals.
type ProposalRepository interface {
	CreateProposal(ctx context.Context, p domain.SyncProposal) error
	RejectProposal(ctx context.Context, id, reason string) error
	ListPendingProposalsForBatch(ctx context.Context, batchID string) ([]domain.SyncProposal, error)
}

// BatchRepository is the CRUD surface for sync batches, including the
// expiry sweep spec §4.10 step 6 requires before staging a new batch.
type BatchRepository interface {
	CreateBatch(ctx context.Context, b domain.SyncBatch) error
	GetPendingBatch(ctx context.Context, websiteID, resourceKind string) (*domain.SyncBatch, error)
	ExpireBatch(ctx context.Context, id string) error
	MarkBatchApplied(ctx context.Context, id string) error
}

// SyncRepository bundles the proposal/batch CRUD the sync pipeline
// needs in one transaction-friendly handle.
type SyncRepository interface {
	ProposalRepository
	BatchRepository
}

// PostRepository is the CRUD surface ProposalHandlers use to create
// drafts/revisions for the "post" entity type (spec.md §4.10 step 5).
type PostRepository interface {
	CreatePost(ctx context.Context, p domain.Post) error
	GetPost(ctx context.Context, id string) (*domain.Post, error)
	ListPostsByWebsite(ctx context.Context, websiteID string) ([]domain.Post, error)
	UpdatePostStatus(ctx context.Context, id string, status domain.PostStatus) error
	// FindRevisionForPost returns the pending revision post targeting
	// id, if one already exists (spec.md §4.10 step 5's "if a revision
	// already exists for that target, replace its content in place").
	FindRevisionForPost(ctx context.Context, postID string) (*domain.Post, error)
	ReplaceRevisionContent(ctx context.Context, revisionID, title, description string) error
	DeletePost(ctx context.Context, id string) error
}

// NoteRepository is the CRUD surface for the "note" entity type —
// insert/delete only, never revised or merged (spec.md §4.10,
// SPEC_FULL §4.10 note handler).
type NoteRepository interface {
	CreateNote(ctx context.Context, n domain.Note) error
	DeleteNote(ctx context.Context, id string) error
}
