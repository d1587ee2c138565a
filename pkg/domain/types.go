// Package domain holds the plain data types shared by the store and
// pipeline packages — the Go shape of spec.md §3's Data Model entities
// (pages, summaries, embeddings, signals, extraction jobs, gaps,
// investigation logs, civic entities, sync batches/proposals). These
// are passed by value between store repositories and pipeline effects;
// none of them carry behavior of their own.
package domain

import "time"

// Page is a fetched and stored snapshot of a single URL.
type Page struct {
	ID          string
	WebsiteID   string
	URL         string
	Content     string
	ContentHash string
	FetchedAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Summary is an LLM-produced condensation of a Page, keyed by the hash
// of the prompt that produced it so a prompt change can invalidate
// every stale summary in one pass (spec §4.9 invalidate_stale_summaries).
type Summary struct {
	ID         string
	PageID     string
	PromptHash string
	Summary    string
	CreatedAt  time.Time
}

// Embedding is a vector over some owner entity (a Page or a Summary,
// named generically since the store doesn't care which). VectorNative
// is populated when the store's capability detection found pgvector;
// VectorBytes is the portable fallback (also what the SQLite store
// always uses).
type Embedding struct {
	ID           string
	OwnerType    string
	OwnerID      string
	Model        string
	VectorNative []float32
	VectorBytes  []byte
	CreatedAt    time.Time
}

// Signal is a normalized observation about a website (a structural
// change, a new feed entry, anything the crawler or extraction engine
// decided was worth recording without itself being an extraction
// result).
type Signal struct {
	ID         string
	WebsiteID  string
	Kind       string
	Payload    []byte
	ObservedAt time.Time
	CreatedAt  time.Time
}

// ExtractionJobStatus is the lifecycle state of an ExtractionJob row.
type ExtractionJobStatus string

const (
	ExtractionJobPending   ExtractionJobStatus = "pending"
	ExtractionJobRunning   ExtractionJobStatus = "running"
	ExtractionJobSucceeded ExtractionJobStatus = "succeeded"
	ExtractionJobFailed    ExtractionJobStatus = "failed"
)

// ExtractionJob is the read-model row for a website's extraction run —
// distinct from the Dispatcher's jobs_queue (spec.md §4.3/§4.9).
type ExtractionJob struct {
	ID         string
	WebsiteID  string
	Status     ExtractionJobStatus
	RunAt      *time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GapType classifies why a recall query came back thin, driving the
// recommended semantic weight for a follow-up search (spec §4.8.2).
type GapType string

const (
	GapEntity     GapType = "entity"
	GapSemantic   GapType = "semantic"
	GapStructural GapType = "structural"
)

// Gap is a recorded instance of a query that under-returned results,
// along with the investigation's recommendation.
type Gap struct {
	ID                string
	WebsiteID         string
	Query             string
	GapType           GapType
	RecommendedWeight float64
	Investigated      bool
	CreatedAt         time.Time
}

// InvestigationLog is a free-text note attached to a Gap as it's
// worked, e.g. "re-ran with semantic_weight=0.8, still thin".
type InvestigationLog struct {
	ID        string
	GapID     string
	Note      string
	CreatedAt time.Time
}

// PostStatus is the lifecycle state of a civic-entity Post.
type PostStatus string

const (
	PostStatusActive          PostStatus = "active"
	PostStatusPendingApproval PostStatus = "pending_approval"
	PostStatusRejected        PostStatus = "rejected"
)

// Post is the first and default civic entity the sync pipeline stages
// proposals against (SPEC_FULL §3 Entity reference).
type Post struct {
	ID               string
	WebsiteID        string
	Title            string
	Description      string
	Status           PostStatus
	RevisionOfPostID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Note is the second registered civic entity — simpler lifecycle than
// Post: it is only ever inserted or deleted, never revised or merged.
type Note struct {
	ID        string
	WebsiteID string
	PostID    *string
	Body      string
	Status    PostStatus
	CreatedAt time.Time
}

// SyncBatchStatus is the lifecycle state of a SyncBatch.
type SyncBatchStatus string

const (
	SyncBatchPending SyncBatchStatus = "pending"
	SyncBatchApplied SyncBatchStatus = "applied"
	SyncBatchExpired SyncBatchStatus = "expired"
)

// SyncBatch groups every SyncProposal produced by one sync pipeline
// run, keyed by (WebsiteID, ResourceKind) so a later run can find and
// expire the earlier one (spec §4.10 step 6).
type SyncBatch struct {
	ID           string
	WebsiteID    string
	ResourceKind string
	Status       SyncBatchStatus
	Summary      string
	CreatedAt    time.Time
	ExpiredAt    *time.Time
}

// SyncOperation is the discriminator on a staged SyncProposal.
type SyncOperation string

const (
	SyncOpInsert SyncOperation = "insert"
	SyncOpUpdate SyncOperation = "update"
	SyncOpDelete SyncOperation = "delete"
	SyncOpMerge  SyncOperation = "merge"
)

// ProposalStatus is the lifecycle state of a SyncProposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApplied  ProposalStatus = "applied"
	ProposalRejected ProposalStatus = "rejected"
)

// SyncProposal is one staged change against an entity reference
// (EntityType, EntityID) — spec §4.10 step 5, generalized per
// SPEC_FULL §3's Entity reference note.
type SyncProposal struct {
	ID             string
	BatchID        string
	Operation      SyncOperation
	EntityType     string
	EntityID       *string
	DraftEntityID  *string
	MergeSourceIDs []string
	Status         ProposalStatus
	Reason         string
	CreatedAt      time.Time
}
