// Package sync implements the LLM-driven diff pipeline spec.md §4.10
// describes: comparing freshly extracted entities against what's
// already staged/applied for a website, and recording the result as
// reviewable proposals rather than writing straight to the published
// tables. Grounded on
// original_source/packages/server/src/domains/posts/activities/llm_sync.rs
// (the diff call, the safety net, the staging loop) and
// original_source/packages/server/src/domains/curator/activities/stage_actions.rs
// (stale-batch expiry with draft cleanup delegated to per-entity
// handlers).
package sync

import (
	"context"

	"github.com/google/uuid"

	"github.com/civicsync/civicsync/pkg/domain"
)

// FreshEntity is one freshly extracted item, given a stable temporary
// ID ("fresh_1", "fresh_2", ...) so the LLM diff prompt can reference
// it without needing a real UUID yet.
type FreshEntity struct {
	TempID      string
	Title       string
	Description string
}

// ExistingEntity is one already-known entity the fresh set is compared
// against.
type ExistingEntity struct {
	ID          string
	Title       string
	Description string
	Status      domain.PostStatus
}

// ProposalHandler knows how to create drafts/revisions and reject/clean
// up pending proposals for one entity type (SPEC_FULL §4.10). "post"
// and "note" are registered; post gets full CRUD, note is insert/delete
// only since it's never revised or merged.
type ProposalHandler interface {
	StageInsert(ctx context.Context, batchID string, fresh FreshEntity) (domain.SyncProposal, error)
	StageUpdate(ctx context.Context, batchID string, fresh FreshEntity, targetID string) (domain.SyncProposal, error)
	StageDelete(ctx context.Context, batchID string, targetID string, reason string) (domain.SyncProposal, error)
	StageMerge(ctx context.Context, batchID string, canonicalID string, duplicateIDs []string, mergedTitle, mergedDescription *string, reason string) (domain.SyncProposal, error)
	// Reject cleans up any draft/revision p.Stage* created, then marks
	// p itself rejected. Called when a stale batch is expired.
	Reject(ctx context.Context, p domain.SyncProposal) error
}

func newID() string { return uuid.NewString() }
