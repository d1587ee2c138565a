package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/civicsync/civicsync/pkg/domain"
	"github.com/civicsync/civicsync/pkg/pipeline/llm"
	"github.com/civicsync/civicsync/pkg/store"
)

// Result reports what a Sync run actually staged, per operation kind,
// plus any per-operation errors (spec.md §4.10 "Result object").
type Result struct {
	BatchID       string
	StagedInserts int
	StagedUpdates int
	StagedDeletes int
	StagedMerges  int
	Errors        []string
}

// Pipeline wires the LLM diff call to the store and the registered
// per-entity ProposalHandlers.
type Pipeline struct {
	Batches   store.BatchRepository
	Proposals store.ProposalRepository
	Handlers  map[string]ProposalHandler // entity_type -> handler ("post", "note")
	Client    llm.Client
}

// NewPipeline registers the "post" and "note" handlers SPEC_FULL §4.10
// names as this system's two entity types.
func NewPipeline(batches store.BatchRepository, proposals store.ProposalRepository, client llm.Client, post, note ProposalHandler) *Pipeline {
	return &Pipeline{
		Batches:   batches,
		Proposals: proposals,
		Client:    client,
		Handlers:  map[string]ProposalHandler{"post": post, "note": note},
	}
}

// Sync runs spec.md §4.10's full procedure for one (websiteID,
// resourceKind) resource key: expire any stale pending batch, diff
// fresh against existing via the LLM, apply the safety net, and stage
// every resulting operation as a proposal in a new batch.
func (p *Pipeline) Sync(ctx context.Context, websiteID, resourceKind, entityType string, fresh []FreshEntity, existing []ExistingEntity) (Result, error) {
	if err := p.expireStaleBatch(ctx, websiteID, resourceKind, entityType); err != nil {
		return Result{}, fmt.Errorf("sync: expire stale batch: %w", err)
	}

	if len(fresh) == 0 && len(existing) == 0 {
		batch := domain.SyncBatch{WebsiteID: websiteID, ResourceKind: resourceKind, Summary: "no entities to sync"}
		batch.ID = newID()
		if err := p.Batches.CreateBatch(ctx, batch); err != nil {
			return Result{}, fmt.Errorf("sync: create empty batch: %w", err)
		}
		return Result{BatchID: batch.ID}, nil
	}

	diff, err := runDiff(ctx, p.Client, fresh, existing)
	if err != nil {
		return Result{}, fmt.Errorf("sync: %w", err)
	}
	diff.Operations = applySafetyNet(diff.Operations, fresh)

	batch := domain.SyncBatch{ID: newID(), WebsiteID: websiteID, ResourceKind: resourceKind, Summary: diff.Summary}
	if err := p.Batches.CreateBatch(ctx, batch); err != nil {
		return Result{}, fmt.Errorf("sync: create batch: %w", err)
	}

	handler, ok := p.Handlers[entityType]
	if !ok {
		return Result{}, fmt.Errorf("sync: no ProposalHandler registered for entity type %q", entityType)
	}

	result := p.stageOperations(ctx, batch.ID, handler, diff.Operations, fresh, existing)
	result.BatchID = batch.ID
	return result, nil
}

// applySafetyNet auto-inserts any fresh entity not referenced by an
// insert or update operation. The LLM is allowed to under-specify but
// must never cause lost data (spec.md §4.10 step 4).
func applySafetyNet(ops []diffOperation, fresh []FreshEntity) []diffOperation {
	referenced := make(map[string]bool)
	for _, op := range ops {
		if (op.Operation == "insert" || op.Operation == "update") && op.FreshID != nil {
			referenced[*op.FreshID] = true
		}
	}
	for _, f := range fresh {
		if referenced[f.TempID] {
			continue
		}
		slog.Warn("llm sync skipped fresh entity, auto-inserting", "temp_id", f.TempID, "title", f.Title)
		tempID := f.TempID
		ops = append(ops, diffOperation{Operation: "insert", FreshID: &tempID})
	}
	return ops
}

func (p *Pipeline) stageOperations(ctx context.Context, batchID string, handler ProposalHandler, ops []diffOperation, fresh []FreshEntity, existing []ExistingEntity) Result {
	freshByID := make(map[string]FreshEntity, len(fresh))
	for _, f := range fresh {
		freshByID[f.TempID] = f
	}
	existingByID := make(map[string]ExistingEntity, len(existing))
	for _, e := range existing {
		existingByID[e.ID] = e
	}

	var result Result
	for _, op := range ops {
		switch op.Operation {
		case "insert":
			if op.FreshID == nil {
				result.Errors = append(result.Errors, "insert operation missing fresh_id")
				continue
			}
			f, ok := freshByID[*op.FreshID]
			if !ok {
				result.Errors = append(result.Errors, fmt.Sprintf("insert references unknown fresh_id %s", *op.FreshID))
				continue
			}
			if _, err := handler.StageInsert(ctx, batchID, f); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("insert %s: %v", f.TempID, err))
				continue
			}
			result.StagedInserts++

		case "update":
			if op.FreshID == nil || op.ExistingID == nil {
				result.Errors = append(result.Errors, "update operation missing fresh_id or existing_id")
				continue
			}
			f, fOK := freshByID[*op.FreshID]
			existingEntity, eOK := existingByID[*op.ExistingID]
			if !fOK || !eOK {
				result.Errors = append(result.Errors, fmt.Sprintf("update references unknown ids %s/%s", *op.FreshID, *op.ExistingID))
				continue
			}
			if _, err := handler.StageUpdate(ctx, batchID, f, existingEntity.ID); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("update %s: %v", existingEntity.ID, err))
				continue
			}
			result.StagedUpdates++

		case "delete":
			if op.ExistingID == nil {
				result.Errors = append(result.Errors, "delete operation missing existing_id")
				continue
			}
			existingEntity, ok := existingByID[*op.ExistingID]
			if !ok {
				continue
			}
			if isProtected(existingEntity.Status) {
				slog.Warn("llm sync proposed deleting a protected entity, skipping", "id", existingEntity.ID, "status", existingEntity.Status)
				continue
			}
			reason := ""
			if op.Reason != nil {
				reason = *op.Reason
			}
			if _, err := handler.StageDelete(ctx, batchID, existingEntity.ID, reason); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", existingEntity.ID, err))
				continue
			}
			result.StagedDeletes++

		case "merge":
			if op.CanonicalID == nil {
				result.Errors = append(result.Errors, "merge operation missing canonical_id")
				continue
			}
			if len(op.DuplicateIDs) == 0 {
				slog.Warn("llm sync returned merge with no duplicate_ids, skipping", "canonical_id", *op.CanonicalID)
				continue
			}
			reason := ""
			if op.Reason != nil {
				reason = *op.Reason
			}
			if _, err := handler.StageMerge(ctx, batchID, *op.CanonicalID, op.DuplicateIDs, op.MergedTitle, op.MergedDescription, reason); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("merge %s: %v", *op.CanonicalID, err))
				continue
			}
			result.StagedMerges++

		default:
			slog.Warn("llm sync returned unknown operation type, skipping", "operation", op.Operation)
		}
	}
	return result
}

func isProtected(status domain.PostStatus) bool {
	return status == domain.PostStatusActive || status == domain.PostStatusPendingApproval
}

// expireStaleBatch is spec.md §4.10 step 6: reject every pending
// proposal for the resource key's current pending batch (cleaning up
// its draft entity via the registered handler) and mark the batch
// itself expired, before a new batch is staged.
func (p *Pipeline) expireStaleBatch(ctx context.Context, websiteID, resourceKind, entityType string) error {
	batch, err := p.Batches.GetPendingBatch(ctx, websiteID, resourceKind)
	if err != nil {
		return fmt.Errorf("get pending batch: %w", err)
	}
	if batch == nil {
		return nil
	}

	pending, err := p.Proposals.ListPendingProposalsForBatch(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("list pending proposals: %w", err)
	}
	for _, proposal := range pending {
		handler, ok := p.Handlers[proposal.EntityType]
		if !ok {
			slog.Warn("no handler registered for proposal entity type during batch expiry", "entity_type", proposal.EntityType)
			continue
		}
		if err := handler.Reject(ctx, proposal); err != nil {
			slog.Warn("draft cleanup failed during batch expiry", "proposal_id", proposal.ID, "error", err)
		}
	}

	if err := p.Batches.ExpireBatch(ctx, batch.ID); err != nil {
		return fmt.Errorf("expire batch %s: %w", batch.ID, err)
	}
	slog.Info("expired stale pending batch with draft cleanup", "website_id", websiteID, "resource_kind", resourceKind, "batch_id", batch.ID, "expired_proposals", len(pending))
	return nil
}
