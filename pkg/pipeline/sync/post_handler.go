package sync

import (
	"context"
	"fmt"

	"github.com/civicsync/civicsync/pkg/domain"
	"github.com/civicsync/civicsync/pkg/store"
)

// PostProposalHandler is the "post" entity's ProposalHandler: full
// insert/update/delete/merge, grounded on original_source's
// post_sync_handler (create_extracted_post for insert,
// update_post_with_owner's revision-replace-or-create for update).
type PostProposalHandler struct {
	Posts     store.PostRepository
	Proposals store.ProposalRepository
	WebsiteID string
}

func NewPostProposalHandler(posts store.PostRepository, proposals store.ProposalRepository, websiteID string) *PostProposalHandler {
	return &PostProposalHandler{Posts: posts, Proposals: proposals, WebsiteID: websiteID}
}

func (h *PostProposalHandler) StageInsert(ctx context.Context, batchID string, fresh FreshEntity) (domain.SyncProposal, error) {
	draft := domain.Post{
		ID:          newID(),
		WebsiteID:   h.WebsiteID,
		Title:       fresh.Title,
		Description: fresh.Description,
		Status:      domain.PostStatusPendingApproval,
	}
	if err := h.Posts.CreatePost(ctx, draft); err != nil {
		return domain.SyncProposal{}, fmt.Errorf("stage insert: create draft post: %w", err)
	}
	p := domain.SyncProposal{
		ID:            newID(),
		BatchID:       batchID,
		Operation:     domain.SyncOpInsert,
		EntityType:    "post",
		DraftEntityID: &draft.ID,
		Reason:        fmt.Sprintf("new post: %s", fresh.Title),
	}
	if err := h.Proposals.CreateProposal(ctx, p); err != nil {
		return domain.SyncProposal{}, fmt.Errorf("stage insert: create proposal: %w", err)
	}
	return p, nil
}

// StageUpdate creates a revision post targeting targetID, or replaces
// the content of an existing pending revision in place if one was
// already staged for the same target (original_source's
// update_post_with_owner).
func (h *PostProposalHandler) StageUpdate(ctx context.Context, batchID string, fresh FreshEntity, targetID string) (domain.SyncProposal, error) {
	existingRevision, err := h.Posts.FindRevisionForPost(ctx, targetID)
	if err != nil {
		return domain.SyncProposal{}, fmt.Errorf("stage update: find revision: %w", err)
	}

	var revisionID string
	if existingRevision != nil {
		if err := h.Posts.ReplaceRevisionContent(ctx, existingRevision.ID, fresh.Title, fresh.Description); err != nil {
			return domain.SyncProposal{}, fmt.Errorf("stage update: replace revision: %w", err)
		}
		revisionID = existingRevision.ID
	} else {
		revision := domain.Post{
			ID:               newID(),
			WebsiteID:        h.WebsiteID,
			Title:            fresh.Title,
			Description:      fresh.Description,
			Status:           domain.PostStatusPendingApproval,
			RevisionOfPostID: &targetID,
		}
		if err := h.Posts.CreatePost(ctx, revision); err != nil {
			return domain.SyncProposal{}, fmt.Errorf("stage update: create revision: %w", err)
		}
		revisionID = revision.ID
	}

	p := domain.SyncProposal{
		ID:            newID(),
		BatchID:       batchID,
		Operation:     domain.SyncOpUpdate,
		EntityType:    "post",
		DraftEntityID: &revisionID,
		EntityID:      &targetID,
		Reason:        fmt.Sprintf("updated content for: %s", fresh.Title),
	}
	if err := h.Proposals.CreateProposal(ctx, p); err != nil {
		return domain.SyncProposal{}, fmt.Errorf("stage update: create proposal: %w", err)
	}
	return p, nil
}

// StageDelete never touches the target post directly — only a
// reviewable proposal is recorded (spec.md §4.10 step 5). Protected
// statuses are filtered out by the caller before this is reached.
func (h *PostProposalHandler) StageDelete(ctx context.Context, batchID string, targetID string, reason string) (domain.SyncProposal, error) {
	p := domain.SyncProposal{
		ID:         newID(),
		BatchID:    batchID,
		Operation:  domain.SyncOpDelete,
		EntityType: "post",
		EntityID:   &targetID,
		Reason:     reason,
	}
	if err := h.Proposals.CreateProposal(ctx, p); err != nil {
		return domain.SyncProposal{}, fmt.Errorf("stage delete: create proposal: %w", err)
	}
	return p, nil
}

func (h *PostProposalHandler) StageMerge(ctx context.Context, batchID string, canonicalID string, duplicateIDs []string, mergedTitle, mergedDescription *string, reason string) (domain.SyncProposal, error) {
	var draftID *string
	if mergedTitle != nil || mergedDescription != nil {
		canonical, err := h.Posts.GetPost(ctx, canonicalID)
		if err != nil {
			return domain.SyncProposal{}, fmt.Errorf("stage merge: load canonical: %w", err)
		}
		title, description := canonical.Title, canonical.Description
		if mergedTitle != nil {
			title = *mergedTitle
		}
		if mergedDescription != nil {
			description = *mergedDescription
		}
		revision := domain.Post{
			ID:               newID(),
			WebsiteID:        h.WebsiteID,
			Title:            title,
			Description:      description,
			Status:           domain.PostStatusPendingApproval,
			RevisionOfPostID: &canonicalID,
		}
		if err := h.Posts.CreatePost(ctx, revision); err != nil {
			return domain.SyncProposal{}, fmt.Errorf("stage merge: create revision: %w", err)
		}
		draftID = &revision.ID
	}

	p := domain.SyncProposal{
		ID:             newID(),
		BatchID:        batchID,
		Operation:      domain.SyncOpMerge,
		EntityType:     "post",
		EntityID:       &canonicalID,
		DraftEntityID:  draftID,
		MergeSourceIDs: duplicateIDs,
		Reason:         reason,
	}
	if err := h.Proposals.CreateProposal(ctx, p); err != nil {
		return domain.SyncProposal{}, fmt.Errorf("stage merge: create proposal: %w", err)
	}
	return p, nil
}

// Reject cleans up any draft/revision the proposal created, then marks
// it rejected.
func (h *PostProposalHandler) Reject(ctx context.Context, p domain.SyncProposal) error {
	if p.DraftEntityID != nil {
		if err := h.Posts.DeletePost(ctx, *p.DraftEntityID); err != nil {
			return fmt.Errorf("reject: delete draft %s: %w", *p.DraftEntityID, err)
		}
	}
	return h.Proposals.RejectProposal(ctx, p.ID, "batch expired")
}
