package sync

import (
	"context"
	"fmt"

	"github.com/civicsync/civicsync/pkg/domain"
	"github.com/civicsync/civicsync/pkg/store"
)

// NoteProposalHandler is the "note" entity's ProposalHandler —
// insert/delete only, notes are never revised or merged
// (original_source's NoteProposalHandler has no update/merge paths).
type NoteProposalHandler struct {
	Notes     store.NoteRepository
	Proposals store.ProposalRepository
	WebsiteID string
}

func NewNoteProposalHandler(notes store.NoteRepository, proposals store.ProposalRepository, websiteID string) *NoteProposalHandler {
	return &NoteProposalHandler{Notes: notes, Proposals: proposals, WebsiteID: websiteID}
}

func (h *NoteProposalHandler) StageInsert(ctx context.Context, batchID string, fresh FreshEntity) (domain.SyncProposal, error) {
	draft := domain.Note{
		ID:        newID(),
		WebsiteID: h.WebsiteID,
		Body:      fresh.Description,
		Status:    domain.PostStatusPendingApproval,
	}
	if err := h.Notes.CreateNote(ctx, draft); err != nil {
		return domain.SyncProposal{}, fmt.Errorf("stage insert note: %w", err)
	}
	p := domain.SyncProposal{
		ID:            newID(),
		BatchID:       batchID,
		Operation:     domain.SyncOpInsert,
		EntityType:    "note",
		DraftEntityID: &draft.ID,
		Reason:        fmt.Sprintf("new note: %s", fresh.Title),
	}
	if err := h.Proposals.CreateProposal(ctx, p); err != nil {
		return domain.SyncProposal{}, fmt.Errorf("stage insert note: create proposal: %w", err)
	}
	return p, nil
}

func (h *NoteProposalHandler) StageUpdate(ctx context.Context, batchID string, fresh FreshEntity, targetID string) (domain.SyncProposal, error) {
	return domain.SyncProposal{}, fmt.Errorf("notes are never updated, only inserted or deleted")
}

func (h *NoteProposalHandler) StageDelete(ctx context.Context, batchID string, targetID string, reason string) (domain.SyncProposal, error) {
	p := domain.SyncProposal{
		ID:         newID(),
		BatchID:    batchID,
		Operation:  domain.SyncOpDelete,
		EntityType: "note",
		EntityID:   &targetID,
		Reason:     reason,
	}
	if err := h.Proposals.CreateProposal(ctx, p); err != nil {
		return domain.SyncProposal{}, fmt.Errorf("stage delete note: create proposal: %w", err)
	}
	return p, nil
}

func (h *NoteProposalHandler) StageMerge(ctx context.Context, batchID string, canonicalID string, duplicateIDs []string, mergedTitle, mergedDescription *string, reason string) (domain.SyncProposal, error) {
	return domain.SyncProposal{}, fmt.Errorf("notes are never merged")
}

func (h *NoteProposalHandler) Reject(ctx context.Context, p domain.SyncProposal) error {
	if p.DraftEntityID != nil {
		if err := h.Notes.DeleteNote(ctx, *p.DraftEntityID); err != nil {
			return fmt.Errorf("reject: delete draft note %s: %w", *p.DraftEntityID, err)
		}
	}
	return h.Proposals.RejectProposal(ctx, p.ID, "batch expired")
}
