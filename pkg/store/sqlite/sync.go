package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/civicsync/civicsync/pkg/domain"
)

// BatchRepository implements store.BatchRepository over sync_batches.
type BatchRepository struct{ s *Store }

func NewBatchRepository(s *Store) *BatchRepository { return &BatchRepository{s: s} }

func (r *BatchRepository) CreateBatch(ctx context.Context, b domain.SyncBatch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = domain.SyncBatchPending
	}
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO sync_batches (id, website_id, resource_kind, status, summary)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.WebsiteID, b.ResourceKind, b.Status, b.Summary)
	return err
}

func (r *BatchRepository) GetPendingBatch(ctx context.Context, websiteID, resourceKind string) (*domain.SyncBatch, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT id, website_id, resource_kind, status, COALESCE(summary, ''), created_at, expired_at
		FROM sync_batches
		WHERE website_id = ? AND resource_kind = ? AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1`, websiteID, resourceKind)
	var b domain.SyncBatch
	var createdAt string
	var expiredAt sql.NullString
	err := row.Scan(&b.ID, &b.WebsiteID, &b.ResourceKind, &b.Status, &b.Summary, &createdAt, &expiredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.CreatedAt = mustParseTime(createdAt)
	b.ExpiredAt = parseNullTime(expiredAt)
	return &b, nil
}

func (r *BatchRepository) ExpireBatch(ctx context.Context, id string) error {
	_, err := r.s.db.ExecContext(ctx, `
		UPDATE sync_batches SET status = 'expired', expired_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`, id)
	return err
}

func (r *BatchRepository) MarkBatchApplied(ctx context.Context, id string) error {
	_, err := r.s.db.ExecContext(ctx, `UPDATE sync_batches SET status = 'applied' WHERE id = ?`, id)
	return err
}

// ProposalRepository implements store.ProposalRepository over sync_proposals.
type ProposalRepository struct{ s *Store }

func NewProposalRepository(s *Store) *ProposalRepository { return &ProposalRepository{s: s} }

func (r *ProposalRepository) CreateProposal(ctx context.Context, p domain.SyncProposal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.ProposalPending
	}
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO sync_proposals (id, batch_id, operation, entity_type, entity_id, draft_entity_id, merge_source_ids, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BatchID, p.Operation, p.EntityType, p.EntityID, p.DraftEntityID, joinIDs(p.MergeSourceIDs), p.Status, p.Reason)
	return err
}

func (r *ProposalRepository) RejectProposal(ctx context.Context, id, reason string) error {
	_, err := r.s.db.ExecContext(ctx, `
		UPDATE sync_proposals SET status = 'rejected', reason = ? WHERE id = ?`, reason, id)
	return err
}

func (r *ProposalRepository) ListPendingProposalsForBatch(ctx context.Context, batchID string) ([]domain.SyncProposal, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT id, batch_id, operation, entity_type, entity_id, draft_entity_id, merge_source_ids, status, COALESCE(reason, ''), created_at
		FROM sync_proposals
		WHERE batch_id = ? AND status = 'pending'`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []domain.SyncProposal
	for rows.Next() {
		var p domain.SyncProposal
		var entityID, draftEntityID, mergeIDs sql.NullString
		var createdAt string
		if err := rows.Scan(&p.ID, &p.BatchID, &p.Operation, &p.EntityType, &entityID,
			&draftEntityID, &mergeIDs, &p.Status, &p.Reason, &createdAt); err != nil {
			return nil, err
		}
		if entityID.Valid {
			p.EntityID = &entityID.String
		}
		if draftEntityID.Valid {
			p.DraftEntityID = &draftEntityID.String
		}
		p.MergeSourceIDs = splitIDs(mergeIDs.String)
		p.CreatedAt = mustParseTime(createdAt)
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// joinIDs/splitIDs stand in for Postgres's native uuid[] column, which
// SQLite has no equivalent of; a comma-joined string is good enough
// for the small merge-source lists this domain produces.
func joinIDs(ids []string) string { return strings.Join(ids, ",") }

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
