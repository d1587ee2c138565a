package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/civicsync/civicsync/pkg/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// BatchRepository/ProposalRepository run either directly against the
// pool or inside a caller-managed transaction (the sync pipeline needs
// the latter: expiring a batch and staging a new one must be atomic).
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BatchRepository implements store.BatchRepository over sync_batches.
type BatchRepository struct{ db querier }

// NewBatchRepository returns a BatchRepository running against s's pool.
func NewBatchRepository(s *Store) *BatchRepository { return &BatchRepository{db: s.pool} }

// WithTx returns a BatchRepository bound to an in-flight transaction.
func (r *BatchRepository) WithTx(tx pgx.Tx) *BatchRepository { return &BatchRepository{db: tx} }

func (r *BatchRepository) CreateBatch(ctx context.Context, b domain.SyncBatch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = domain.SyncBatchPending
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO sync_batches (id, website_id, resource_kind, status, summary)
		VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.WebsiteID, b.ResourceKind, b.Status, b.Summary)
	return err
}

func (r *BatchRepository) GetPendingBatch(ctx context.Context, websiteID, resourceKind string) (*domain.SyncBatch, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, website_id, resource_kind, status, COALESCE(summary, ''), created_at, expired_at
		FROM sync_batches
		WHERE website_id = $1 AND resource_kind = $2 AND status = 'pending'
		ORDER BY created_at DESC LIMIT 1`, websiteID, resourceKind)
	var b domain.SyncBatch
	err := row.Scan(&b.ID, &b.WebsiteID, &b.ResourceKind, &b.Status, &b.Summary, &b.CreatedAt, &b.ExpiredAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BatchRepository) ExpireBatch(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sync_batches SET status = 'expired', expired_at = now() WHERE id = $1`, id)
	return err
}

func (r *BatchRepository) MarkBatchApplied(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE sync_batches SET status = 'applied' WHERE id = $1`, id)
	return err
}

// ProposalRepository implements store.ProposalRepository over sync_proposals.
type ProposalRepository struct{ db querier }

// NewProposalRepository returns a ProposalRepository running against s's pool.
func NewProposalRepository(s *Store) *ProposalRepository { return &ProposalRepository{db: s.pool} }

// WithTx returns a ProposalRepository bound to an in-flight transaction.
func (r *ProposalRepository) WithTx(tx pgx.Tx) *ProposalRepository { return &ProposalRepository{db: tx} }

func (r *ProposalRepository) CreateProposal(ctx context.Context, p domain.SyncProposal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.ProposalPending
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO sync_proposals (id, batch_id, operation, entity_type, entity_id, draft_entity_id, merge_source_ids, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.BatchID, p.Operation, p.EntityType, p.EntityID, p.DraftEntityID, p.MergeSourceIDs, p.Status, p.Reason)
	return err
}

func (r *ProposalRepository) RejectProposal(ctx context.Context, id, reason string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sync_proposals SET status = 'rejected', reason = $2 WHERE id = $1`, id, reason)
	return err
}

func (r *ProposalRepository) ListPendingProposalsForBatch(ctx context.Context, batchID string) ([]domain.SyncProposal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, batch_id, operation, entity_type, entity_id, draft_entity_id, merge_source_ids, status, COALESCE(reason, ''), created_at
		FROM sync_proposals
		WHERE batch_id = $1 AND status = 'pending'`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []domain.SyncProposal
	for rows.Next() {
		var p domain.SyncProposal
		if err := rows.Scan(&p.ID, &p.BatchID, &p.Operation, &p.EntityType, &p.EntityID,
			&p.DraftEntityID, &p.MergeSourceIDs, &p.Status, &p.Reason, &p.CreatedAt); err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}
