package sqlite

import (
	"context"

	"github.com/google/uuid"

	"github.com/civicsync/civicsync/pkg/domain"
)

// GapRepository implements store.GapRepository over gaps/investigation_logs.
type GapRepository struct{ s *Store }

func NewGapRepository(s *Store) *GapRepository { return &GapRepository{s: s} }

func (r *GapRepository) CreateGap(ctx context.Context, gap domain.Gap) error {
	if gap.ID == "" {
		gap.ID = uuid.NewString()
	}
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO gaps (id, website_id, query, gap_type, recommended_weight, investigated)
		VALUES (?, ?, ?, ?, ?, ?)`,
		gap.ID, gap.WebsiteID, gap.Query, gap.GapType, gap.RecommendedWeight, gap.Investigated)
	return err
}

func (r *GapRepository) MarkInvestigated(ctx context.Context, gapID string) error {
	_, err := r.s.db.ExecContext(ctx, `UPDATE gaps SET investigated = 1 WHERE id = ?`, gapID)
	return err
}

func (r *GapRepository) AppendInvestigationLog(ctx context.Context, log domain.InvestigationLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO investigation_logs (id, gap_id, note) VALUES (?, ?, ?)`,
		log.ID, log.GapID, log.Note)
	return err
}

func (r *GapRepository) ListUninvestigatedGaps(ctx context.Context, websiteID string, limit int) ([]domain.Gap, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT id, website_id, query, gap_type, recommended_weight, investigated, created_at
		FROM gaps
		WHERE investigated = 0 AND (? = '' OR website_id = ?)
		ORDER BY created_at
		LIMIT ?`, websiteID, websiteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gaps []domain.Gap
	for rows.Next() {
		var g domain.Gap
		var createdAt string
		if err := rows.Scan(&g.ID, &g.WebsiteID, &g.Query, &g.GapType, &g.RecommendedWeight, &g.Investigated, &createdAt); err != nil {
			return nil, err
		}
		g.CreatedAt = mustParseTime(createdAt)
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}
