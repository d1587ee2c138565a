package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/civicsync/civicsync/pkg/domain"
)

// GapRepository implements store.GapRepository over gaps/investigation_logs.
type GapRepository struct{ s *Store }

// NewGapRepository returns a GapRepository sharing s's pool.
func NewGapRepository(s *Store) *GapRepository { return &GapRepository{s: s} }

func (r *GapRepository) CreateGap(ctx context.Context, gap domain.Gap) error {
	if gap.ID == "" {
		gap.ID = uuid.NewString()
	}
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO gaps (id, website_id, query, gap_type, recommended_weight, investigated)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		gap.ID, gap.WebsiteID, gap.Query, gap.GapType, gap.RecommendedWeight, gap.Investigated)
	return err
}

func (r *GapRepository) MarkInvestigated(ctx context.Context, gapID string) error {
	_, err := r.s.pool.Exec(ctx, `UPDATE gaps SET investigated = true WHERE id = $1`, gapID)
	return err
}

func (r *GapRepository) AppendInvestigationLog(ctx context.Context, log domain.InvestigationLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO investigation_logs (id, gap_id, note) VALUES ($1, $2, $3)`,
		log.ID, log.GapID, log.Note)
	return err
}

func (r *GapRepository) ListUninvestigatedGaps(ctx context.Context, websiteID string, limit int) ([]domain.Gap, error) {
	rows, err := r.s.pool.Query(ctx, `
		SELECT id, website_id, query, gap_type, recommended_weight, investigated, created_at
		FROM gaps
		WHERE investigated = false AND ($1 = '' OR website_id = $1)
		ORDER BY created_at
		LIMIT $2`, websiteID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gaps []domain.Gap
	for rows.Next() {
		var g domain.Gap
		if err := rows.Scan(&g.ID, &g.WebsiteID, &g.Query, &g.GapType, &g.RecommendedWeight, &g.Investigated, &g.CreatedAt); err != nil {
			return nil, err
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}
