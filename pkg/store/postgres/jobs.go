package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/civicsync/civicsync/pkg/domain"
)

// JobRepository implements store.JobRepository over extraction_jobs.
type JobRepository struct{ s *Store }

// NewJobRepository returns a JobRepository sharing s's pool.
func NewJobRepository(s *Store) *JobRepository { return &JobRepository{s: s} }

func (r *JobRepository) CreateJob(ctx context.Context, job domain.ExtractionJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.ExtractionJobPending
	}
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO extraction_jobs (id, website_id, status, run_at)
		VALUES ($1, $2, $3, $4)`,
		job.ID, job.WebsiteID, job.Status, job.RunAt)
	return err
}

func (r *JobRepository) GetJob(ctx context.Context, id string) (*domain.ExtractionJob, error) {
	row := r.s.pool.QueryRow(ctx, `
		SELECT id, website_id, status, run_at, started_at, finished_at, COALESCE(error, ''), created_at, updated_at
		FROM extraction_jobs WHERE id = $1`, id)
	var j domain.ExtractionJob
	err := row.Scan(&j.ID, &j.WebsiteID, &j.Status, &j.RunAt, &j.StartedAt, &j.FinishedAt, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *JobRepository) UpdateJobStatus(ctx context.Context, id string, status domain.ExtractionJobStatus, errMsg string) error {
	_, err := r.s.pool.Exec(ctx, `
		UPDATE extraction_jobs SET
			status = $2,
			error = NULLIF($3, ''),
			started_at = CASE WHEN $2 = 'running' THEN now() ELSE started_at END,
			finished_at = CASE WHEN $2 IN ('succeeded', 'failed') THEN now() ELSE finished_at END,
			updated_at = now()
		WHERE id = $1`, id, status, errMsg)
	return err
}

func (r *JobRepository) ListPendingJobs(ctx context.Context, limit int) ([]domain.ExtractionJob, error) {
	rows, err := r.s.pool.Query(ctx, `
		SELECT id, website_id, status, run_at, started_at, finished_at, COALESCE(error, ''), created_at, updated_at
		FROM extraction_jobs
		WHERE status = 'pending' AND (run_at IS NULL OR run_at <= now())
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.ExtractionJob
	for rows.Next() {
		var j domain.ExtractionJob
		if err := rows.Scan(&j.ID, &j.WebsiteID, &j.Status, &j.RunAt, &j.StartedAt, &j.FinishedAt, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
