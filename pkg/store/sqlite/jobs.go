package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/civicsync/civicsync/pkg/domain"
)

// JobRepository implements store.JobRepository over extraction_jobs.
type JobRepository struct{ s *Store }

func NewJobRepository(s *Store) *JobRepository { return &JobRepository{s: s} }

func (r *JobRepository) CreateJob(ctx context.Context, job domain.ExtractionJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.ExtractionJobPending
	}
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO extraction_jobs (id, website_id, status, run_at) VALUES (?, ?, ?, ?)`,
		job.ID, job.WebsiteID, job.Status, formatNullTime(job.RunAt))
	return err
}

func (r *JobRepository) GetJob(ctx context.Context, id string) (*domain.ExtractionJob, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT id, website_id, status, run_at, started_at, finished_at, COALESCE(error, ''), created_at, updated_at
		FROM extraction_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (r *JobRepository) UpdateJobStatus(ctx context.Context, id string, status domain.ExtractionJobStatus, errMsg string) error {
	_, err := r.s.db.ExecContext(ctx, `
		UPDATE extraction_jobs SET
			status = ?,
			error = NULLIF(?, ''),
			started_at = CASE WHEN ? = 'running' THEN strftime('%Y-%m-%dT%H:%M:%fZ', 'now') ELSE started_at END,
			finished_at = CASE WHEN ? IN ('succeeded', 'failed') THEN strftime('%Y-%m-%dT%H:%M:%fZ', 'now') ELSE finished_at END,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = ?`, status, errMsg, status, status, id)
	return err
}

func (r *JobRepository) ListPendingJobs(ctx context.Context, limit int) ([]domain.ExtractionJob, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT id, website_id, status, run_at, started_at, finished_at, COALESCE(error, ''), created_at, updated_at
		FROM extraction_jobs
		WHERE status = 'pending' AND (run_at IS NULL OR run_at <= strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ORDER BY created_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.ExtractionJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func scanJob(row scannable) (*domain.ExtractionJob, error) {
	var j domain.ExtractionJob
	var runAt, startedAt, finishedAt sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&j.ID, &j.WebsiteID, &j.Status, &runAt, &startedAt, &finishedAt, &j.Error, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.RunAt = parseNullTime(runAt)
	j.StartedAt = parseNullTime(startedAt)
	j.FinishedAt = parseNullTime(finishedAt)
	j.CreatedAt = mustParseTime(createdAt)
	j.UpdatedAt = mustParseTime(updatedAt)
	return &j, nil
}
