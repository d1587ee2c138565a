package queue

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// PostgresStore implements Store over jobs_queue, claiming rows with
// `FOR UPDATE SKIP LOCKED` exactly as the teacher's claimNextSession
// claimed alert_sessions — adapted from ent's query builder to plain
// SQL since this package has no ent client.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Enqueue inserts the job, along with its full spec.md §6 job
// specification. A non-empty IdempotencyKey is enforced unique via
// idx_jobs_queue_idempotency_key: a second enqueue under the same key
// is a silent no-op rather than a duplicate row, matching
// original_source's "idempotency key for deduplication" contract.
func (s *PostgresStore) Enqueue(ctx context.Context, job Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs_queue (
			id, type_tag, payload, correlation_id, idempotency_key,
			priority, max_retries, version, reference_id, container_id, run_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING`,
		job.ID, job.TypeTag, job.Payload, job.CorrelationID, nullableText(job.IdempotencyKey),
		job.Priority, job.MaxRetries, job.Version, nullableText(job.ReferenceID), nullableText(job.ContainerID), job.RunAt)
	return err
}

func (s *PostgresStore) ClaimNext(ctx context.Context, workerID string) (*Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT id, type_tag, payload, correlation_id, COALESCE(idempotency_key, ''),
			priority, max_retries, version, COALESCE(reference_id::text, ''), COALESCE(container_id::text, ''),
			run_at, attempts, COALESCE(last_error, ''), created_at
		FROM jobs_queue
		WHERE claimed_at IS NULL AND run_at <= now()
		ORDER BY priority DESC, run_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)

	var j Job
	if err := row.Scan(&j.ID, &j.TypeTag, &j.Payload, &j.CorrelationID, &j.IdempotencyKey,
		&j.Priority, &j.MaxRetries, &j.Version, &j.ReferenceID, &j.ContainerID,
		&j.RunAt, &j.Attempts, &j.LastError, &j.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoJobsAvailable
		}
		return nil, err
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, `
		UPDATE jobs_queue SET claimed_at = $2, claimed_by = $3 WHERE id = $1`,
		j.ID, now, workerID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	j.ClaimedAt = &now
	j.ClaimedBy = workerID
	return &j, nil
}

// MarkSucceeded deletes the row: jobs_queue only tracks pending and
// in-flight work, not a completed-job history (spec.md's read model
// for completed work is the Pipeline's own jobs/extraction_jobs
// tables, not the Dispatcher's queue).
func (s *PostgresStore) MarkSucceeded(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM jobs_queue WHERE id = $1`, id)
	return err
}

// MarkFailed increments attempts and records the error. Below
// maxRetries the row is unclaimed (claimed_at/claimed_by cleared) so
// the next poll can retry it; at or above maxRetries it is left
// claimed with the error recorded, parked for operator inspection
// rather than retried forever or silently dropped.
func (s *PostgresStore) MarkFailed(ctx context.Context, id string, errMsg string, maxRetries int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs_queue SET
			attempts = attempts + 1,
			last_error = $2,
			claimed_at = CASE WHEN attempts + 1 < $3 THEN NULL ELSE claimed_at END,
			claimed_by = CASE WHEN attempts + 1 < $3 THEN NULL ELSE claimed_by END
		WHERE id = $1`, id, errMsg, maxRetries)
	return err
}

// ReclaimStale unclaims rows whose claimed_at predates olderThan,
// recovering work orphaned by a crashed worker (no heartbeat column
// exists on jobs_queue, so staleness is judged on claim age alone).
func (s *PostgresStore) ReclaimStale(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs_queue SET claimed_at = NULL, claimed_by = NULL
		WHERE claimed_at IS NOT NULL AND claimed_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Depth(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM jobs_queue WHERE claimed_at IS NULL`).Scan(&n)
	return n, err
}
