package queue

import (
	"context"
	"database/sql"
	"time"
)

const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements Store over jobs_queue for local dev/tests.
// SQLite has no row-level locking; since the store it shares a
// connection with already caps the pool at one connection (SQLite
// serializes writers regardless), a plain transaction around the
// select-then-claim is sufficient to prevent two local workers from
// claiming the same row — there is no FOR UPDATE SKIP LOCKED
// equivalent to reach for.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Enqueue inserts the job, along with its full spec.md §6 job
// specification. A non-empty IdempotencyKey is enforced unique via a
// partial unique index on idempotency_key: a second enqueue under the
// same key is a silent no-op rather than a duplicate row, matching
// original_source's "idempotency key for deduplication" contract.
func (s *SQLiteStore) Enqueue(ctx context.Context, job Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs_queue (
			id, type_tag, payload, correlation_id, idempotency_key,
			priority, max_retries, version, reference_id, container_id, run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING`,
		job.ID, job.TypeTag, job.Payload, job.CorrelationID, nullableText(job.IdempotencyKey),
		job.Priority, job.MaxRetries, job.Version, nullableText(job.ReferenceID), nullableText(job.ContainerID),
		job.RunAt.UTC().Format(sqliteTimeLayout))
	return err
}

func (s *SQLiteStore) ClaimNext(ctx context.Context, workerID string) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, type_tag, payload, correlation_id, COALESCE(idempotency_key, ''),
			priority, max_retries, version, COALESCE(reference_id, ''), COALESCE(container_id, ''),
			run_at, attempts, COALESCE(last_error, ''), created_at
		FROM jobs_queue
		WHERE claimed_at IS NULL AND run_at <= ?
		ORDER BY priority DESC, run_at
		LIMIT 1`, time.Now().UTC().Format(sqliteTimeLayout))

	var j Job
	var runAt, createdAt string
	if err := row.Scan(&j.ID, &j.TypeTag, &j.Payload, &j.CorrelationID, &j.IdempotencyKey,
		&j.Priority, &j.MaxRetries, &j.Version, &j.ReferenceID, &j.ContainerID,
		&runAt, &j.Attempts, &j.LastError, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoJobsAvailable
		}
		return nil, err
	}
	j.RunAt = mustParseSQLiteTime(runAt)
	j.CreatedAt = mustParseSQLiteTime(createdAt)

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs_queue SET claimed_at = ?, claimed_by = ? WHERE id = ?`,
		now.UTC().Format(sqliteTimeLayout), workerID, j.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	j.ClaimedAt = &now
	j.ClaimedBy = workerID
	return &j, nil
}

func (s *SQLiteStore) MarkSucceeded(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs_queue WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, errMsg string, maxRetries int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs_queue SET
			attempts = attempts + 1,
			last_error = ?,
			claimed_at = CASE WHEN attempts + 1 < ? THEN NULL ELSE claimed_at END,
			claimed_by = CASE WHEN attempts + 1 < ? THEN NULL ELSE claimed_by END
		WHERE id = ?`, errMsg, maxRetries, maxRetries, id)
	return err
}

func (s *SQLiteStore) ReclaimStale(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs_queue SET claimed_at = NULL, claimed_by = NULL
		WHERE claimed_at IS NOT NULL AND claimed_at < ?`, olderThan.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) Depth(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM jobs_queue WHERE claimed_at IS NULL`).Scan(&n)
	return n, err
}

func mustParseSQLiteTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
