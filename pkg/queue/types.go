// Package queue implements the production runtime.JobQueue: a
// Postgres-backed (or SQLite-backed, for local dev) persistence layer
// for Background/Scheduled commands, and a Worker pool adapted from
// the teacher's session-claiming worker (pkg/queue/worker.go's
// FOR UPDATE SKIP LOCKED claim, heartbeat-free poll loop, graceful
// stop) to claim rows from jobs_queue instead of alert_sessions.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/civicsync/civicsync/pkg/runtime"
)

// ErrNoJobsAvailable indicates a poll found no claimable row.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Job is a persisted row in jobs_queue: a Background or Scheduled
// command serialized to JSON, along with the correlation it was
// enqueued under. (spec.md's Command data model does not specify a
// correlation for queued jobs; this system generates one at enqueue
// time so a Worker's re-entry through DispatchWithCorrelation can
// still tie CommandFailed facts back to a traceable id — see
// DESIGN.md.) The remaining fields carry spec.md §6's full job
// specification (`{type, idempotency_key?, max_retries, priority,
// version, reference_id?, container_id?}`) through to the claiming
// Worker, which honors this job's own MaxRetries rather than a single
// process-wide default.
type Job struct {
	ID             string
	TypeTag        string
	Payload        []byte
	CorrelationID  string
	IdempotencyKey string
	Priority       int
	MaxRetries     int
	Version        int
	ReferenceID    string
	ContainerID    string
	RunAt          time.Time
	ClaimedAt      *time.Time
	ClaimedBy      string
	Attempts       int
	LastError      string
	CreatedAt      time.Time
}

// Store is the persistence surface a JobQueue and its Worker pool
// share. ClaimNext must be implemented with the backend's equivalent
// of SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never
// claim the same row twice.
type Store interface {
	Enqueue(ctx context.Context, job Job) error
	ClaimNext(ctx context.Context, workerID string) (*Job, error)
	MarkSucceeded(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string, maxRetries int) error
	ReclaimStale(ctx context.Context, olderThan time.Time) (int, error)
	Depth(ctx context.Context) (int, error)
}

// Decoder turns a claimed job's payload back into a runtime.Command,
// keyed by the job's TypeTag (the JobSpec.Type it was enqueued with).
type Decoder func(payload []byte) (runtime.Command, error)

// DecoderRegistry maps job type strings to their Decoder, so a Worker
// can reconstruct the right Command type for re-entry regardless of
// which pipeline effect produced it.
type DecoderRegistry map[string]Decoder
