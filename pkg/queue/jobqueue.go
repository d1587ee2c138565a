package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/civicsync/civicsync/pkg/runtime"
)

// JobQueue implements runtime.JobQueue over a Store, translating the
// Dispatcher's Enqueue/Schedule calls into persisted Job rows.
type JobQueue struct {
	store Store
}

// NewJobQueue wraps store for use as a Dispatcher's job queue (via
// runtime.Dispatcher.WithJobQueue).
func NewJobQueue(store Store) *JobQueue {
	return &JobQueue{store: store}
}

func (q *JobQueue) Enqueue(ctx context.Context, payload []byte, spec runtime.JobSpec) (string, error) {
	return q.persist(ctx, payload, spec, time.Time{})
}

func (q *JobQueue) Schedule(ctx context.Context, payload []byte, spec runtime.JobSpec, runAt time.Time) (string, error) {
	return q.persist(ctx, payload, spec, runAt)
}

func (q *JobQueue) persist(ctx context.Context, payload []byte, spec runtime.JobSpec, runAt time.Time) (string, error) {
	if runAt.IsZero() {
		runAt = time.Now()
	}
	job := Job{
		ID:             uuid.NewString(),
		TypeTag:        spec.Type,
		Payload:        payload,
		CorrelationID:  runtime.NewCorrelationId().String(),
		IdempotencyKey: spec.IdempotencyKey,
		Priority:       spec.Priority,
		MaxRetries:     spec.MaxRetries,
		Version:        spec.Version,
		RunAt:          runAt,
	}
	if spec.ReferenceID != nil {
		job.ReferenceID = spec.ReferenceID.String()
	}
	if spec.ContainerID != nil {
		job.ContainerID = spec.ContainerID.String()
	}
	if err := q.store.Enqueue(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}
