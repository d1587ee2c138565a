package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civicsync/civicsync/pkg/runtime"
)

// Worker polls Store for claimable jobs_queue rows and re-enters the
// Dispatcher for each one it claims. Adapted from the teacher's
// session-claiming Worker: same poll-with-jitter loop and graceful
// Stop, but claiming a job row instead of an alert_session and
// re-entering via Dispatcher.DispatchWithCorrelation instead of
// executing a SessionExecutor directly.
//
// Critical rule (spec.md §6): a claimed job MUST re-enter via dispatch
// (inline), never dispatch_one — dispatch_one would see the command's
// declared Background/Scheduled mode and re-enqueue it, looping
// forever. DispatchWithCorrelation always executes inline regardless
// of the command's own ExecutionMode, so this is structurally
// impossible to get wrong here.
type Worker struct {
	id                string
	store             Store
	dispatcher        *runtime.Dispatcher
	decoders          DecoderRegistry
	defaultMaxRetries int
	poll              time.Duration
	jitter            time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.Mutex
	jobsProcessed int
	jobsFailed    int
	currentJobID  string
	lastActivity  time.Time
}

// NewWorker constructs a Worker. defaultMaxRetries bounds MarkFailed's
// retry decision only as a floor for a job whose own MaxRetries came
// back unset (<= 0); ordinarily each claimed job's own MaxRetries
// (persisted from its JobSpec at enqueue time) governs. decoders must
// have an entry for every job type this Dispatcher's registered
// effects can produce.
func NewWorker(id string, store Store, dispatcher *runtime.Dispatcher, decoders DecoderRegistry, defaultMaxRetries int, poll, jitter time.Duration) *Worker {
	return &Worker{
		id:                id,
		store:             store,
		dispatcher:        dispatcher,
		decoders:          decoders,
		defaultMaxRetries: defaultMaxRetries,
		poll:              poll,
		jitter:            jitter,
		stopCh:            make(chan struct{}),
	}
}

// Start begins the worker's poll loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the loop to stop and waits for the current iteration to
// finish. Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id)
	log.Info("queue worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("queue worker stopping")
			return
		case <-ctx.Done():
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("job processing error", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) pollInterval() time.Duration {
	if w.jitter <= 0 {
		return w.poll
	}
	offset := time.Duration(rand.Int64N(int64(2 * w.jitter)))
	return w.poll - w.jitter + offset
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.store.ClaimNext(ctx, w.id)
	if err != nil {
		return err
	}

	log := slog.With("worker_id", w.id, "job_id", job.ID, "type", job.TypeTag)
	log.Info("job claimed")

	w.setCurrent(job.ID)
	defer w.setCurrent("")

	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = w.defaultMaxRetries
	}

	decode, ok := w.decoders[job.TypeTag]
	if !ok {
		log.Error("no decoder registered for job type")
		return w.store.MarkFailed(ctx, job.ID, "no decoder registered for type "+job.TypeTag, maxRetries)
	}

	cmd, err := decode(job.Payload)
	if err != nil {
		log.Error("failed to decode job payload", "error", err)
		return w.store.MarkFailed(ctx, job.ID, err.Error(), maxRetries)
	}

	cid := runtime.CorrelationFromUUID(parseCorrelationID(job.CorrelationID))
	if execErr := w.dispatcher.DispatchWithCorrelation(ctx, []runtime.Command{cmd}, cid, nil); execErr != nil {
		log.Error("dispatch failed", "error", execErr)
		w.mu.Lock()
		w.jobsFailed++
		w.mu.Unlock()
		return w.store.MarkFailed(ctx, job.ID, execErr.Error(), maxRetries)
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.lastActivity = time.Now()
	w.mu.Unlock()

	log.Info("job dispatched")
	return w.store.MarkSucceeded(ctx, job.ID)
}

func (w *Worker) setCurrent(jobID string) {
	w.mu.Lock()
	w.currentJobID = jobID
	w.lastActivity = time.Now()
	w.mu.Unlock()
}

// parseCorrelationID tolerates a malformed stored value by falling
// back to the nil UUID (NoCorrelation) rather than failing the job.
func parseCorrelationID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Health reports lightweight processing stats for the admin surface.
func (w *Worker) Health() WorkerHealth {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerHealth{
		ID:            w.id,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		JobsFailed:    w.jobsFailed,
		LastActivity:  w.lastActivity,
	}
}
