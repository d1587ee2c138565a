package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/civicsync/civicsync/pkg/runtime"
)

// Pool owns a fixed number of Workers plus a background stale-claim
// reaper, mirroring the teacher's worker pool shape (N pollers sharing
// one store, one reclaim loop) adapted from alert_sessions to
// jobs_queue rows.
type Pool struct {
	store   Store
	workers []*Worker

	staleThreshold time.Duration
	reclaimEvery   time.Duration
	stopCh         chan struct{}
	done           chan struct{}
}

// NewPool constructs count Workers sharing store and dispatcher, all
// decoding job payloads through decoders. defaultMaxRetries is only a
// floor applied when a claimed job's own MaxRetries is unset; normally
// each job's persisted MaxRetries governs. staleThreshold governs when
// an orphaned claim (its worker died mid-job) is recovered by the
// reclaim loop.
func NewPool(count int, store Store, dispatcher *runtime.Dispatcher, decoders DecoderRegistry, defaultMaxRetries int, poll, jitter, staleThreshold time.Duration) *Pool {
	workers := make([]*Worker, count)
	for i := range workers {
		workers[i] = NewWorker(workerID(i), store, dispatcher, decoders, defaultMaxRetries, poll, jitter)
	}
	return &Pool{
		store:          store,
		workers:        workers,
		staleThreshold: staleThreshold,
		reclaimEvery:   staleThreshold / 2,
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func workerID(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "worker-" + string(letters[i%len(letters)])
}

// Start launches every worker and the reclaim loop.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		w.Start(ctx)
	}
	go p.reclaimLoop(ctx)
}

// Stop gracefully stops every worker and the reclaim loop, waiting for
// in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.stopCh)
	for _, w := range p.workers {
		w.Stop()
	}
	<-p.done
}

func (p *Pool) reclaimLoop(ctx context.Context) {
	defer close(p.done)
	if p.reclaimEvery <= 0 {
		return
	}
	ticker := time.NewTicker(p.reclaimEvery)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.store.ReclaimStale(ctx, time.Now().Add(-p.staleThreshold))
			if err != nil {
				slog.Error("stale claim reclaim failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Warn("reclaimed stale job claims", "count", n)
			}
		}
	}
}

// Health returns a snapshot of every worker in the pool.
func (p *Pool) Health() []WorkerHealth {
	out := make([]WorkerHealth, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.Health()
	}
	return out
}
