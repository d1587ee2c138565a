// Package cleanup provides periodic data maintenance unrelated to any
// single request.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/civicsync/civicsync/pkg/store"
)

// Service periodically invalidates cached summaries whose prompt_hash
// no longer matches the extractor's current prompt version: stale
// summaries (produced under a retired prompt) are deleted rather than
// served forever, and recall skips such a page until a new summary is
// stored. Adapted from the teacher's
// retention Service: same ticker-driven Start/Stop/runAll shape,
// repurposed from session soft-deletion + event TTL enforcement to
// prompt-hash-based summary invalidation, the one periodic maintenance
// operation this domain's store interface exposes.
type Service struct {
	store             store.Store
	currentPromptHash string
	interval          time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service. currentPromptHash
// identifies the extractor's active prompt version; any summary whose
// stored hash differs is considered stale.
func NewService(st store.Store, currentPromptHash string, interval time.Duration) *Service {
	return &Service{store: st, currentPromptHash: currentPromptHash, interval: interval}
}

// Start launches the background maintenance loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"prompt_hash", s.currentPromptHash, "interval", s.interval)
}

// Stop signals the maintenance loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	count, err := s.store.InvalidateStaleSummaries(ctx, s.currentPromptHash)
	if err != nil {
		slog.Error("stale summary invalidation failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("invalidated stale summaries", "count", count)
	}
}
