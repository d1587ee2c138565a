package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// JobQueue is the external sink the Dispatcher uses for Background and
// Scheduled commands. The Dispatcher treats it as an opaque sink; it
// never inspects the returned job id beyond logging it.
type JobQueue interface {
	Enqueue(ctx context.Context, payload []byte, spec JobSpec) (string, error)
	Schedule(ctx context.Context, payload []byte, spec JobSpec, runAt time.Time) (string, error)
}

// NoOpJobQueue refuses every Background/Scheduled dispatch with a
// clear error. It is the Dispatcher's zero-value job queue so a
// misconfigured deployment fails loudly instead of silently dropping
// background work.
type NoOpJobQueue struct{}

func (NoOpJobQueue) Enqueue(ctx context.Context, payload []byte, spec JobSpec) (string, error) {
	return "", ErrNoJobQueueConfigured
}

func (NoOpJobQueue) Schedule(ctx context.Context, payload []byte, spec JobSpec, runAt time.Time) (string, error) {
	return "", ErrNoJobQueueConfigured
}

// Dispatcher routes typed commands to registered Effects. Registration
// is idempotent-checked: WithEffect panics on a duplicate type tag,
// TryWithEffect returns an error instead, WithEffectReplace overwrites
// unconditionally.
type Dispatcher struct {
	mu       sync.RWMutex
	effects  map[TypeTag]Effect
	deps     any
	bus      *EventBus
	jobQueue JobQueue
	sanitize func(string) string
	logger   *slog.Logger
}

// NewDispatcher constructs a Dispatcher with the NoOpJobQueue. Use
// WithJobQueue to attach a real one.
func NewDispatcher(deps any, bus *EventBus) *Dispatcher {
	return &Dispatcher{
		effects:  make(map[TypeTag]Effect),
		deps:     deps,
		bus:      bus,
		jobQueue: NoOpJobQueue{},
		sanitize: func(s string) string { return s },
		logger:   slog.Default(),
	}
}

// WithJobQueue attaches a job queue and returns the Dispatcher for
// chaining.
func (d *Dispatcher) WithJobQueue(q JobQueue) *Dispatcher {
	d.jobQueue = q
	return d
}

// WithSanitizer overrides the function used to scrub CommandFailed
// error text (defaults to identity). Production wiring passes the
// masking service's SanitizeFunc().
func (d *Dispatcher) WithSanitizer(f func(string) string) *Dispatcher {
	d.sanitize = f
	return d
}

// WithEffect registers eff for the command type represented by
// sample. Panics if a handler is already registered for that type.
func (d *Dispatcher) WithEffect(sample Command, eff Effect) *Dispatcher {
	if err := d.TryWithEffect(sample, eff); err != nil {
		panic(err)
	}
	return d
}

// TryWithEffect registers eff for sample's command type, returning
// ErrEffectAlreadyRegistered instead of panicking on a duplicate.
func (d *Dispatcher) TryWithEffect(sample Command, eff Effect) error {
	tag := TagOf(sample)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.effects[tag]; exists {
		return fmt.Errorf("%w: %s", ErrEffectAlreadyRegistered, tag)
	}
	d.effects[tag] = eff
	return nil
}

// WithEffectReplace registers eff for sample's command type,
// overwriting any existing registration.
func (d *Dispatcher) WithEffectReplace(sample Command, eff Effect) *Dispatcher {
	tag := TagOf(sample)
	d.mu.Lock()
	d.effects[tag] = eff
	d.mu.Unlock()
	return d
}

func (d *Dispatcher) effectFor(tag TypeTag) (Effect, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	eff, ok := d.effects[tag]
	return eff, ok
}

// HasEffect reports whether a handler is registered for sample's type.
func (d *Dispatcher) HasEffect(sample Command) bool {
	_, ok := d.effectFor(TagOf(sample))
	return ok
}

// EffectCount returns the number of registered effect handlers.
func (d *Dispatcher) EffectCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.effects)
}

func (d *Dispatcher) Deps() any     { return d.deps }
func (d *Dispatcher) Bus() *EventBus { return d.bus }

// Dispatch runs commands (which must all share a command type) through
// their registered effect with an uncorrelated context, and emits any
// resulting events on the bus. Empty batches are a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, commands []Command) error {
	return d.dispatchWithCorrelation(ctx, commands, NoCorrelation, nil)
}

// DispatchOne routes a single command according to its declared
// ExecutionMode:
//   - Inline: delegates to Dispatch([cmd]).
//   - Background: requires both JobSpec and Serializer; enqueues.
//   - Scheduled(run_at): same, via Schedule.
func (d *Dispatcher) DispatchOne(ctx context.Context, cmd Command) error {
	mode := cmd.ExecutionMode()
	if mode.IsInline() {
		return d.Dispatch(ctx, []Command{cmd})
	}

	spec, hasSpec := jobSpecOf(cmd)
	if !hasSpec {
		return fmt.Errorf("%s: %w", commandTagString(cmd), ErrMissingJobSpec)
	}
	ser, hasSer := serializerOf(cmd)
	if !hasSer {
		return fmt.Errorf("%s: %w", commandTagString(cmd), ErrMissingSerializer)
	}
	payload, err := ser.SerializeToJSON()
	if err != nil {
		return fmt.Errorf("%s: serialize for job queue: %w", commandTagString(cmd), err)
	}

	if mode.IsBackground() {
		jobID, err := d.jobQueue.Enqueue(ctx, payload, spec)
		if err != nil {
			return fmt.Errorf("%s: enqueue: %w", commandTagString(cmd), err)
		}
		d.logger.Debug("enqueued background command", "type", commandTagString(cmd), "job_id", jobID)
		return nil
	}

	// Scheduled
	jobID, err := d.jobQueue.Schedule(ctx, payload, spec, mode.RunAt())
	if err != nil {
		return fmt.Errorf("%s: schedule: %w", commandTagString(cmd), err)
	}
	d.logger.Debug("scheduled command", "type", commandTagString(cmd), "job_id", jobID, "run_at", mode.RunAt())
	return nil
}

// DispatchWithCorrelation is the Runtime's entry point for inline
// execution of one per-tick command group. It always returns nil: a
// failure is communicated by recording an error on inflight and
// emitting a CommandFailed fact, not via this method's return value —
// matching the reference implementation exactly (dispatch_with_correlation
// itself always returns Ok(())).
func (d *Dispatcher) DispatchWithCorrelation(ctx context.Context, commands []Command, cid CorrelationId, inflight *InflightTracker) error {
	return d.dispatchWithCorrelation(ctx, commands, cid, inflight)
}

func (d *Dispatcher) dispatchWithCorrelation(ctx context.Context, commands []Command, cid CorrelationId, inflight *InflightTracker) error {
	if len(commands) == 0 {
		return nil
	}
	tag := TagOf(commands[0])
	eff, ok := d.effectFor(tag)
	if !ok {
		err := fmt.Errorf("no effect registered for command type %s", tag)
		if inflight != nil {
			inflight.RecordError(cid, err)
		}
		d.bus.EmitWithCorrelation(NewCommandFailed(cid, tag.String(), err, d.sanitize), cid)
		return nil
	}

	var batch *InflightBatch
	if inflight != nil {
		batch = inflight.BeginBatch(cid, uint64(len(commands)))
	}

	ectx := withCorrelation(d.deps, d.bus, cid)

	events, succeeded, err := d.runCatchingPanics(ctx, eff, commands, ectx)

	if batch != nil {
		if err != nil {
			batch.Complete(PartialOutcome(succeeded, succeeded, err))
		} else {
			batch.Complete(CompleteOutcome())
		}
	}

	if err != nil {
		if inflight != nil {
			inflight.RecordError(cid, err)
		}
		d.bus.EmitWithCorrelation(NewCommandFailed(cid, tag.String(), err, d.sanitize), cid)
		return nil
	}

	for _, ev := range events {
		d.bus.EmitWithCorrelation(ev, cid)
	}
	return nil
}

// runCatchingPanics executes the single- or multi-command path,
// converting any panic inside the effect into an error so a
// misbehaving effect can never take down the Runtime loop.
func (d *Dispatcher) runCatchingPanics(ctx context.Context, eff Effect, commands []Command, ectx EffectContext) (events []Event, succeeded int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("effect panicked: %s", extractPanicMessage(r))
			events = nil
		}
	}()

	if len(commands) == 1 {
		ev, execErr := eff.Execute(ctx, commands[0], ectx)
		if execErr != nil {
			return nil, 0, execErr
		}
		return []Event{ev}, 1, nil
	}

	evs, n, execErr := executeBatch(ctx, eff, commands, ectx)
	return evs, n, execErr
}
