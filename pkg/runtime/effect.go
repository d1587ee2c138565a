package runtime

import "context"

// EffectContext is the narrow, immutable, cheap-to-copy value handed
// to every Effect invocation. It exposes shared dependencies, the
// caller's correlation (for outbox writes and downstream
// dispatch_request calls), and Signal() for fire-and-forget UI events.
//
// Immutability invariant: cloning/copying an EffectContext MUST be
// semantically identical across every copy. Do not add counters,
// timers, per-command flags, or retry metadata here — execute_batch
// reuses one context across every command in the batch, so any hidden
// mutable state would leak between commands in the same batch.
type EffectContext struct {
	deps any
	bus  *EventBus
	cid  CorrelationId
}

// NewEffectContext builds a fire-and-forget context (no correlation).
func NewEffectContext(deps any, bus *EventBus) EffectContext {
	return EffectContext{deps: deps, bus: bus, cid: NoCorrelation}
}

// withCorrelation is the Dispatcher's internal constructor; effects
// never build a correlated context themselves.
func withCorrelation(deps any, bus *EventBus, cid CorrelationId) EffectContext {
	return EffectContext{deps: deps, bus: bus, cid: cid}
}

// Deps returns the shared dependency bundle, which callers type-assert
// to their concrete dependency struct.
func (c EffectContext) Deps() any { return c.deps }

// Correlation returns the cid this invocation was dispatched under.
func (c EffectContext) Correlation() CorrelationId { return c.cid }

// Signal emits a fire-and-forget UI event under a random, untracked
// correlation. Signals never enter inflight bookkeeping and machines
// must ignore them.
func (c EffectContext) Signal(payload Event) {
	c.bus.EmitEnvelope(NewRandomEnvelope(payload))
}

// Effect performs IO for one command type and returns the one Event
// that resulted. Effects MUST be stateless across invocations: no
// mutable fields populated by Execute that later calls depend on.
type Effect interface {
	Execute(ctx context.Context, cmd Command, ectx EffectContext) (Event, error)
}

// BatchEffect is the optional batch extension: ordered, fail-fast,
// non-atomic. Effects that don't implement it fall back to
// defaultExecuteBatch, which calls Execute in order and stops at the
// first error — commands before the failure remain committed, the
// failing one and everything after are not attempted. This is
// intentional: atomicity lives inside a single effect, not across a
// batch.
type BatchEffect interface {
	Effect
	ExecuteBatch(ctx context.Context, cmds []Command, ectx EffectContext) ([]Event, error)
}

// defaultExecuteBatch is used for effects that only implement Effect.
func defaultExecuteBatch(ctx context.Context, eff Effect, cmds []Command, ectx EffectContext) ([]Event, int, error) {
	events := make([]Event, 0, len(cmds))
	for i, cmd := range cmds {
		ev, err := eff.Execute(ctx, cmd, ectx)
		if err != nil {
			return events, i, err
		}
		events = append(events, ev)
	}
	return events, len(cmds), nil
}

// executeBatch dispatches to the effect's own ExecuteBatch if present,
// else the default sequential implementation. Returns the events
// produced, how many commands succeeded, and the first error (if any).
func executeBatch(ctx context.Context, eff Effect, cmds []Command, ectx EffectContext) ([]Event, int, error) {
	if be, ok := eff.(BatchEffect); ok {
		events, err := be.ExecuteBatch(ctx, cmds, ectx)
		if err != nil {
			// A custom BatchEffect that errors is treated as "zero
			// succeeded" for accounting purposes since it owns its own
			// partial-commit semantics and doesn't report a split point.
			return events, 0, err
		}
		return events, len(cmds), nil
	}
	return defaultExecuteBatch(ctx, eff, cmds, ectx)
}
