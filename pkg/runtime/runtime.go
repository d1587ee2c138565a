package runtime

import (
	"context"
	"log/slog"
	"sort"
)

// inlineKey groups inline commands per tick by (command type, cid),
// matching the reference implementation's BTreeMap<(TypeId,
// CorrelationId), Vec<Box<dyn AnyCommand>>>. Go maps have no stable
// iteration order, so Runtime sorts the keys before dispatching each
// tick's groups to keep dispatch order deterministic.
type inlineKey struct {
	tag TypeTag
	cid CorrelationId
}

func (k inlineKey) less(other inlineKey) bool {
	if k.tag.String() != other.tag.String() {
		return k.tag.String() < other.tag.String()
	}
	return k.cid.String() < other.cid.String()
}

// Runtime subscribes to the bus, fans each envelope to every
// registered machine, groups the resulting inline commands into
// per-tick batches keyed by (command type, correlation), dispatches
// each group, and finally runs taps — all for one envelope before
// moving to the next ("per-tick batching", spec.md §4.6).
//
// Events emitted by effects are not observed within the same tick;
// they arrive back via the bus on a later call to run's receive loop.
// Machines never observe effect completion within the same tick they
// triggered it.
type Runtime struct {
	machines   []Machine
	dispatcher *Dispatcher
	bus        *EventBus
	inflight   *InflightTracker
	taps       *TapRegistry
	logger     *slog.Logger
}

// RuntimeBuilder assembles a Runtime and the EventBus it will run
// against.
type RuntimeBuilder struct {
	deps     any
	bus      *EventBus
	jobQueue JobQueue
	sanitize func(string) string
	machines []Machine
	effects  []func(*Dispatcher)
	inflight *InflightTracker
	taps     *TapRegistry
}

func NewRuntimeBuilder(deps any) *RuntimeBuilder {
	return &RuntimeBuilder{
		bus:      NewEventBus(0),
		jobQueue: NoOpJobQueue{},
		deps:     deps,
		inflight: NewInflightTracker(),
		taps:     NewTapRegistry(),
	}
}

func (b *RuntimeBuilder) WithBus(bus *EventBus) *RuntimeBuilder {
	b.bus = bus
	return b
}

func (b *RuntimeBuilder) WithJobQueue(q JobQueue) *RuntimeBuilder {
	b.jobQueue = q
	return b
}

func (b *RuntimeBuilder) WithSanitizer(f func(string) string) *RuntimeBuilder {
	b.sanitize = f
	return b
}

func (b *RuntimeBuilder) WithMachine(m Machine) *RuntimeBuilder {
	b.machines = append(b.machines, m)
	return b
}

func (b *RuntimeBuilder) WithEffect(sample Command, eff Effect) *RuntimeBuilder {
	b.effects = append(b.effects, func(d *Dispatcher) { d.WithEffect(sample, eff) })
	return b
}

func (b *RuntimeBuilder) WithTap(t Tap) *RuntimeBuilder {
	b.taps.Add(t)
	return b
}

// Build constructs the Runtime and the EventBus shared with it. The
// recommended construction order throughout this system is bus →
// inflight → dispatcher → runtime; teardown is the reverse (Close the
// bus to drain the Runtime's receive loop).
func (b *RuntimeBuilder) Build() (*Runtime, *EventBus) {
	d := NewDispatcher(b.deps, b.bus).WithJobQueue(b.jobQueue)
	if b.sanitize != nil {
		d.WithSanitizer(b.sanitize)
	}
	for _, apply := range b.effects {
		apply(d)
	}
	rt := &Runtime{
		machines:   b.machines,
		dispatcher: d,
		bus:        b.bus,
		inflight:   b.inflight,
		taps:       b.taps,
		logger:     slog.Default(),
	}
	return rt, b.bus
}

// Dispatcher exposes the Runtime's dispatcher (e.g. for a queue worker
// that must re-enter via Dispatch, never DispatchOne).
func (r *Runtime) Dispatcher() *Dispatcher { return r.dispatcher }

// Inflight exposes the shared tracker (e.g. for dispatch_request).
func (r *Runtime) Inflight() *InflightTracker { return r.inflight }

// MachineCount reports how many machines are registered.
func (r *Runtime) MachineCount() int { return len(r.machines) }

// Run subscribes to the bus and processes envelopes until the bus is
// closed. Lagged receivers are logged and the loop continues; a closed
// bus ends the loop cleanly.
func (r *Runtime) Run(ctx context.Context) {
	recv := r.bus.Subscribe()
	defer r.bus.Unsubscribe(recv)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, lagged, closed := recv.Recv()
		if closed {
			r.logger.Info("runtime: bus closed, exiting")
			return
		}
		if lagged > 0 {
			r.logger.Warn("runtime: receiver lagged", "n", lagged)
			continue
		}
		r.tick(ctx, env)
	}
}

// tick processes exactly one envelope: machine fan-out, inline batch
// dispatch in deterministic order, then taps.
func (r *Runtime) tick(ctx context.Context, env EventEnvelope) {
	var guardActive bool
	if env.Cid.IsSome() && r.inflight.HasPendingWork(env.Cid) {
		guardActive = true
	}
	if guardActive {
		defer r.inflight.Dec(env.Cid, 1)
	}

	inlineBatches := make(map[inlineKey][]Command)

	for _, m := range r.machines {
		cmd, ok, panicMsg := runMachine(m, env.Payload)
		if panicMsg != "" {
			r.logger.Error("runtime: machine panicked", "error", panicMsg)
			if env.Cid.IsSome() {
				r.inflight.RecordError(env.Cid, &machinePanicError{msg: panicMsg})
			}
			continue
		}
		if !ok || cmd == nil {
			continue
		}

		mode := cmd.ExecutionMode()
		if mode.IsInline() {
			key := inlineKey{tag: TagOf(cmd), cid: env.Cid}
			inlineBatches[key] = append(inlineBatches[key], cmd)
			continue
		}

		if err := r.dispatcher.DispatchOne(ctx, cmd); err != nil {
			r.logger.Error("runtime: dispatch_one failed", "error", err)
		}
	}

	keys := make([]inlineKey, 0, len(inlineBatches))
	for k := range inlineBatches {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	for _, k := range keys {
		if err := r.dispatcher.DispatchWithCorrelation(ctx, inlineBatches[k], k.cid, r.inflight); err != nil {
			r.logger.Error("runtime: dispatch_with_correlation failed", "error", err)
		}
	}

	if r.taps.Len() > 0 {
		r.taps.RunAll(env.Payload, env.Cid)
	}
}

// machinePanicError wraps a recovered machine panic message as an
// error so it can be stored on InflightTracker.RecordError.
type machinePanicError struct{ msg string }

func (e *machinePanicError) Error() string { return "machine panicked: " + e.msg }
