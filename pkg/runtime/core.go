// Package runtime implements the event-driven command/event framework:
// a broadcast event bus with correlation tracking, a dispatcher that
// routes typed commands to effect handlers, a set of state machines
// that turn events into commands, and an emit-and-await primitive for
// request-scoped callers.
package runtime

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// CorrelationId ties an originating request event to all
// causally-descendant work. The zero value (NONE) means "no
// correlation" and is distinct from any real id.
type CorrelationId struct {
	id uuid.UUID
}

// NoCorrelation is the NONE sentinel correlation.
var NoCorrelation = CorrelationId{}

// NewCorrelationId generates a fresh random correlation id.
func NewCorrelationId() CorrelationId {
	return CorrelationId{id: uuid.New()}
}

// CorrelationFromUUID wraps an existing UUID as a correlation id.
func CorrelationFromUUID(id uuid.UUID) CorrelationId {
	return CorrelationId{id: id}
}

// IsNone reports whether this is the NONE sentinel.
func (c CorrelationId) IsNone() bool { return c.id == uuid.Nil }

// IsSome reports whether this carries a real correlation.
func (c CorrelationId) IsSome() bool { return !c.IsNone() }

// UUID returns the underlying UUID value.
func (c CorrelationId) UUID() uuid.UUID { return c.id }

// String renders "NONE" for the sentinel, else the UUID text form.
func (c CorrelationId) String() string {
	if c.IsNone() {
		return "NONE"
	}
	return c.id.String()
}

// EventRole classifies an event's place in the causal graph. Signals
// are ephemeral UI-only notifications: machines MUST ignore them, they
// are not persisted, not replayable, and MUST NOT trigger commands.
type EventRole int

const (
	RoleInput EventRole = iota
	RoleFact
	RoleSignal
)

func (r EventRole) IsInput() bool      { return r == RoleInput }
func (r EventRole) IsFact() bool       { return r == RoleFact }
func (r EventRole) IsSignal() bool     { return r == RoleSignal }
func (r EventRole) IsActionable() bool { return r == RoleInput || r == RoleFact }

// Event is the marker interface every event payload implements. Role
// reports how the Runtime should treat the event for inflight
// bookkeeping and machine dispatch.
type Event interface {
	Role() EventRole
}

// TypeTag identifies a concrete Event or Command type for dispatch and
// registry lookups. Derived from the Go type rather than reflection at
// call sites — callers obtain it once via TagOf and compare values.
type TypeTag struct {
	t reflect.Type
}

// TagOf returns the stable type tag for a payload value.
func TagOf(v any) TypeTag {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return TypeTag{t: t}
}

func (t TypeTag) String() string {
	if t.t == nil {
		return "<nil>"
	}
	return t.t.PkgPath() + "." + t.t.Name()
}

// EventEnvelope wraps a payload with its correlation and type tag.
// Payload is shared-immutable: receivers must never mutate it.
type EventEnvelope struct {
	Cid     CorrelationId
	Tag     TypeTag
	Payload Event
}

// NewEnvelope builds an envelope with the NONE correlation.
func NewEnvelope(payload Event) EventEnvelope {
	return EventEnvelope{Cid: NoCorrelation, Tag: TagOf(payload), Payload: payload}
}

// NewEnvelopeWithCorrelation builds an envelope carrying cid.
func NewEnvelopeWithCorrelation(payload Event, cid CorrelationId) EventEnvelope {
	return EventEnvelope{Cid: cid, Tag: TagOf(payload), Payload: payload}
}

// NewRandomEnvelope builds an envelope with a fresh random correlation,
// used for fire-and-forget signals that must never be tracked.
func NewRandomEnvelope(payload Event) EventEnvelope {
	return EventEnvelope{Cid: NewCorrelationId(), Tag: TagOf(payload), Payload: payload}
}

// As attempts to downcast the envelope's payload to T, mirroring
// EventEnvelope::downcast_ref in the reference implementation.
func As[T Event](env EventEnvelope) (T, bool) {
	v, ok := env.Payload.(T)
	return v, ok
}

// ExecutionMode controls how the Dispatcher routes a command.
type ExecutionMode struct {
	kind  executionKind
	runAt time.Time
}

type executionKind int

const (
	executionInline executionKind = iota
	executionBackground
	executionScheduled
)

// Inline executes the command synchronously within the current tick.
func Inline() ExecutionMode { return ExecutionMode{kind: executionInline} }

// Background enqueues the command on the job queue for later,
// out-of-tick execution.
func Background() ExecutionMode { return ExecutionMode{kind: executionBackground} }

// Scheduled enqueues the command to run at a specific time.
func Scheduled(runAt time.Time) ExecutionMode {
	return ExecutionMode{kind: executionScheduled, runAt: runAt}
}

func (m ExecutionMode) IsInline() bool     { return m.kind == executionInline }
func (m ExecutionMode) IsBackground() bool { return m.kind == executionBackground }
func (m ExecutionMode) IsScheduled() bool  { return m.kind == executionScheduled }
func (m ExecutionMode) RunAt() time.Time   { return m.runAt }

// JobSpec describes the persistence metadata required to enqueue a
// Background or Scheduled command onto the job queue.
type JobSpec struct {
	Type           string
	IdempotencyKey string
	MaxRetries     int
	Priority       int
	Version        int
	ReferenceID    *uuid.UUID
	ContainerID    *uuid.UUID
}

// JobSpecBuilder constructs a JobSpec fluently, mirroring the
// reference implementation's builder methods.
type JobSpecBuilder struct{ spec JobSpec }

func NewJobSpec(jobType string) *JobSpecBuilder {
	return &JobSpecBuilder{spec: JobSpec{Type: jobType, MaxRetries: 3, Priority: 0, Version: 1}}
}

func (b *JobSpecBuilder) IdempotencyKey(k string) *JobSpecBuilder {
	b.spec.IdempotencyKey = k
	return b
}
func (b *JobSpecBuilder) MaxRetries(n int) *JobSpecBuilder {
	b.spec.MaxRetries = n
	return b
}
func (b *JobSpecBuilder) Priority(p int) *JobSpecBuilder {
	b.spec.Priority = p
	return b
}
func (b *JobSpecBuilder) Version(v int) *JobSpecBuilder {
	b.spec.Version = v
	return b
}
func (b *JobSpecBuilder) ReferenceID(id uuid.UUID) *JobSpecBuilder {
	b.spec.ReferenceID = &id
	return b
}
func (b *JobSpecBuilder) ContainerID(id uuid.UUID) *JobSpecBuilder {
	b.spec.ContainerID = &id
	return b
}
func (b *JobSpecBuilder) Build() JobSpec { return b.spec }

// Command is an opaque intent value routed by the Dispatcher to an
// Effect. ExecutionMode determines how; JobSpec/Serialize are required
// whenever ExecutionMode is not Inline. A Command is distinct from an
// Event — it never appears on the bus itself, only the Event(s) an
// Effect returns after executing it do.
type Command interface {
	ExecutionMode() ExecutionMode
}

// JobSpecProvider is implemented by commands that support Background
// or Scheduled execution.
type JobSpecProvider interface {
	JobSpec() JobSpec
}

// Serializer is implemented by commands that support Background or
// Scheduled execution; it produces the JSON payload persisted on the
// job queue.
type Serializer interface {
	SerializeToJSON() ([]byte, error)
}

// jobSpecOf and serializerOf recover the optional capabilities off a
// command without forcing every Command implementation to provide
// stub methods for modes it never uses.
func jobSpecOf(cmd Command) (JobSpec, bool) {
	p, ok := cmd.(JobSpecProvider)
	if !ok {
		return JobSpec{}, false
	}
	return p.JobSpec(), true
}

func serializerOf(cmd Command) (Serializer, bool) {
	s, ok := cmd.(Serializer)
	return s, ok
}

// EnvelopeMatch is the ergonomic helper passed to dispatch_request
// predicates: Event/Is/Map/TryMatch let callers downcast without
// repeating type assertions.
type EnvelopeMatch struct {
	env EventEnvelope
}

func NewEnvelopeMatch(env EventEnvelope) EnvelopeMatch { return EnvelopeMatch{env: env} }

// EventAs downcasts the wrapped envelope's payload, returning the zero
// value and false on mismatch.
func EventAs[T Event](m EnvelopeMatch) (T, bool) { return As[T](m.env) }

// Is reports whether the wrapped envelope's payload is of type T.
func Is[T Event](m EnvelopeMatch) bool {
	_, ok := As[T](m.env)
	return ok
}

// MatchResult is what a dispatch_request predicate returns for one
// observed envelope.
type MatchResult[T any] struct {
	matched bool
	value   T
	err     error
}

func Matched[T any](v T) MatchResult[T]    { return MatchResult[T]{matched: true, value: v} }
func Failed[T any](err error) MatchResult[T] {
	return MatchResult[T]{matched: true, err: err}
}
func NoMatch[T any]() MatchResult[T] { return MatchResult[T]{} }

func (r MatchResult[T]) IsMatch() bool  { return r.matched }
func (r MatchResult[T]) Err() error     { return r.err }
func (r MatchResult[T]) Value() T       { return r.value }

// MatchChain lets a predicate try several typed matchers in sequence,
// taking the first one that reports a match.
type MatchChain[T any] struct {
	m      EnvelopeMatch
	result MatchResult[T]
}

func TryMatch[T any](m EnvelopeMatch) *MatchChain[T] {
	return &MatchChain[T]{m: m}
}

// OrTry tries f if no previous matcher in the chain has matched yet.
func (c *MatchChain[T]) OrTry(f func(EnvelopeMatch) MatchResult[T]) *MatchChain[T] {
	if c.result.matched {
		return c
	}
	c.result = f(c.m)
	return c
}

// Result returns the chain's outcome.
func (c *MatchChain[T]) Result() MatchResult[T] { return c.result }

// commandTagString is a debugging helper used in error messages.
func commandTagString(cmd Command) string {
	return fmt.Sprintf("%T", cmd)
}
