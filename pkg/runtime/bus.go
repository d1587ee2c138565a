package runtime

import (
	"log/slog"
	"sync"
)

// busCapacityDefault matches spec.md §6's default broadcast depth.
const busCapacityDefault = 4096

// Receiver is a per-subscriber handle returned by EventBus.Subscribe.
// It only ever sees envelopes emitted after the Subscribe call.
type Receiver struct {
	ch     chan EventEnvelope
	lagged chan int
}

// Recv blocks until an envelope, a Lagged notice, or bus closure is
// available. Exactly one of (envelope, ok=true), (n>0, lagged),
// closed is returned per call.
func (r *Receiver) Recv() (env EventEnvelope, lagged int, closed bool) {
	select {
	case e, ok := <-r.ch:
		if !ok {
			return EventEnvelope{}, 0, true
		}
		return e, 0, false
	case n := <-r.lagged:
		return EventEnvelope{}, n, false
	}
}

// EventBus is a broadcast, multi-subscriber, bounded channel of event
// envelopes. Emit never blocks: a receiver that falls behind its
// bounded queue loses the envelope and gets a lag notice from its next
// Recv (lagged=1, however many drops preceded it) instead of stalling
// the emitter, mirroring the teacher's Broadcast snapshot-then-send
// idiom in pkg/events/manager.go (never hold the subscriber lock while
// sending to a slow consumer).
type EventBus struct {
	mu          sync.Mutex
	subscribers map[*Receiver]struct{}
	capacity    int
	logger      *slog.Logger
}

// NewEventBus constructs a bus with the given bounded per-receiver
// capacity. capacity <= 0 uses busCapacityDefault.
func NewEventBus(capacity int) *EventBus {
	if capacity <= 0 {
		capacity = busCapacityDefault
	}
	return &EventBus{
		subscribers: make(map[*Receiver]struct{}),
		capacity:    capacity,
		logger:      slog.Default(),
	}
}

// Subscribe registers a new receiver that observes envelopes emitted
// after this call returns.
func (b *EventBus) Subscribe() *Receiver {
	r := &Receiver{
		ch:     make(chan EventEnvelope, b.capacity),
		lagged: make(chan int, 1),
	}
	b.mu.Lock()
	b.subscribers[r] = struct{}{}
	b.mu.Unlock()
	return r
}

// Unsubscribe removes a receiver and closes its channel so a
// blocked Recv returns with closed=true.
func (b *EventBus) Unsubscribe(r *Receiver) {
	b.mu.Lock()
	if _, ok := b.subscribers[r]; ok {
		delete(b.subscribers, r)
		close(r.ch)
	}
	b.mu.Unlock()
}

// Close shuts the bus down, closing every live receiver's channel so
// Runtime loops relying on them observe closed=true from Recv and exit.
func (b *EventBus) Close() {
	b.mu.Lock()
	for r := range b.subscribers {
		close(r.ch)
	}
	b.subscribers = make(map[*Receiver]struct{})
	b.mu.Unlock()
}

// Emit wraps payload in an envelope with the NONE correlation and
// broadcasts it.
func (b *EventBus) Emit(payload Event) {
	b.EmitEnvelope(NewEnvelope(payload))
}

// EmitWithCorrelation wraps payload with cid and broadcasts it.
func (b *EventBus) EmitWithCorrelation(payload Event, cid CorrelationId) {
	b.EmitEnvelope(NewEnvelopeWithCorrelation(payload, cid))
}

// EmitEnvelope broadcasts a fully-formed envelope, preserving whatever
// correlation it already carries. This is the method the Runtime uses
// to forward effect-returned events — the Runtime is the sole emitter
// of effect-produced events.
func (b *EventBus) EmitEnvelope(env EventEnvelope) {
	b.mu.Lock()
	receivers := make([]*Receiver, 0, len(b.subscribers))
	for r := range b.subscribers {
		receivers = append(receivers, r)
	}
	b.mu.Unlock()

	for _, r := range receivers {
		select {
		case r.ch <- env:
		default:
			select {
			case r.lagged <- 1:
			default:
				// a lag notice is already pending for this receiver
			}
			b.logger.Warn("receiver lagged, dropping envelope", "type", env.Tag.String())
		}
	}
}

// SubscriberCount reports the current number of live receivers; used
// by tests polling for subscribe/unsubscribe completion.
func (b *EventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
