package runtime

import "sync"

// inflightEntry is the per-correlation bookkeeping record: outstanding
// count, first recorded error, and the set of parties waiting on
// WaitZero. Created lazily on first Inc, removed when count reaches
// zero and either there is no error or no one is waiting on it — so a
// fire-and-forget error path never leaks an entry forever.
type inflightEntry struct {
	count   uint64
	err     error
	waiters int
	notify  chan struct{} // closed and replaced on every state change
}

func newInflightEntry() *inflightEntry {
	return &inflightEntry{notify: make(chan struct{})}
}

// wake closes the current notify channel (releasing every blocked
// WaitZero) and installs a fresh one for subsequent waiters.
func (e *inflightEntry) wake() {
	close(e.notify)
	e.notify = make(chan struct{})
}

// InflightTracker maps CorrelationId to an inflightEntry and supports
// concurrent Inc/Dec/RecordError/WaitZero without external locking,
// per spec.md §4.2/§5.
type InflightTracker struct {
	mu      sync.Mutex
	entries map[CorrelationId]*inflightEntry
}

func NewInflightTracker() *InflightTracker {
	return &InflightTracker{entries: make(map[CorrelationId]*inflightEntry)}
}

// Inc creates the entry if absent and adds n to its count.
func (t *InflightTracker) Inc(cid CorrelationId, n uint64) {
	if cid.IsNone() || n == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[cid]
	if !ok {
		e = newInflightEntry()
		t.entries[cid] = e
	}
	e.count += n
}

// Dec subtracts n from the entry's count. If the count reaches zero
// and either there is no error or no one is waiting, the entry is
// removed. Waiters are notified regardless.
func (t *InflightTracker) Dec(cid CorrelationId, n uint64) {
	if cid.IsNone() || n == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[cid]
	if !ok {
		return
	}
	if n > e.count {
		e.count = 0
	} else {
		e.count -= n
	}
	e.wake()
	t.reapLocked(cid, e)
}

// RecordError stores the first error observed for cid. If the count is
// already zero and there are no waiters, the entry is reaped
// immediately so the error can never leak.
func (t *InflightTracker) RecordError(cid CorrelationId, err error) {
	if cid.IsNone() || err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[cid]
	if !ok {
		e = newInflightEntry()
		t.entries[cid] = e
	}
	if e.err == nil {
		e.err = err
	}
	e.wake()
	t.reapLocked(cid, e)
}

// reapLocked removes the entry iff count==0 and (err==nil || waiters==0).
// Caller must hold t.mu.
func (t *InflightTracker) reapLocked(cid CorrelationId, e *inflightEntry) {
	if e.count == 0 && (e.err == nil || e.waiters == 0) {
		delete(t.entries, cid)
	}
}

// HasPendingWork reports whether cid currently has a tracked entry
// with nonzero count. Used by the Runtime to decide whether a given
// envelope's processing should decrement inflight at all (events
// emitted by effects share the batch's correlation but were not
// separately incremented).
func (t *InflightTracker) HasPendingWork(cid CorrelationId) bool {
	if cid.IsNone() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[cid]
	return ok && e.count > 0
}

// ActiveCount returns the number of tracked correlations, for leak
// assertions in tests.
func (t *InflightTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// WaitZero blocks until cid's count reaches zero, returning any
// recorded error. Implements an edge-triggered notify with a re-check
// loop so a Dec racing between the count check and the wait is never
// missed. Returns immediately (nil) if the entry is absent.
func (t *InflightTracker) WaitZero(cid CorrelationId) error {
	if cid.IsNone() {
		return nil
	}
	for {
		t.mu.Lock()
		e, ok := t.entries[cid]
		if !ok {
			t.mu.Unlock()
			return nil
		}
		if e.count == 0 {
			err := e.err
			t.mu.Unlock()
			return err
		}
		e.waiters++
		ch := e.notify
		t.mu.Unlock()

		<-ch

		t.mu.Lock()
		if e2, ok := t.entries[cid]; ok && e2 == e {
			e.waiters--
			if e.count == 0 {
				err := e.err
				t.reapLocked(cid, e)
				t.mu.Unlock()
				return err
			}
			t.reapLocked(cid, e)
		}
		t.mu.Unlock()
	}
}

// WaitZeroTimeout is WaitZero bounded by a channel that closes or
// fires on timeout; it is used by the dispatch_request backstop.
func (t *InflightTracker) WaitZeroTimeout(cid CorrelationId, timeout <-chan struct{}) (err error, timedOut bool) {
	done := make(chan error, 1)
	go func() { done <- t.WaitZero(cid) }()
	select {
	case err := <-done:
		return err, false
	case <-timeout:
		return nil, true
	}
}

// InflightBatch is the opaque receipt acquired before dispatching a
// batch of n commands sharing a correlation, completed once the batch
// outcome is known.
type InflightBatch struct {
	tracker *InflightTracker
	cid     CorrelationId
	n       uint64
	done    bool
}

// BeginBatch increments cid's inflight count by n and returns a
// receipt that must be completed exactly once.
func (t *InflightTracker) BeginBatch(cid CorrelationId, n uint64) *InflightBatch {
	t.Inc(cid, n)
	return &InflightBatch{tracker: t, cid: cid, n: n}
}

// BatchOutcome is either Complete (all n commands succeeded) or
// Partial, reporting how many succeeded before a failure at a given
// index along with the failure's error.
type BatchOutcome struct {
	Complete bool
	// Partial fields, meaningful iff !Complete.
	Succeeded int
	FailedAt  int
	Error     error
}

func CompleteOutcome() BatchOutcome { return BatchOutcome{Complete: true} }

func PartialOutcome(succeeded, failedAt int, err error) BatchOutcome {
	return BatchOutcome{Succeeded: succeeded, FailedAt: failedAt, Error: err}
}

// Complete decrements the batch's full count and, on a Partial
// outcome, records the error. Completing an already-completed batch
// is a no-op (mirrors the reference implementation's drop-without-
// completion warning by simply relying on the timeout backstop — the
// Go port makes double-completion safe rather than silently wrong).
func (b *InflightBatch) Complete(outcome BatchOutcome) {
	if b.done {
		return
	}
	b.done = true
	if !outcome.Complete && outcome.Error != nil {
		b.tracker.RecordError(b.cid, outcome.Error)
	}
	b.tracker.Dec(b.cid, b.n)
}
