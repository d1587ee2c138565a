package runtime

import "log/slog"

// Tap is a fire-and-forget observer run after every effect for a tick
// has returned. Taps never influence dispatch and a panicking tap
// never affects the main flow.
type Tap func(event Event, cid CorrelationId)

// TapRegistry holds the taps a Runtime runs at the end of each tick.
type TapRegistry struct {
	taps   []Tap
	logger *slog.Logger
}

func NewTapRegistry() *TapRegistry {
	return &TapRegistry{logger: slog.Default()}
}

func (r *TapRegistry) Add(t Tap) { r.taps = append(r.taps, t) }

func (r *TapRegistry) Len() int { return len(r.taps) }

// RunAll invokes every tap, catching and logging any panic so a
// broken observer never disrupts the Runtime loop.
func (r *TapRegistry) RunAll(event Event, cid CorrelationId) {
	for _, t := range r.taps {
		r.runOne(t, event, cid)
	}
}

func (r *TapRegistry) runOne(t Tap, event Event, cid CorrelationId) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tap panicked", "error", extractPanicMessage(rec))
		}
	}()
	t(event, cid)
}
