package runtime

// Machine is a pure event-to-command decider. Decide may hold
// in-process state to coalesce duplicate requests (e.g. "a scrape is
// already pending for this source") but must be deterministic given
// its observed event stream, must not perform IO, and must not spawn
// tasks. A panic inside Decide is caught by the Runtime: the offending
// machine is skipped for that event, an error is recorded on the
// event's correlation, and the remaining machines still run.
type Machine interface {
	// Decide inspects event and optionally returns a command to run.
	// Returning (nil, false) means "no opinion on this event".
	Decide(event Event) (Command, bool)
}

// MachineFunc adapts a plain function to the Machine interface for
// small, stateless machines that don't need their own type.
type MachineFunc func(event Event) (Command, bool)

func (f MachineFunc) Decide(event Event) (Command, bool) { return f(event) }

// runMachine invokes m.Decide, converting any panic into an error
// string so callers never propagate a panic out of the Runtime loop.
func runMachine(m Machine, event Event) (cmd Command, ok bool, panicMsg string) {
	defer func() {
		if r := recover(); r != nil {
			panicMsg = extractPanicMessage(r)
			cmd, ok = nil, false
		}
	}()
	cmd, ok = m.Decide(event)
	return
}
