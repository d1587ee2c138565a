package runtime

import (
	"errors"
	"fmt"
)

// ErrEffectAlreadyRegistered is returned/panicked by the Dispatcher
// when a command type tag is registered twice.
var ErrEffectAlreadyRegistered = errors.New("effect already registered for this command type")

// ErrNoJobQueueConfigured is returned by NoOpJobQueue for every call,
// giving callers a clear refusal instead of silently dropping work.
var ErrNoJobQueueConfigured = errors.New("no job queue configured: background/scheduled dispatch is unavailable")

// ErrMissingJobSpec / ErrMissingSerializer name exactly which optional
// capability a Background/Scheduled command failed to provide.
var (
	ErrMissingJobSpec    = errors.New("command's execution mode requires a JobSpec but it does not implement JobSpecProvider")
	ErrMissingSerializer = errors.New("command's execution mode requires a JSON serializer but it does not implement Serializer")
)

// CommandFailed is the generic dispatcher-synthesized fact emitted on
// effect error or panic. sanitized_message has already passed through
// the masking service — it is safe to log or surface to a caller.
type CommandFailed struct {
	Cid              CorrelationId
	TypeName         string
	SanitizedMessage string
}

func (CommandFailed) Role() EventRole { return RoleFact }

// NewCommandFailed sanitizes err's text via sanitize before building
// the fact, so the dispatcher never puts raw internal error text on
// the bus.
func NewCommandFailed(cid CorrelationId, typeName string, err error, sanitize func(string) string) CommandFailed {
	msg := err.Error()
	if sanitize != nil {
		msg = sanitize(msg)
	}
	return CommandFailed{Cid: cid, TypeName: typeName, SanitizedMessage: msg}
}

// AuthorizationDenied is emitted by effects that perform authorization
// checks. Not retried; surfaced to the caller as-is.
type AuthorizationDenied struct {
	Cid    CorrelationId
	User   string
	Action string
	Reason string
}

func (AuthorizationDenied) Role() EventRole { return RoleFact }

// Workflow-specific terminal failures. The machine that owns the
// corresponding pending-work flag must clear it on any of these so
// retries remain possible.
type ScrapeFailed struct {
	Cid    CorrelationId
	URL    string
	Reason string
}

func (ScrapeFailed) Role() EventRole { return RoleFact }

type ExtractFailed struct {
	Cid    CorrelationId
	Query  string
	Reason string
}

func (ExtractFailed) Role() EventRole { return RoleFact }

type SyncFailed struct {
	Cid       CorrelationId
	WebsiteID string
	Reason    string
}

func (SyncFailed) Role() EventRole { return RoleFact }

type WebsiteCrawlFailed struct {
	Cid       CorrelationId
	WebsiteID string
	Reason    string
}

func (WebsiteCrawlFailed) Role() EventRole { return RoleFact }

// ErrCancelled signals cooperative cancellation of a long-running
// extraction.
var ErrCancelled = errors.New("cancelled")

// ErrTimeout is returned by dispatch_request when its deadline expires
// with no recorded error.
var ErrTimeout = errors.New("dispatch_request: timed out waiting for a matching fact")

// extractPanicMessage turns a recover() value into a readable string,
// mirroring the reference implementation's extract_panic_message.
func extractPanicMessage(r any) string {
	switch v := r.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("panic: %v", r)
	}
}
