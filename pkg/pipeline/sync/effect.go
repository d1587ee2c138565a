package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/civicsync/civicsync/pkg/runtime"
)

// SyncRequested is the edge-originated input event that starts an
// LLM-diff sync run for one (website, resource_kind, entity_type)
// triple (spec.md §4.10, generalized per SPEC_FULL §3's Entity
// reference note).
type SyncRequested struct {
	WebsiteID    string
	ResourceKind string
	EntityType   string
	Fresh        []FreshEntity
	Existing     []ExistingEntity
}

func (SyncRequested) Role() runtime.EventRole { return runtime.RoleInput }

// Synced is the terminal success fact.
type Synced struct {
	WebsiteID    string
	ResourceKind string
	EntityType   string
	Result       Result
}

func (Synced) Role() runtime.EventRole { return runtime.RoleFact }

// Command wraps SyncRequested's payload as the runtime.Command the
// Dispatcher routes to Effect.
type Command struct {
	WebsiteID    string
	ResourceKind string
	EntityType   string
	Fresh        []FreshEntity
	Existing     []ExistingEntity
	Mode         runtime.ExecutionMode
}

func (c Command) ExecutionMode() runtime.ExecutionMode { return c.Mode }

func (c Command) JobSpec() runtime.JobSpec {
	return runtime.NewJobSpec("sync_website").
		IdempotencyKey(c.WebsiteID + ":" + c.ResourceKind + ":" + c.EntityType).
		Build()
}

func (c Command) SerializeToJSON() ([]byte, error) { return json.Marshal(c) }

// DecodeCommand reconstructs a Command from its JSON payload for a
// queue.Worker re-entering the Dispatcher for a background
// "sync_website" job.
func DecodeCommand(payload []byte) (runtime.Command, error) {
	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("decode sync command: %w", err)
	}
	c.Mode = runtime.Inline()
	return c, nil
}

// Effect wires Command to Pipeline.Sync.
type Effect struct {
	Pipeline *Pipeline
}

func NewEffect(p *Pipeline) *Effect { return &Effect{Pipeline: p} }

func (e *Effect) Execute(ctx context.Context, cmd runtime.Command, ectx runtime.EffectContext) (runtime.Event, error) {
	c, ok := cmd.(Command)
	if !ok {
		return nil, fmt.Errorf("sync effect: unexpected command type %T", cmd)
	}

	result, err := e.Pipeline.Sync(ctx, c.WebsiteID, c.ResourceKind, c.EntityType, c.Fresh, c.Existing)
	if err != nil {
		return runtime.SyncFailed{
			Cid:       ectx.Correlation(),
			WebsiteID: c.WebsiteID,
			Reason:    err.Error(),
		}, nil
	}

	return Synced{
		WebsiteID:    c.WebsiteID,
		ResourceKind: c.ResourceKind,
		EntityType:   c.EntityType,
		Result:       result,
	}, nil
}
