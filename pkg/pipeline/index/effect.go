package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/civicsync/civicsync/pkg/runtime"
	"github.com/civicsync/civicsync/pkg/store"
)

// ExtractRequested is the edge-originated input event that starts a
// recall+extract run for one query against one website (spec.md §6's
// bus-facing contract: one request event per user-facing action).
type ExtractRequested struct {
	WebsiteID string
	Query     string
}

func (ExtractRequested) Role() runtime.EventRole { return runtime.RoleInput }

// Extracted is the terminal success fact.
type Extracted struct {
	WebsiteID string
	Query     string
	Result    Extraction
}

func (Extracted) Role() runtime.EventRole { return runtime.RoleFact }

// Command wraps ExtractRequested's payload as the runtime.Command the
// Dispatcher routes to Effect. Kept distinct from ExtractRequested
// (the bus-facing Input) because a Command additionally carries its
// execution mode / job spec — those are dispatch concerns, not facts
// about what the edge asked for.
type Command struct {
	WebsiteID string
	Query     string
	Mode      runtime.ExecutionMode
}

func (c Command) ExecutionMode() runtime.ExecutionMode { return c.Mode }

func (c Command) JobSpec() runtime.JobSpec {
	return runtime.NewJobSpec("extract_website").IdempotencyKey(c.WebsiteID + ":" + c.Query).Build()
}

func (c Command) SerializeToJSON() ([]byte, error) { return json.Marshal(c) }

// DecodeCommand reconstructs a Command from its JSON payload — the
// counterpart a queue.Worker uses to re-enter the Dispatcher for a
// background "extract_website" job (spec.md §6's job queue contract).
func DecodeCommand(payload []byte) (runtime.Command, error) {
	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("decode extract command: %w", err)
	}
	c.Mode = runtime.Inline()
	return c, nil
}

// Effect wires Command to the recall+extract+gap-investigation
// pipeline (spec.md §4.8). Investigation runs best-effort: a failed
// step is logged and does not fail the overall extraction, since
// spec.md §4.8.2 treats investigation as a mechanism the caller may
// act on, not a precondition for the extraction's own success.
type Effect struct {
	Store        store.Store
	Extractor    *Extractor
	MaxSummaries int
}

func NewEffect(st store.Store, extractor *Extractor, maxSummaries int) *Effect {
	return &Effect{Store: st, Extractor: extractor, MaxSummaries: maxSummaries}
}

func (e *Effect) Execute(ctx context.Context, cmd runtime.Command, ectx runtime.EffectContext) (runtime.Event, error) {
	c, ok := cmd.(Command)
	if !ok {
		return nil, fmt.Errorf("index effect: unexpected command type %T", cmd)
	}

	recalled, err := RankedRecall(ctx, e.Store, c.WebsiteID, nil, e.MaxSummaries)
	if err != nil {
		return runtime.ExtractFailed{Cid: ectx.Correlation(), Query: c.Query, Reason: err.Error()}, nil
	}

	result, err := e.Extractor.Extract(ctx, recalled, c.Query)
	if err != nil {
		return runtime.ExtractFailed{Cid: ectx.Correlation(), Query: c.Query, Reason: err.Error()}, nil
	}

	for _, step := range PlanInvestigation(result).Steps {
		if _, err := ExecuteStep(ctx, e.Store, step, nil, nil); err != nil {
			slog.Warn("gap investigation step failed",
				"website_id", c.WebsiteID, "gap_id", step.GapID, "error", err)
		}
	}

	return Extracted{WebsiteID: c.WebsiteID, Query: c.Query, Result: result}, nil
}
