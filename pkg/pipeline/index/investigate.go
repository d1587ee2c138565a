package index

import (
	"context"
	"fmt"
	"time"

	"github.com/civicsync/civicsync/pkg/store"
)

// ExecuteStep runs the action an InvestigationStep recommends and
// reports what it found. Only "hybrid_search" is implemented; any
// other Kind is a caller bug and returns an error rather than silently
// doing nothing (spec.md §4.8.2 execute_step).
func ExecuteStep(ctx context.Context, st store.Store, step InvestigationStep, queryVector []float32, filter *store.QueryFilter) (StepResult, error) {
	start := timeNow()

	switch step.Action.Kind {
	case "hybrid_search":
		results, err := HybridSearch(ctx, st, step.Action.Query, queryVector, step.Action.Limit, filter, step.Action.SemanticWeight, 0)
		if err != nil {
			return StepResult{}, fmt.Errorf("execute step %s: %w", step.GapID, err)
		}
		urls := make([]string, 0, len(results))
		for _, r := range results {
			urls = append(urls, r.Page.URL)
		}
		return StepResult{Step: step, PagesFound: urls, Duration: timeNow().Sub(start)}, nil
	default:
		return StepResult{}, fmt.Errorf("execute step %s: unsupported action kind %q", step.GapID, step.Action.Kind)
	}
}

// timeNow is a thin indirection so step timing doesn't call time.Now
// directly in a dozen call sites if this ever needs to be mocked.
func timeNow() time.Time {
	return time.Now()
}
