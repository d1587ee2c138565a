package index

import (
	"fmt"
	"strings"

	"github.com/civicsync/civicsync/pkg/domain"
)

// classifyGap buckets a gap query into Entity/Semantic/Structural by
// the same cheap keyword heuristics classify_query uses for strategy
// selection, grounded in original_source's test expectations for
// plan_investigation (entity gaps take FTS-heavy weight < 0.5,
// semantic gaps take semantic-heavy weight > 0.5).
func classifyGap(query string) domain.GapType {
	lower := strings.ToLower(query)

	switch {
	case strings.Contains(lower, "email"),
		strings.Contains(lower, "phone"),
		strings.Contains(lower, "address"),
		strings.Contains(lower, "contact"),
		strings.Contains(lower, "name"):
		return domain.GapEntity
	case strings.Contains(lower, "missing"),
		strings.Contains(lower, "section"),
		strings.Contains(lower, "directors"),
		strings.Contains(lower, "board"):
		return domain.GapStructural
	default:
		return domain.GapSemantic
	}
}

// recommendedSemanticWeight maps a GapType to the semantic/keyword mix
// a follow-up hybrid search should use (spec.md §4.8.2): Entity gaps
// skew keyword-heavy (exact names, emails, phone numbers match better
// lexically), Semantic gaps skew embedding-heavy, Structural gaps stay
// balanced but widen the result limit instead.
func recommendedSemanticWeight(t domain.GapType) float64 {
	switch t {
	case domain.GapEntity:
		return 0.3
	case domain.GapSemantic:
		return 0.7
	default:
		return 0.5
	}
}

func recommendedLimit(t domain.GapType) int {
	if t == domain.GapStructural {
		return 15
	}
	return 10
}

// PlanInvestigation is plan_investigation's mechanical pass: classify
// every gap the caller's Extraction surfaced and recommend one
// HybridSearch step each. It does not execute anything or decide
// whether to retry — that's ExecuteStep plus caller-owned policy
// (spec.md §4.8.2).
func PlanInvestigation(extraction Extraction) InvestigationPlan {
	plan := InvestigationPlan{Steps: make([]InvestigationStep, 0, len(extraction.Gaps))}
	for i, gap := range extraction.Gaps {
		gapType := classifyGap(gap.Query)
		weight := recommendedSemanticWeight(gapType)
		action := InvestigationAction{
			Kind:           "hybrid_search",
			Query:          gap.Query,
			SemanticWeight: weight,
			Limit:          recommendedLimit(gapType),
		}
		plan.Steps = append(plan.Steps, InvestigationStep{
			GapID:   fmt.Sprintf("gap-%d", i),
			Field:   gap.Field,
			Query:   gap.Query,
			GapType: gapType,
			Action:  action,
			Rationale: fmt.Sprintf("%s gap, using %.0f%% semantic / %.0f%% keyword",
				gapType, weight*100, (1-weight)*100),
		})
	}
	return plan
}
