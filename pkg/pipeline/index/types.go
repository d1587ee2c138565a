// Package index implements the recall engine described in spec.md
// §4.8: hybrid RRF search, ranked recall over stored summaries, the
// three extraction strategies (Collection/Singular/Narrative), and the
// gap investigation planner. Grounded throughout on
// original_source/packages/extraction/src/pipeline/index.rs.
package index

import (
	"time"

	"github.com/civicsync/civicsync/pkg/domain"
)

// Strategy is the extraction approach chosen for a query (spec §4.8
// step 1).
type Strategy string

const (
	StrategyCollection Strategy = "collection"
	StrategySingular   Strategy = "singular"
	StrategyNarrative  Strategy = "narrative"
)

// Bucket is one LLM-proposed partition of ranked summaries, extracted
// independently and in parallel (spec §4.8 step 2).
type Bucket struct {
	Label   string
	URLs    []string
	Summary string
}

// Extraction is one strategy run's result: the assembled answer plus
// whatever the LLM flagged as missing.
type Extraction struct {
	Strategy Strategy
	Content  string
	Buckets  []Bucket
	Gaps     []GapQuery
}

// GapQuery is a transient, not-yet-classified gap surfaced by an
// Extraction — distinct from domain.Gap, which is the persisted,
// classified, investigated form recorded once plan_investigation has
// run and a caller has decided to track it.
type GapQuery struct {
	Field string
	Query string
}

// InvestigationAction is the recommended next move for a gap. Only
// HybridSearch is implemented server-side; FetchURL is a caller
// convenience for gaps that name a specific known page.
type InvestigationAction struct {
	Kind           string // "hybrid_search" | "fetch_url"
	Query          string
	SemanticWeight float64
	Limit          int
	URL            string
}

// InvestigationStep pairs a gap with its recommended action and the
// rationale for that recommendation (surfaced to operators, not acted
// on automatically).
type InvestigationStep struct {
	GapID     string
	Field     string
	Query     string
	GapType   domain.GapType
	Action    InvestigationAction
	Rationale string
}

// InvestigationPlan is plan_investigation's mechanical output — one
// step per gap, in the order gaps appeared in the Extraction. Policy
// (which steps to run, how many attempts, when to give up) is the
// caller's job (spec §4.8.2).
type InvestigationPlan struct {
	Steps []InvestigationStep
}

// StepResult is what execute_step returns after acting on a plan step.
type StepResult struct {
	Step       InvestigationStep
	PagesFound []string
	Duration   time.Duration
}
