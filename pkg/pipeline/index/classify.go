package index

import (
	"context"
	"strings"

	"github.com/civicsync/civicsync/pkg/pipeline/llm"
)

// ClassifyQuery picks an extraction Strategy by the same cheap prefix
// and substring checks classify_query uses, only falling back to an
// LLM call when nothing matches (spec.md §4.8 step 1). The LLM fallback
// defaults to StrategyCollection on failure, since an over-broad recall
// degrades more gracefully than an under-broad one.
func ClassifyQuery(ctx context.Context, client llm.Client, query string) Strategy {
	if s, ok := classifyHeuristic(query); ok {
		return s
	}
	return classifyWithLLM(ctx, client, query)
}

func classifyHeuristic(query string) (Strategy, bool) {
	lower := strings.ToLower(strings.TrimSpace(query))

	switch {
	case strings.HasPrefix(lower, "find all"),
		strings.HasPrefix(lower, "list "):
		return StrategyCollection, true
	case strings.HasPrefix(lower, "what is the"),
		strings.HasPrefix(lower, "what's the"):
		return StrategySingular, true
	case strings.HasPrefix(lower, "summarize"),
		strings.HasPrefix(lower, "describe"),
		strings.HasPrefix(lower, "what does"):
		return StrategyNarrative, true
	case strings.Contains(lower, "list of"),
		strings.Contains(lower, "opportunities"),
		strings.Contains(lower, "services"),
		strings.Contains(lower, "programs"):
		return StrategyCollection, true
	case strings.Contains(lower, "phone"),
		strings.Contains(lower, "email"),
		strings.Contains(lower, "address"),
		strings.Contains(lower, "contact"):
		return StrategySingular, true
	case strings.Contains(lower, "overview"),
		strings.Contains(lower, "about"):
		return StrategyNarrative, true
	default:
		return "", false
	}
}

func classifyWithLLM(ctx context.Context, client llm.Client, query string) Strategy {
	if client == nil {
		return StrategyCollection
	}
	resp, err := client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: `Classify the query as one of: collection, singular, narrative. ` +
			`Reply with exactly one of those three words and nothing else.`,
		Messages: []llm.Message{{Role: "user", Content: query}},
	})
	if err != nil {
		return StrategyCollection
	}
	switch strings.ToLower(strings.TrimSpace(resp.Text)) {
	case "singular":
		return StrategySingular
	case "narrative":
		return StrategyNarrative
	case "collection":
		return StrategyCollection
	default:
		return StrategyCollection
	}
}
