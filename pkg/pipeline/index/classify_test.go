package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/civicsync/civicsync/pkg/pipeline/llm"
)

func TestClassifyQueryHeuristics(t *testing.T) {
	cases := map[string]Strategy{
		"find all food pantries in town":    StrategyCollection,
		"list the volunteer opportunities":  StrategyCollection,
		"what programs are offered here":    StrategyCollection,
		"what is the phone number":          StrategySingular,
		"what's the contact email":          StrategySingular,
		"summarize this organization":       StrategyNarrative,
		"describe the services offered":     StrategyNarrative,
		"tell me about their mission":       StrategyNarrative,
	}
	for query, want := range cases {
		got := ClassifyQuery(context.Background(), nil, query)
		assert.Equal(t, want, got, "query: %s", query)
	}
}

func TestClassifyQueryFallsBackToLLM(t *testing.T) {
	fake := &llm.FakeClient{Responses: []llm.CompletionResponse{{Text: "singular"}}}
	got := ClassifyQuery(context.Background(), fake, "something ambiguous entirely")
	assert.Equal(t, StrategySingular, got)
	assert.Len(t, fake.Seen, 1)
}

func TestClassifyQueryLLMFailureDefaultsToCollection(t *testing.T) {
	fake := &llm.FakeClient{Err: assertError{}}
	got := ClassifyQuery(context.Background(), fake, "something ambiguous entirely")
	assert.Equal(t, StrategyCollection, got)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
