package index

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsync/civicsync/pkg/domain"
	"github.com/civicsync/civicsync/pkg/pipeline/llm"
	"github.com/civicsync/civicsync/pkg/runtime"
	"github.com/civicsync/civicsync/pkg/store/sqlite"
)

func TestEffectExecuteReturnsExtractedOnSuccess(t *testing.T) {
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.PutPage(context.Background(), domain.Page{WebsiteID: "w1", URL: "https://x/a"}))
	page, err := st.GetPage(context.Background(), "w1", "https://x/a")
	require.NoError(t, err)
	require.NoError(t, st.PutSummary(context.Background(), domain.Summary{PageID: page.ID, Summary: "weekly food shelf"}))

	fake := &llm.FakeClient{Responses: []llm.CompletionResponse{{Text: "This org runs a weekly food shelf."}}}
	eff := NewEffect(st, NewExtractor(fake), 10)

	cmd := Command{WebsiteID: "w1", Query: "describe the organization", Mode: runtime.Inline()}
	ectx := runtime.NewEffectContext(nil, nil)

	event, err := eff.Execute(context.Background(), cmd, ectx)
	require.NoError(t, err)
	extracted, ok := event.(Extracted)
	require.True(t, ok)
	assert.Equal(t, "w1", extracted.WebsiteID)
	assert.Equal(t, StrategyNarrative, extracted.Result.Strategy)
}

func TestEffectExecuteRejectsWrongCommandType(t *testing.T) {
	eff := NewEffect(nil, nil, 10)
	ectx := runtime.NewEffectContext(nil, nil)
	_, err := eff.Execute(context.Background(), fakeWrongCommand{}, ectx)
	assert.Error(t, err)
}

type fakeWrongCommand struct{}

func (fakeWrongCommand) ExecutionMode() runtime.ExecutionMode { return runtime.Inline() }

func TestCommandJobSpecIsIdempotentPerWebsiteAndQuery(t *testing.T) {
	c := Command{WebsiteID: "w1", Query: "q1"}
	spec := c.JobSpec()
	assert.Equal(t, "extract_website", spec.Type)
	assert.Equal(t, "w1:q1", spec.IdempotencyKey)
}

func TestDecodeCommandForcesInlineExecutionMode(t *testing.T) {
	payload, err := json.Marshal(Command{WebsiteID: "w1", Query: "q1", Mode: runtime.Background()})
	require.NoError(t, err)

	cmd, err := DecodeCommand(payload)
	require.NoError(t, err)
	decoded, ok := cmd.(Command)
	require.True(t, ok)
	assert.True(t, decoded.Mode.IsInline())
}
