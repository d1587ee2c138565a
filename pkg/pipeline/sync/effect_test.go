package sync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsync/civicsync/pkg/pipeline/llm"
	"github.com/civicsync/civicsync/pkg/runtime"
)

func TestSyncEffectExecuteReturnsSyncedOnSuccess(t *testing.T) {
	fake := &llm.FakeClient{Responses: []llm.CompletionResponse{
		{Text: `{"operations":[{"operation":"insert","fresh_id":"fresh_1"}],"summary":"1 new post"}`},
	}}
	p, _ := newTestPipeline(t, fake)
	eff := NewEffect(p)

	cmd := Command{
		WebsiteID:    "w1",
		ResourceKind: "post",
		EntityType:   "post",
		Fresh:        []FreshEntity{{TempID: "fresh_1", Title: "Food Shelf", Description: "weekly"}},
		Mode:         runtime.Inline(),
	}
	event, err := eff.Execute(context.Background(), cmd, runtime.NewEffectContext(nil, nil))
	require.NoError(t, err)
	synced, ok := event.(Synced)
	require.True(t, ok)
	assert.Equal(t, "w1", synced.WebsiteID)
	assert.Equal(t, 1, synced.Result.StagedInserts)
}

func TestSyncEffectExecuteRejectsWrongCommandType(t *testing.T) {
	eff := NewEffect(nil)
	_, err := eff.Execute(context.Background(), fakeWrongCommand{}, runtime.NewEffectContext(nil, nil))
	assert.Error(t, err)
}

type fakeWrongCommand struct{}

func (fakeWrongCommand) ExecutionMode() runtime.ExecutionMode { return runtime.Inline() }

func TestSyncCommandJobSpecIsIdempotentPerTriple(t *testing.T) {
	c := Command{WebsiteID: "w1", ResourceKind: "post", EntityType: "post"}
	spec := c.JobSpec()
	assert.Equal(t, "sync_website", spec.Type)
	assert.Equal(t, "w1:post:post", spec.IdempotencyKey)
}

func TestSyncDecodeCommandForcesInlineExecutionMode(t *testing.T) {
	payload, err := json.Marshal(Command{WebsiteID: "w1", Mode: runtime.Background()})
	require.NoError(t, err)

	cmd, err := DecodeCommand(payload)
	require.NoError(t, err)
	decoded, ok := cmd.(Command)
	require.True(t, ok)
	assert.True(t, decoded.Mode.IsInline())
}
