package queue_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsync/civicsync/pkg/pipeline/index"
	"github.com/civicsync/civicsync/pkg/pipeline/sync"
	"github.com/civicsync/civicsync/pkg/queue"
)

func TestDefaultDecodersRoundTripEachRegisteredType(t *testing.T) {
	decoders := queue.DefaultDecoders()

	extractPayload, err := json.Marshal(index.Command{WebsiteID: "w1", Query: "parks"})
	require.NoError(t, err)
	cmd, err := decoders["extract_website"](extractPayload)
	require.NoError(t, err)
	extracted, ok := cmd.(index.Command)
	require.True(t, ok)
	assert.Equal(t, "w1", extracted.WebsiteID)

	syncPayload, err := json.Marshal(sync.Command{WebsiteID: "w1", ResourceKind: "post", EntityType: "event"})
	require.NoError(t, err)
	cmd, err = decoders["sync_website"](syncPayload)
	require.NoError(t, err)
	synced, ok := cmd.(sync.Command)
	require.True(t, ok)
	assert.Equal(t, "post", synced.ResourceKind)
}
