package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsMatchSpecValues(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 4096, cfg.Bus.Capacity)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.RequestTimeout)
	assert.Equal(t, 200, cfg.Index.MaxSummariesForPartition)
	assert.Equal(t, 60.0, cfg.Index.RRFK)
	assert.Equal(t, 0.5, cfg.Index.DefaultSemanticWeight)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, JobQueueNoop, cfg.JobQueue.Variant)
	assert.Equal(t, 2*time.Second, cfg.JobQueue.PollInterval)
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
}

func TestDefaultsReturnsFreshInstanceEachCall(t *testing.T) {
	a := Defaults()
	b := Defaults()
	a.Bus.Capacity = 1
	assert.Equal(t, 4096, b.Bus.Capacity, "mutating one Defaults() result must not affect another")
}
