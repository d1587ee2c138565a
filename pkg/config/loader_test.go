package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "civicsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
bus:
  capacity: 8192
index:
  default_semantic_weight: 0.75
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8192, cfg.Bus.Capacity)
	assert.Equal(t, 0.75, cfg.Index.DefaultSemanticWeight)
	// Untouched keys keep their default value.
	assert.Equal(t, 200, cfg.Index.MaxSummariesForPartition)
	assert.Equal(t, "postgres", cfg.Store.Backend)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("CIVICSYNC_DB_PASSWORD", "s3cret")
	path := writeConfigFile(t, `
database:
  password: ${CIVICSYNC_DB_PASSWORD}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "bus:\n  capacity: [this is not a number\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoadRejectsValuesFailingValidation(t *testing.T) {
	path := writeConfigFile(t, "bus:\n  capacity: 0\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoadPreservesDurationFields(t *testing.T) {
	path := writeConfigFile(t, "dispatch:\n  request_timeout: 45s\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Dispatch.RequestTimeout)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Validate(Defaults()))
}

func TestValidateRejectsNegativeBusCapacity(t *testing.T) {
	cfg := Defaults()
	cfg.Bus.Capacity = 0
	err := Validate(cfg)
	require.Error(t, err)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "bus.capacity", ve.Field)
}

func TestValidateRejectsOutOfRangeSemanticWeight(t *testing.T) {
	cfg := Defaults()
	cfg.Index.DefaultSemanticWeight = 1.5
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsUnknownStoreBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Backend = "mongo"
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsUnknownJobQueueVariant(t *testing.T) {
	cfg := Defaults()
	cfg.JobQueue.Variant = "kafka"
	assert.Error(t, Validate(cfg))
}

func TestValidateAcceptsEmptyJobQueueVariant(t *testing.T) {
	cfg := Defaults()
	cfg.JobQueue.Variant = ""
	assert.NoError(t, Validate(cfg))
}
