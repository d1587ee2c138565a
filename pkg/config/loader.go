package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads civicsync.yaml from path, expands environment variables,
// merges it over Defaults(), validates the result, and returns it. A
// missing file is not an error: Load falls back to Defaults() alone,
// matching the teacher's "config is optional, defaults always work"
// posture.
func Load(path string) (*Config, error) {
	// Best-effort local .env loading for development; production
	// deployments set real environment variables instead.
	_ = godotenv.Load()

	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(data)

	var fromFile Config
	if err := yaml.Unmarshal(expanded, &fromFile); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if err := mergo.Merge(cfg, fromFile, mergo.WithOverride); err != nil {
		return nil, NewLoadError(path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the ranges and enums that matter operationally:
// weights in [0,1], positive capacities, and recognized variant names.
// Hand-written rather than tag-driven, matching the teacher's own
// hand-rolled validator pattern.
func Validate(cfg *Config) error {
	if cfg.Bus.Capacity < 1 {
		return fmt.Errorf("%w: %v", ErrValidationFailed, NewValidationError("bus.capacity", fmt.Errorf("must be >= 1")))
	}
	if cfg.Index.MaxSummariesForPartition < 1 {
		return fmt.Errorf("%w: %v", ErrValidationFailed, NewValidationError("index.max_summaries_for_partition", fmt.Errorf("must be >= 1")))
	}
	if cfg.Index.RRFK <= 0 {
		return fmt.Errorf("%w: %v", ErrValidationFailed, NewValidationError("index.rrf_k", fmt.Errorf("must be > 0")))
	}
	if cfg.Index.DefaultSemanticWeight < 0 || cfg.Index.DefaultSemanticWeight > 1 {
		return fmt.Errorf("%w: %v", ErrValidationFailed, NewValidationError("index.default_semantic_weight", fmt.Errorf("must be within [0,1]")))
	}
	switch cfg.Store.Backend {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: %v", ErrValidationFailed, NewValidationError("store.backend", fmt.Errorf("must be postgres or sqlite, got %q", cfg.Store.Backend)))
	}
	switch cfg.JobQueue.Variant {
	case JobQueueNoop, JobQueuePostgres, "":
	default:
		return fmt.Errorf("%w: %v", ErrValidationFailed, NewValidationError("job_queue.variant", fmt.Errorf("unrecognized variant %q", cfg.JobQueue.Variant)))
	}
	return nil
}
