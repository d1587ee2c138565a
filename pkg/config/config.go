// Package config loads and validates the Runtime/Pipeline
// configuration surface described in spec.md §6, following the
// teacher's YAML-plus-defaults-plus-env-expansion loader pattern.
package config

import "time"

// Config is the umbrella configuration object returned by Load. Every
// field maps onto a recognized configuration key from spec.md §6.
type Config struct {
	Bus      BusConfig      `yaml:"bus"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Index    IndexConfig    `yaml:"index"`
	Store    StoreConfig    `yaml:"store"`
	JobQueue JobQueueConfig `yaml:"job_queue"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	LLM      LLMConfig      `yaml:"llm"`
}

// BusConfig controls the EventBus's broadcast channel depth.
type BusConfig struct {
	Capacity int `yaml:"capacity"`
}

// DispatchConfig controls dispatch_request's timeout backstop.
type DispatchConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// IndexConfig controls the recall engine's ranked-recall cutoff and
// RRF fusion tuning.
type IndexConfig struct {
	MaxSummariesForPartition int     `yaml:"max_summaries_for_partition"`
	RRFK                     float64 `yaml:"rrf_k"`
	DefaultSemanticWeight    float64 `yaml:"default_semantic_weight"`
}

// StoreConfig controls capability flags for the Postgres store.
// Both fields are normally auto-detected at connect time; the
// configured value is a manual override for environments where
// detection is undesirable (e.g. forcing bytea storage in CI).
type StoreConfig struct {
	PgvectorEnabled *bool  `yaml:"pgvector_enabled,omitempty"`
	HNSWEnabled     *bool  `yaml:"hnsw_enabled,omitempty"`
	Backend         string `yaml:"backend"`
}

// JobQueueVariant selects the Dispatcher's background/scheduled sink.
type JobQueueVariant string

const (
	JobQueueNoop     JobQueueVariant = "noop"
	JobQueuePostgres JobQueueVariant = "postgres"
)

type JobQueueConfig struct {
	Variant             JobQueueVariant `yaml:"variant"`
	WorkerCount         int             `yaml:"worker_count"`
	PollInterval        time.Duration   `yaml:"poll_interval"`
	PollIntervalJitter  time.Duration   `yaml:"poll_interval_jitter"`
	StaleClaimThreshold time.Duration   `yaml:"stale_claim_threshold"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// HTTPConfig controls the operator-facing admin surface (health,
// readiness, websocket event tail) — not the GraphQL edge, which is
// out of scope (spec.md §1).
type HTTPConfig struct {
	ListenAddr       string   `yaml:"listen_addr"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// LLMConfig points the extraction/sync pipelines at the completion
// endpoint used for summarization, bucket partitioning, and the sync
// diff call. APIKey is normally supplied via env expansion, never
// committed to the YAML file directly.
type LLMConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}
