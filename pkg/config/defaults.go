package config

import "time"

// Defaults returns the compiled-in configuration baseline that a
// loaded YAML file is merged over. Values mirror spec.md §6 exactly
// (bus capacity 4096, RRF k=60, etc).
func Defaults() *Config {
	return &Config{
		Bus: BusConfig{
			Capacity: 4096,
		},
		Dispatch: DispatchConfig{
			RequestTimeout: 30 * time.Second,
		},
		Index: IndexConfig{
			MaxSummariesForPartition: 200,
			RRFK:                     60,
			DefaultSemanticWeight:    0.5,
		},
		Store: StoreConfig{
			Backend: "postgres",
		},
		JobQueue: JobQueueConfig{
			Variant:             JobQueueNoop,
			WorkerCount:         4,
			PollInterval:        2 * time.Second,
			PollIntervalJitter:  500 * time.Millisecond,
			StaleClaimThreshold: 10 * time.Minute,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "civicsync",
			Database:        "civicsync",
			SSLMode:         "disable",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		HTTP: HTTPConfig{
			ListenAddr: ":8080",
		},
		LLM: LLMConfig{
			Endpoint: "https://api.anthropic.com/v1/messages",
			Model:    "claude-3-5-sonnet-latest",
			Timeout:  60 * time.Second,
		},
	}
}
