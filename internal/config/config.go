// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Layer file and environment overrides on top via Load.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// DBPath locates the sqlite corpus database file.
	DBPath string `koanf:"db_path" validate:"required"`

	// QueueSize bounds the in-memory ingestion queue.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	// WorkerCount sets the number of ingestion workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`

	// DedupeSize sets the size of the dedup-key cache.
	DedupeSize int `koanf:"dedupe_size" validate:"gt=0"`

	// EmbedderMode selects the embedding provider: "local" for the
	// in-process hashing embedder, "http" for an OpenAI-compatible
	// endpoint.
	EmbedderMode string `koanf:"embedder_mode" validate:"oneof=local http"`

	// EmbedModel names the embedding model; required in http mode.
	EmbedModel string `koanf:"embed_model" validate:"required_if=EmbedderMode http"`

	// EmbedBaseURL is the embeddings endpoint base; required in http mode.
	EmbedBaseURL string `koanf:"embed_base_url" validate:"required_if=EmbedderMode http,omitempty,url"`

	// EmbedAPIKey authenticates against the embeddings endpoint.
	EmbedAPIKey string `koanf:"embed_api_key"`

	// EmbedTimeoutMS bounds a single embedding call.
	EmbedTimeoutMS int `koanf:"embed_timeout_ms" validate:"gt=0"`

	// EmbedDimension is the expected vector size.
	EmbedDimension int `koanf:"embed_dimension" validate:"gt=0"`

	// IndexMode selects the vector index: "graph" (approximate) or
	// "flat" (exact brute force).
	IndexMode string `koanf:"index_mode" validate:"oneof=graph flat"`

	// IndexMaxNeighbors is the graph neighbor-list width.
	IndexMaxNeighbors int `koanf:"index_max_neighbors" validate:"gt=0"`

	// IndexEfSearch is the graph search breadth.
	IndexEfSearch int `koanf:"index_ef_search" validate:"gt=0"`

	// IndexRebuildSeconds is the background rebuild interval; 0
	// disables the loop.
	IndexRebuildSeconds int `koanf:"index_rebuild_seconds" validate:"gte=0"`

	// SearchMaxLimit caps the page size of POST /search.
	SearchMaxLimit int `koanf:"search_max_limit" validate:"gt=0"`

	// OpeningsPath points at an ECO openings reference file (TSV) to
	// load at startup; empty skips the load.
	OpeningsPath string `koanf:"openings_path"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		DBPath:              "gambit.db",
		QueueSize:           100_000,
		WorkerCount:         runtime.NumCPU() * 4,
		DedupeSize:          50_000,
		EmbedderMode:        "local",
		EmbedModel:          "local-hash",
		EmbedTimeoutMS:      30_000,
		EmbedDimension:      256,
		IndexMode:           "graph",
		IndexMaxNeighbors:   16,
		IndexEfSearch:       64,
		IndexRebuildSeconds: 30,
		SearchMaxLimit:      100,
	}
}
