// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) initializer to build a Config with defaults.
// - Load layers a .env file, an optional YAML file and PRIX_ env vars on top.
// - Validation failures wrap ErrInvalidConfig, source failures ErrLoadConfig.
package config

import (
	"context"
	"time"
)

// Storage backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Dedupe backends.
const (
	DedupeMemory = "memory"
	DedupeRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Store selects where players and prix live: memory or postgres.
	Store string `koanf:"store"`

	// DatabaseURL is the postgres DSN, required when Store is postgres.
	DatabaseURL string `koanf:"database_url"`

	// DedupeBackend selects the idempotency set: memory or redis.
	DedupeBackend string `koanf:"dedupe_backend"`

	// RedisURL is required when DedupeBackend is redis.
	RedisURL string `koanf:"redis_url"`

	// DedupeTTL expires redis dedupe keys. Zero keeps them forever.
	DedupeTTL time.Duration `koanf:"dedupe_ttl"`

	// EventQueueSize bounds the in-memory prix queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of prix workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the in-memory deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	KFactor       int `koanf:"k_factor"`
	MinRating     int `koanf:"min_rating"`
	InitialRating int `koanf:"initial_rating"`

	// CORSAllowedOrigins lists origins accepted by the API.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// New creates a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		Store:               StoreMemory,
		DedupeBackend:       DedupeMemory,
		DedupeTTL:           24 * time.Hour,
		EventQueueSize:      10_000,
		WorkerCount:         1,
		DedupeSize:          50_000,
		MaxLeaderboardLimit: 1000,
		KFactor:             32,
		MinRating:           0,
		InitialRating:       1500,
		CORSAllowedOrigins:  []string{"*"},
	}
}
