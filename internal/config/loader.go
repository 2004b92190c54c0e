package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "PRIX_"
	envConfigFile = "PRIX_CONFIG"
	envDotenvFile = "PRIX_ENV_FILE"
	defaultDotenv = ".env"
)

// Load builds a Config by layering defaults, a .env file, an optional YAML
// file and env vars. Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if PRIX_CONFIG is set
//  3. env (prefix PRIX_), including values read from .env
//
// The .env file is read from PRIX_ENV_FILE or ./.env. Variables already set
// in the process win over the file. A missing file is not an error.
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	if err := loadDotenv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// PRIX_QUEUE_SIZE -> queue_size; underscores are kept to match the tags.
	envProvider := env.ProviderWithValue(envPrefix, ".", envValue)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// listKeys are the settings read from env as comma separated lists.
var listKeys = map[string]bool{
	"cors_allowed_origins": true,
}

func envValue(key, value string) (string, any) {
	key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
	if !listKeys[key] {
		return key, value
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

func loadDotenv() error {
	path := os.Getenv(envDotenvFile)
	if path == "" {
		path = defaultDotenv
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.Store != StoreMemory && c.Store != StorePostgres:
		return invalid("store must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store)
	case c.Store == StorePostgres && c.DatabaseURL == "":
		return invalid("database_url is required when store is %q", StorePostgres)
	case c.DedupeBackend != DedupeMemory && c.DedupeBackend != DedupeRedis:
		return invalid("dedupe_backend must be %q or %q, got %q", DedupeMemory, DedupeRedis, c.DedupeBackend)
	case c.DedupeBackend == DedupeRedis && c.RedisURL == "":
		return invalid("redis_url is required when dedupe_backend is %q", DedupeRedis)
	case c.DedupeTTL < 0:
		return invalid("dedupe_ttl must not be negative")
	case c.EventQueueSize < 1:
		return invalid("queue_size must be positive")
	case c.WorkerCount < 1:
		return invalid("worker_count must be positive")
	case c.DedupeSize < 1:
		return invalid("dedupe_size must be positive")
	case c.MaxLeaderboardLimit < 1:
		return invalid("max_leaderboard_limit must be positive")
	case c.KFactor <= 0:
		return invalid("k_factor must be positive")
	case c.MinRating < 0:
		return invalid("min_rating must not be negative")
	case c.InitialRating < c.MinRating:
		return invalid("initial_rating must not be below min_rating")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
