package simulate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/prix/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends logs to stdout and, when logFile is set, to that file as
// well. The returned func closes the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	level := "info"
	if verbose {
		level = "debug"
	}

	if logFile == "" {
		if err := logger.Init(logger.WithLevel(level)); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return func() error { return nil }, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithLevel(level), logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file.Close, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Prix Simulator
==============

Registers a pool of players, submits random prix through the HTTP API, waits
for the rating workers to drain and checks the resulting leaderboard.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -players int
        Number of players to register (default 24)
  -prix int
        Number of prix to submit (default 500)
  -field int
        Participants per prix (default 8)
  -races
        Submit four race finishes per prix instead of placements
  -top int
        Number of leaderboard entries to fetch (default 50)
  -workers int
        Number of concurrent HTTP workers (default 1)
  -seed uint
        Generator seed, 0 picks a random one
  -timeout duration
        HTTP request timeout (default 30s)
  -wait duration
        Upper bound on waiting for processing (default 2m)
  -verify-replay
        Recalculate afterwards and expect an identical leaderboard
  -output string
        Write the generated prix to this JSON file
  -log string
        Also write logs to this file
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Default run
  go run ./cmd/simulate

  # Race scoring with a replay check
  go run ./cmd/simulate -races -field 12 -verify-replay

  # Heavier concurrent load
  go run ./cmd/simulate -players 200 -prix 20000 -workers 16
`)
}
