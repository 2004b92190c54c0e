package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/prix/internal/simulate"
)

// Default configuration constants.
const (
	defaultPlayers     = 24
	defaultPrix        = 500
	defaultField       = 8
	defaultTopN        = 50
	defaultWorkers     = 1
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numPlayers   = flag.Int("players", defaultPlayers, "Number of players to register")
		numPrix      = flag.Int("prix", defaultPrix, "Number of prix to submit")
		field        = flag.Int("field", defaultField, "Participants per prix")
		races        = flag.Bool("races", false, "Submit race finishes instead of placements")
		topN         = flag.Int("top", defaultTopN, "Number of leaderboard entries to fetch")
		workers      = flag.Int("workers", defaultWorkers, "Number of concurrent HTTP workers")
		seed         = flag.Uint64("seed", 0, "Generator seed, 0 picks a random one")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		wait         = flag.Duration("wait", simulate.DefaultSettleWait, "Upper bound on waiting for processing")
		verifyReplay = flag.Bool("verify-replay", false, "Recalculate afterwards and expect an identical leaderboard")
		outputFile   = flag.String("output", "", "Write the generated prix to this JSON file")
		logFile      = flag.String("log", "", "Also write logs to this file")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closeLog, err := simulate.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config := &simulate.Config{
		BaseURL:      *baseURL,
		NumPlayers:   *numPlayers,
		NumPrix:      *numPrix,
		FieldSize:    *field,
		UseRaces:     *races,
		TopN:         *topN,
		Workers:      *workers,
		Seed:         *seed,
		Timeout:      *timeout,
		SettleWait:   *wait,
		VerifyReplay: *verifyReplay,
		OutputFile:   *outputFile,
		Verbose:      *verbose,
	}

	if _, err := simulate.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
