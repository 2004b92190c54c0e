package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/prix/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Defaults assumed by the drift check.
const (
	initialRating = 1500
	ratingFloor   = 0
	displayCount  = 10
)

// Run executes a complete simulation against a live service.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting prix simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("players", config.NumPlayers),
		logger.Int("prix", config.NumPrix),
		logger.Int("field", config.FieldSize),
		logger.Int("workers", config.Workers),
		logger.Bool("races", config.UseRaces))

	if config.SettleWait <= 0 {
		config.SettleWait = DefaultSettleWait
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	client := newHTTPClient(config.BaseURL, config.Timeout)

	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	players := generatePlayers(ctx, config.NumPlayers)
	prix, err := generatePrix(ctx, config, players, newRand(config.Seed), stats)
	if err != nil {
		return stats, fmt.Errorf("prix generation failed: %w", err)
	}

	if err := registerPlayers(ctx, config, client, players, stats); err != nil {
		return stats, fmt.Errorf("player registration failed: %w", err)
	}

	before, err := fetchStats(ctx, client)
	if err != nil {
		return stats, fmt.Errorf("stats retrieval failed: %w", err)
	}

	if err := submitPrix(ctx, config, client, prix, stats); err != nil {
		return stats, fmt.Errorf("prix submission failed: %w", err)
	}

	log.Info(ctx, "waiting for prix to be processed")
	if err := waitForProcessing(ctx, config, client, before.Processed, stats.PrixAccepted); err != nil {
		return stats, fmt.Errorf("processing did not settle: %w", err)
	}

	ranks, err := retrieveRanks(ctx, config, client, players, stats)
	if err != nil {
		return stats, fmt.Errorf("rank retrieval failed: %w", err)
	}

	leaderboard, err := getLeaderboard(ctx, client, config.TopN, stats)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}

	if err := verifyLeaderboard(leaderboard); err != nil {
		return stats, fmt.Errorf("leaderboard verification failed: %w", err)
	}
	if err := verifyRanks(leaderboard, ranks, ratingFloor); err != nil {
		return stats, fmt.Errorf("rank verification failed: %w", err)
	}
	log.Info(ctx, "rating drift", logger.Int("points", ratingDrift(ranks, initialRating)), logger.Int("prix", stats.PrixAccepted))

	if config.VerifyReplay {
		if err := verifyReplay(ctx, config, client, leaderboard); err != nil {
			return stats, err
		}
	}

	displayTop(ctx, leaderboard, displayCount)

	if config.OutputFile != "" {
		if err := savePrixToFile(ctx, config.OutputFile, prix); err != nil {
			log.Warn(ctx, "failed to save prix to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

// verifyReplay recalculates and expects the same leaderboard. Only valid when
// prix were applied in play order, i.e. a single submitter and worker.
func verifyReplay(ctx context.Context, config *Config, client *HTTPClient, leaderboard []Entry) error {
	replayed, err := recalculate(ctx, client)
	if err != nil {
		return fmt.Errorf("recalculate failed: %w", err)
	}
	after, err := getLeaderboard(ctx, client, config.TopN, nil)
	if err != nil {
		return fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	if err := sameStandings(leaderboard, after); err != nil {
		return fmt.Errorf("replay changed the leaderboard: %w", err)
	}
	logger.Get().Info(ctx, "replay reproduced the leaderboard", logger.Int("replayed", replayed))
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	status, _, err := client.Do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", status)
	}
	return nil
}

// savePrixToFile writes the generated prix as a JSON array.
func savePrixToFile(ctx context.Context, filename string, prix []Prix) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(prix, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal prix: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	logger.Get().Info(ctx, "prix saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, prixPerSecond float64
	if stats.PrixSubmitted > 0 {
		acceptRate = float64(stats.PrixAccepted) / float64(stats.PrixSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		prixPerSecond = float64(stats.PrixSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("playersRegistered", stats.PlayersRegistered),
		logger.Int("prixGenerated", stats.PrixGenerated),
		logger.Int("prixSubmitted", stats.PrixSubmitted),
		logger.Int("prixAccepted", stats.PrixAccepted),
		logger.Int("prixDuplicate", stats.PrixDuplicate),
		logger.Int("prixFailed", stats.PrixFailed),
		logger.Int("ranksRetrieved", stats.RanksRetrieved),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("prixPerSecond", prixPerSecond))
}
