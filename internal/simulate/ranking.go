package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/okian/prix/pkg/logger"
)

// serviceStats is the subset of GET /stats the runner reads.
type serviceStats struct {
	Started      bool  `json:"started"`
	TotalPlayers int   `json:"total_players"`
	QueueLength  int   `json:"queue_length"`
	BusyWorkers  int   `json:"busy_workers"`
	Processed    int64 `json:"processed"`
}

func fetchStats(ctx context.Context, client *HTTPClient) (serviceStats, error) {
	var s serviceStats
	err := client.GetJSON(ctx, "/stats", &s)
	return s, err
}

// waitForProcessing polls /stats until the workers have handled want more
// prix than the baseline and the queue is empty.
func waitForProcessing(ctx context.Context, config *Config, client *HTTPClient, baseline int64, want int) error {
	deadline := time.Now().Add(config.SettleWait)
	ticker := time.NewTicker(config.PollInterval)
	defer ticker.Stop()

	for {
		s, err := fetchStats(ctx, client)
		if err != nil {
			return err
		}
		if s.Processed-baseline >= int64(want) && s.QueueLength == 0 && s.BusyWorkers == 0 {
			logger.Get().Info(ctx, "all prix processed", logger.Int64("processed", s.Processed-baseline))
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s: processed %d of %d, queue length %d",
				config.SettleWait, s.Processed-baseline, want, s.QueueLength)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// getLeaderboard fetches the top entries.
func getLeaderboard(ctx context.Context, client *HTTPClient, n int, stats *Stats) ([]Entry, error) {
	var entries []Entry
	if err := client.GetJSON(ctx, "/leaderboard?limit="+strconv.Itoa(n), &entries); err != nil {
		return nil, err
	}
	if stats != nil {
		stats.LeaderboardEntries = len(entries)
	}
	return entries, nil
}

// retrieveRanks fetches GET /rank/{id} for every player concurrently.
func retrieveRanks(ctx context.Context, config *Config, client *HTTPClient, players []Player, stats *Stats) (map[string]Entry, error) {
	logger.Get().Info(ctx, "retrieving ranks", logger.Int("players", len(players)), logger.Int("workers", config.Workers))

	var mu sync.Mutex
	ranks := make(map[string]Entry, len(players))

	counts := fanOut(ctx, config.Workers, players, func(ctx context.Context, p Player) string {
		var e Entry
		if err := client.GetJSON(ctx, "/rank/"+url.PathEscape(p.ID), &e); err != nil {
			if config.Verbose {
				logger.Get().Warn(ctx, "failed to get rank", logger.String("player_id", p.ID), logger.Error(err))
			}
			return resultFailed
		}
		mu.Lock()
		ranks[p.ID] = e
		mu.Unlock()
		return resultAccepted
	})

	stats.RanksRetrieved = int(counts[resultAccepted])
	if failed := counts[resultFailed]; failed > 0 {
		return ranks, fmt.Errorf("%d rank lookups failed", failed)
	}
	return ranks, ctx.Err()
}

// recalculate triggers a full replay and returns the replayed count.
func recalculate(ctx context.Context, client *HTTPClient) (int, error) {
	status, body, err := client.Do(ctx, http.MethodPost, "/ratings/recalculate", nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("recalculate: status %d: %s", status, body)
	}
	var resp struct {
		Replayed int `json:"replayed"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	return resp.Replayed, nil
}
