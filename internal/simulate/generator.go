package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/prix/internal/domain/standings"
	"github.com/okian/prix/pkg/logger"
)

// Generation constants.
const (
	racesPerPrix   = 4
	tieOneIn       = 10
	prixSpacing    = 15 * time.Minute
	nicknamePrefix = "racer"
)

var generatorEpoch = time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // load generation, not security sensitive
}

// generatePlayers creates n players with unique ids.
func generatePlayers(ctx context.Context, n int) []Player {
	players := make([]Player, n)
	for i := range players {
		players[i] = Player{
			ID:       uuid.NewString(),
			Nickname: fmt.Sprintf("%s-%03d", nicknamePrefix, i+1),
		}
	}
	logger.Get().Info(ctx, "generated players", logger.Int("count", n))
	return players
}

// generatePrix creates the configured number of prix over the given players.
// Play times are strictly increasing so a replay sees the submission order.
func generatePrix(ctx context.Context, config *Config, players []Player, rng *rand.Rand, stats *Stats) ([]Prix, error) {
	field := config.FieldSize
	if field < 1 || field > len(players) {
		return nil, fmt.Errorf("field size %d must be between 1 and %d players", field, len(players))
	}
	if config.UseRaces && field > standings.MaxPosition {
		return nil, fmt.Errorf("field size %d exceeds %d race positions", field, standings.MaxPosition)
	}

	out := make([]Prix, config.NumPrix)
	for i := range out {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during prix generation: %w", ctx.Err())
		default:
		}

		perm := rng.Perm(len(players))[:field]
		ids := make([]string, field)
		for j, idx := range perm {
			ids[j] = players[idx].ID
		}

		p := Prix{
			ID:       uuid.NewString(),
			PlayedAt: generatorEpoch.Add(time.Duration(i) * prixSpacing),
		}
		if config.UseRaces {
			p.Races = generateRaces(ids, rng)
		} else {
			p.Placements = generatePlacements(ids, rng)
		}
		out[i] = p
	}

	stats.PrixGenerated = len(out)
	logger.Get().Info(ctx, "generated prix", logger.Int("count", len(out)), logger.Int("field", field), logger.Bool("races", config.UseRaces))
	return out, nil
}

// generatePlacements ranks ids in order, occasionally tying a player with the
// one ahead. Ranks follow competition ranking.
func generatePlacements(ids []string, rng *rand.Rand) []Placement {
	out := make([]Placement, len(ids))
	for i, id := range ids {
		rank := i + 1
		if i > 0 && rng.IntN(tieOneIn) == 0 {
			rank = out[i-1].Rank
		}
		out[i] = Placement{PlayerID: id, Rank: rank}
	}
	return out
}

// generateRaces shuffles the field into racesPerPrix finishing orders.
func generateRaces(ids []string, rng *rand.Rand) []map[string]int {
	races := make([]map[string]int, racesPerPrix)
	for r := range races {
		race := make(map[string]int, len(ids))
		for pos, idx := range rng.Perm(len(ids)) {
			race[ids[idx]] = pos + 1
		}
		races[r] = race
	}
	return races
}
