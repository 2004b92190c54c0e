package simulate

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/prix/pkg/logger"
)

// verifyLeaderboard checks ordering and competition ranks.
func verifyLeaderboard(leaderboard []Entry) error {
	for i, e := range leaderboard {
		if i == 0 {
			if e.Rank != 1 {
				return fmt.Errorf("top entry has rank %d", e.Rank)
			}
			continue
		}
		prev := leaderboard[i-1]
		switch {
		case e.Rating > prev.Rating:
			return fmt.Errorf("leaderboard not sorted: entry %d (%d) above entry %d (%d)", i, e.Rating, i-1, prev.Rating)
		case e.Rating == prev.Rating && e.Rank != prev.Rank:
			return fmt.Errorf("tied ratings at entries %d and %d have ranks %d and %d", i-1, i, prev.Rank, e.Rank)
		case e.Rating < prev.Rating && e.Rank != i+1:
			return fmt.Errorf("entry %d has rank %d, want %d", i, e.Rank, i+1)
		}
	}
	return nil
}

// verifyRanks checks every rank lookup against the leaderboard and the floor.
func verifyRanks(leaderboard []Entry, ranks map[string]Entry, floor int) error {
	var errs []error
	for _, e := range leaderboard {
		r, ok := ranks[e.PlayerID]
		if !ok {
			continue
		}
		if r.Rank != e.Rank || r.Rating != e.Rating {
			errs = append(errs, fmt.Errorf("player %s: leaderboard #%d/%d, rank lookup #%d/%d",
				e.PlayerID, e.Rank, e.Rating, r.Rank, r.Rating))
		}
	}
	for id, r := range ranks {
		if r.Rating < floor {
			errs = append(errs, fmt.Errorf("player %s rated %d below floor %d", id, r.Rating, floor))
		}
	}
	return errors.Join(errs...)
}

// sameStandings reports the first difference between two leaderboards.
func sameStandings(before, after []Entry) error {
	if len(before) != len(after) {
		return fmt.Errorf("leaderboard length changed from %d to %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			return fmt.Errorf("entry %d changed from %+v to %+v", i, before[i], after[i])
		}
	}
	return nil
}

// ratingDrift is the total rating gained or lost by the pool. Rounding moves
// it by at most one point per prix; the floor only adds.
func ratingDrift(ranks map[string]Entry, initial int) int {
	drift := 0
	for _, r := range ranks {
		drift += r.Rating - initial
	}
	return drift
}

func displayTop(ctx context.Context, leaderboard []Entry, n int) {
	n = min(n, len(leaderboard))
	for _, e := range leaderboard[:n] {
		logger.Get().Info(ctx, "leaderboard",
			logger.Int("rank", e.Rank),
			logger.String("nickname", e.Nickname),
			logger.Int("rating", e.Rating))
	}
}
