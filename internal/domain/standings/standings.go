// Package standings turns per-race finishing positions into a single
// event ranking that the rating engine can consume.
package standings

import (
	"fmt"
	"sort"

	"github.com/okian/prix/internal/domain/rating"
)

// Position bounds for a single race.
const (
	MinPosition = 1
	MaxPosition = 12
)

// podium holds the points for the top three positions; everything below
// scores 13 minus the position.
var podium = [...]int{15, 12, 10}

// Race maps a player id to that player's finishing position in one race.
type Race map[string]int

// Standing is a player's aggregate over every race of an event.
type Standing struct {
	PlayerID string `json:"player_id"`
	Points   int    `json:"points"`
	Rank     int    `json:"rank"`
}

// Points returns the race points awarded for a finishing position.
func Points(position int) (int, error) {
	if position < MinPosition || position > MaxPosition {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPosition, position)
	}
	if position <= len(podium) {
		return podium[position-1], nil
	}
	return 13 - position, nil
}

// Tally sums points per player across races and ranks the totals.
// Players with equal totals share a rank; the next distinct total takes
// the rank after everyone placed above it.
func Tally(races []Race) ([]Standing, error) {
	if len(races) == 0 {
		return nil, ErrNoRaces
	}

	totals := make(map[string]int, len(races[0]))
	for i, race := range races {
		if len(race) == 0 {
			return nil, fmt.Errorf("race %d: %w", i+1, ErrNoRaces)
		}
		if i > 0 {
			if err := sameField(races[0], race); err != nil {
				return nil, fmt.Errorf("race %d: %w", i+1, err)
			}
		}

		taken := make(map[int]string, len(race))
		for id, pos := range race {
			pts, err := Points(pos)
			if err != nil {
				return nil, fmt.Errorf("race %d, player %q: %w", i+1, id, err)
			}
			if other, dup := taken[pos]; dup {
				return nil, fmt.Errorf("race %d: %w: %q and %q both finished %d",
					i+1, ErrDuplicatePosition, other, id, pos)
			}
			taken[pos] = id
			totals[id] += pts
		}
	}

	out := make([]Standing, 0, len(totals))
	for id, pts := range totals {
		out = append(out, Standing{PlayerID: id, Points: pts})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].PlayerID < out[j].PlayerID
	})

	for i := range out {
		if i > 0 && out[i].Points == out[i-1].Points {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out, nil
}

// Placements converts a tallied table into engine input.
func Placements(table []Standing) []rating.Placement {
	out := make([]rating.Placement, len(table))
	for i, s := range table {
		out[i] = rating.Placement{PlayerID: s.PlayerID, Rank: s.Rank}
	}
	return out
}

func sameField(first, race Race) error {
	if len(first) != len(race) {
		return fmt.Errorf("%w: expected %d players, got %d", ErrInconsistentRaces, len(first), len(race))
	}
	for id := range race {
		if _, ok := first[id]; !ok {
			return fmt.Errorf("%w: %q did not start the first race", ErrInconsistentRaces, id)
		}
	}
	return nil
}
