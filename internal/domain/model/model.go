// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/prix/internal/domain/rating"
)

// Player is a registered participant and their current rating.
// SeedRating is what a full recalculation resets Rating to.
type Player struct {
	ID         string    `json:"id"`
	Nickname   string    `json:"nickname"`
	Rating     int       `json:"rating"`
	SeedRating int       `json:"seed_rating"`
	CreatedAt  time.Time `json:"created_at"`
}

// Prix is one multi-player event: the final placement of every participant.
type Prix struct {
	ID         string             `json:"id"`
	PlayedAt   time.Time          `json:"played_at"`
	Placements []rating.Placement `json:"placements"`
}

// PlayerIDs returns the participant ids in placement order.
func (p Prix) PlayerIDs() []string {
	ids := make([]string, len(p.Placements))
	for i, pl := range p.Placements {
		ids[i] = pl.PlayerID
	}
	return ids
}

// PrixResult is the audit row written for each participant of an applied prix.
type PrixResult struct {
	PrixID         string    `json:"prix_id"`
	PlayerID       string    `json:"player_id"`
	Placement      int       `json:"placement"`
	StartingRating int       `json:"starting_rating"`
	Adjustment     int       `json:"adjustment"`
	EndingRating   int       `json:"ending_rating"`
	PlayedAt       time.Time `json:"played_at"`
}

// Change renders the adjustment for display.
func (r PrixResult) Change() string {
	return rating.Describe(r.Adjustment)
}

// Results converts engine outcomes into audit rows for prix p.
func Results(p Prix, outcomes []rating.Outcome) []PrixResult {
	out := make([]PrixResult, len(outcomes))
	for i, o := range outcomes {
		out[i] = PrixResult{
			PrixID:         p.ID,
			PlayerID:       o.PlayerID,
			Placement:      o.Rank,
			StartingRating: o.Before,
			Adjustment:     o.Delta,
			EndingRating:   o.After,
			PlayedAt:       p.PlayedAt,
		}
	}
	return out
}
