// Package repository defines the rating store interface and errors.
package repository

import (
	"context"

	"github.com/okian/prix/internal/domain/model"
	"github.com/okian/prix/internal/domain/rating"
	"github.com/okian/prix/internal/domain/types"
)

// EvaluateFunc computes the outcome of one prix from the participants'
// current ratings. Stores call it inside their write transaction.
type EvaluateFunc func(placements []rating.Placement, current rating.Ratings) ([]rating.Outcome, error)

// Store provides read/write access to players, prix and their audit rows.
type Store interface {
	// CreatePlayer registers a player. Returns ErrPlayerExists for a known id.
	CreatePlayer(ctx context.Context, p model.Player) error
	// Player returns a player by id or ErrNotFound.
	Player(ctx context.Context, id string) (model.Player, error)
	// Ratings returns the current rating of every known id; unknown ids are omitted.
	Ratings(ctx context.Context, ids []string) (rating.Ratings, error)

	// ApplyPrix atomically reads the participants' ratings, evaluates the prix
	// and writes the new ratings, the prix and its audit rows.
	// Returns ErrPrixExists if the prix was already applied.
	ApplyPrix(ctx context.Context, p model.Prix, eval EvaluateFunc) ([]model.PrixResult, error)
	// Replay resets every player to their seed rating and re-applies every
	// stored prix in play order. Returns the number of prix replayed.
	Replay(ctx context.Context, eval EvaluateFunc) (int, error)
	// DeletePrix removes a prix and its audit rows and replays the rest in the
	// same transaction. Nothing changes if the replay fails. Returns the number
	// of prix replayed, or ErrNotFound.
	DeletePrix(ctx context.Context, id string, eval EvaluateFunc) (int, error)

	// TopN returns the top-N players by rating desc, id asc.
	TopN(ctx context.Context, n int) ([]types.Entry, error)
	// Rank returns a player's leaderboard entry or ErrNotFound.
	Rank(ctx context.Context, id string) (types.Entry, error)
	// History returns a player's audit rows in play order.
	History(ctx context.Context, playerID string) ([]model.PrixResult, error)
	// PrixResults returns the audit rows of one prix in placement order, or ErrNotFound.
	PrixResults(ctx context.Context, prixID string) ([]model.PrixResult, error)
	// Count returns the number of registered players.
	Count(ctx context.Context) (int, error)

	Close() error
}
