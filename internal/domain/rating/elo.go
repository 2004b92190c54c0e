// Package rating implements the multi-player ELO engine used to rate Prix results.
//
// An N-player event is treated as C(n,2) independent two-player matches. Each
// participant's summed contribution is divided by the number of opponents so a
// single event moves a rating about as much as one 1v1 match would.
package rating

import (
	"math"
)

// Engine defaults.
const (
	DefaultKFactor       = 32
	DefaultMinRating     = 0
	DefaultInitialRating = 1500

	// deviation is the rating gap at which the favourite is expected to score 10:1.
	deviation = 400
)

// Actual scores for one pairwise comparison.
const (
	win  = 1.0
	draw = 0.5
	loss = 0.0
)

// Placement is a participant's finishing rank within one event. Lower is better.
type Placement struct {
	PlayerID string `json:"player_id"`
	Rank     int    `json:"rank"`
}

// Ratings maps participant ids to their integer rating.
type Ratings map[string]int

// Adjustments maps participant ids to a signed rating delta for one event.
type Adjustments map[string]int

// Expected returns the expected score of a player rated ra against one rated rb.
func Expected(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/deviation))
}

// actual returns the score of rank a against rank b.
func actual(a, b int) float64 {
	switch {
	case a < b:
		return win
	case a > b:
		return loss
	default:
		return draw
	}
}

// CalculateAdjustments computes the rating delta of every participant in
// placements against every other participant.
//
// Deltas are rounded half-to-even. A single-participant event has no opponents
// and yields a zero delta.
func CalculateAdjustments(placements []Placement, current Ratings, kFactor int) (Adjustments, error) {
	if len(placements) == 0 {
		return nil, invalidInput("placements must not be empty")
	}
	if kFactor <= 0 {
		return nil, invalidInput("k factor must be positive, got %d", kFactor)
	}

	seen := make(map[string]struct{}, len(placements))
	for _, p := range placements {
		if p.Rank < 1 {
			return nil, invalidInput("rank for %q must be positive, got %d", p.PlayerID, p.Rank)
		}
		if _, dup := seen[p.PlayerID]; dup {
			return nil, invalidInput("player %q placed more than once", p.PlayerID)
		}
		seen[p.PlayerID] = struct{}{}
		if _, ok := current[p.PlayerID]; !ok {
			return nil, &MissingRatingError{PlayerID: p.PlayerID}
		}
	}

	n := len(placements)
	out := make(Adjustments, n)
	if n == 1 {
		out[placements[0].PlayerID] = 0
		return out, nil
	}

	k := float64(kFactor)
	sums := make([]float64, n)
	for i := 0; i < n; i++ {
		pi := placements[i]
		ri := current[pi.PlayerID]
		for j := i + 1; j < n; j++ {
			pj := placements[j]
			rj := current[pj.PlayerID]

			ei := Expected(ri, rj)
			si := actual(pi.Rank, pj.Rank)

			sums[i] += k * (si - ei)
			sums[j] += k * ((1 - si) - (1 - ei))
		}
	}

	opponents := float64(n - 1)
	for i, p := range placements {
		out[p.PlayerID] = int(math.RoundToEven(sums[i] / opponents))
	}
	return out, nil
}

// Calculator carries a k-factor for repeated CalculateAdjustments calls.
type Calculator struct {
	kFactor int
}

// CalculatorOption applies a configuration option to the Calculator.
type CalculatorOption func(*Calculator)

// WithKFactor sets the k-factor. Non-positive values are ignored.
func WithKFactor(k int) CalculatorOption {
	return func(c *Calculator) {
		if k > 0 {
			c.kFactor = k
		}
	}
}

// NewCalculator creates a Calculator with DefaultKFactor unless overridden.
func NewCalculator(opts ...CalculatorOption) *Calculator {
	c := &Calculator{kFactor: DefaultKFactor}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KFactor returns the configured k-factor.
func (c *Calculator) KFactor() int { return c.kFactor }

// Calculate computes adjustments with the configured k-factor.
func (c *Calculator) Calculate(placements []Placement, current Ratings) (Adjustments, error) {
	return CalculateAdjustments(placements, current, c.kFactor)
}
