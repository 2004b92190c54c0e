package rating

import (
	"strconv"
)

// ApplyAdjustments adds each delta to the participant's current rating and
// clamps the result at minRating.
//
// Only participants present in adjustments are returned; callers merge the
// result into their full rating set.
func ApplyAdjustments(current Ratings, adjustments Adjustments, minRating int) (Ratings, error) {
	out := make(Ratings, len(adjustments))
	for id, delta := range adjustments {
		r, ok := current[id]
		if !ok {
			return nil, &MissingRatingError{PlayerID: id}
		}
		out[id] = max(minRating, r+delta)
	}
	return out, nil
}

// Applier carries a rating floor for repeated ApplyAdjustments calls.
type Applier struct {
	minRating int
}

// ApplierOption applies a configuration option to the Applier.
type ApplierOption func(*Applier)

// WithMinRating sets the floor below which no rating is written. Any integer is
// accepted, including a negative floor.
func WithMinRating(floor int) ApplierOption {
	return func(a *Applier) {
		a.minRating = floor
	}
}

// NewApplier creates an Applier with DefaultMinRating unless overridden.
func NewApplier(opts ...ApplierOption) *Applier {
	a := &Applier{minRating: DefaultMinRating}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MinRating returns the configured floor.
func (a *Applier) MinRating() int { return a.minRating }

// Apply applies adjustments with the configured floor.
func (a *Applier) Apply(current Ratings, adjustments Adjustments) (Ratings, error) {
	return ApplyAdjustments(current, adjustments, a.minRating)
}

// Describe renders a delta for display: "+15", "-10" or "0".
func Describe(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
