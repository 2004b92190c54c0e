package rating

// Outcome is one participant's rating movement for an event.
type Outcome struct {
	PlayerID string
	Rank     int
	Before   int
	Delta    int
	After    int
}

// Clamped reports whether the floor absorbed part of the delta.
func (o Outcome) Clamped() bool {
	return o.Before+o.Delta != o.After
}

// Evaluate runs the calculator and the applier for one event and returns the
// outcomes in placement order.
func Evaluate(placements []Placement, current Ratings, kFactor, minRating int) ([]Outcome, error) {
	c := &Calculator{kFactor: kFactor}
	return c.Evaluate(&Applier{minRating: minRating}, placements, current)
}

// Evaluate computes the event's adjustments and applies them through a.
func (c *Calculator) Evaluate(a *Applier, placements []Placement, current Ratings) ([]Outcome, error) {
	adj, err := c.Calculate(placements, current)
	if err != nil {
		return nil, err
	}
	next, err := a.Apply(current, adj)
	if err != nil {
		return nil, err
	}

	out := make([]Outcome, len(placements))
	for i, p := range placements {
		out[i] = Outcome{
			PlayerID: p.PlayerID,
			Rank:     p.Rank,
			Before:   current[p.PlayerID],
			Delta:    adj[p.PlayerID],
			After:    next[p.PlayerID],
		}
	}
	return out, nil
}
