package rating

import (
	"errors"
	"fmt"
)

// Sentinel kinds for rating errors. These allow errors.Is/As from callers.
var (
	ErrMissingRating = errors.New("missing rating")
	ErrInvalidInput  = errors.New("invalid rating input")
)

// MissingRatingError reports a participant that has no current rating on record.
type MissingRatingError struct {
	PlayerID string
}

func (e *MissingRatingError) Error() string {
	return fmt.Sprintf("no current rating for player %q", e.PlayerID)
}

// Is lets errors.Is(err, ErrMissingRating) match any MissingRatingError.
func (e *MissingRatingError) Is(target error) bool {
	return target == ErrMissingRating
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
