package standings

import "errors"

var (
	ErrNoRaces           = errors.New("no races")
	ErrInvalidPosition   = errors.New("position out of range")
	ErrDuplicatePosition = errors.New("duplicate position")
	ErrInconsistentRaces = errors.New("races have different players")
)
