package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrPlayerExists = errors.New("player already exists")
	ErrPrixExists   = errors.New("prix already applied")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
)
