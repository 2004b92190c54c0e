package service

import "errors"

// Sentinel errors returned by the Service. The HTTP layer maps them to status codes.
var (
	ErrNotStarted        = errors.New("service not started")
	ErrBackpressure      = errors.New("prix queue is full")
	ErrInvalidPlayer     = errors.New("invalid player")
	ErrInvalidSubmission = errors.New("invalid prix submission")
)

// UnregisteredMessage is shown to callers who submit results for unknown players.
const UnregisteredMessage = "register all players before submitting results"
