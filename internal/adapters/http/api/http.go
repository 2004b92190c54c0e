// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/okian/prix/internal/adapters/repository"
	service "github.com/okian/prix/internal/app"
	"github.com/okian/prix/internal/domain/model"
	"github.com/okian/prix/internal/domain/rating"
	"github.com/okian/prix/internal/domain/types"
)

const (
	defaultMaxLimit = 1000
	maxBodyBytes    = 1 << 20
)

// Dependencies bundles every operation the handlers call.
type Dependencies interface {
	PlayerDependencies
	PrixDependencies
	RatingsDependencies
	LeaderboardDependencies
	RankDependencies
	StatsProvider
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	playersHandler     *PlayersHandler
	prixHandler        *PrixHandler
	ratingsHandler     *RatingsHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler

	maxLimit       int
	allowedOrigins []string
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxLimit caps the leaderboard limit parameter.
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithAllowedOrigins sets the CORS allowed origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		maxLimit:       defaultMaxLimit,
		allowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.playersHandler = NewPlayersHandler(deps)
	s.prixHandler = NewPrixHandler(deps)
	s.ratingsHandler = NewRatingsHandler(deps)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit)
	s.rankHandler = NewRankHandler(deps)
	return s
}

// Register attaches CORS and all business routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           60 * 15,
	}))

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/players", func(rr chi.Router) {
		rr.Post("/", MetricsMiddleware(s.playersHandler.HandleCreate, "players"))
		rr.Get("/{id}", MetricsMiddleware(s.playersHandler.HandleGet, "player"))
		rr.Get("/{id}/history", MetricsMiddleware(s.playersHandler.HandleHistory, "player_history"))
	})

	r.Route("/prix", func(rr chi.Router) {
		rr.Post("/", MetricsMiddleware(s.prixHandler.HandleSubmit, "prix"))
		rr.Get("/{id}", MetricsMiddleware(s.prixHandler.HandleGet, "prix_results"))
		rr.Delete("/{id}", MetricsMiddleware(s.prixHandler.HandleDelete, "prix_delete"))
	})

	r.Post("/ratings/recalculate", MetricsMiddleware(s.ratingsHandler.HandleRecalculate, "recalculate"))
	r.Get("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	r.Get("/rank/{id}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
}

// resultRow is an audit row with its rendered change.
type resultRow struct {
	model.PrixResult
	Change string `json:"change"`
}

func resultRows(rows []model.PrixResult) []resultRow {
	out := make([]resultRow, len(rows))
	for i, r := range rows {
		out[i] = resultRow{PrixResult: r, Change: r.Change()}
	}
	return out
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a domain error to its status and code.
func writeFailure(w http.ResponseWriter, err error) {
	var missing *rating.MissingRatingError
	switch {
	case errors.As(err, &missing):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "unregistered_player",
			Message: service.UnregisteredMessage,
		})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrPlayerExists), errors.Is(err, repository.ErrPrixExists):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidPlayer),
		errors.Is(err, service.ErrInvalidSubmission),
		errors.Is(err, rating.ErrInvalidInput),
		errors.Is(err, repository.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
