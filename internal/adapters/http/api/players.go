package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/prix/internal/domain/model"
)

// PlayerDependencies defines the player operations.
type PlayerDependencies interface {
	RegisterPlayer(ctx context.Context, id, nickname string, rating *int) (model.Player, error)
	Player(ctx context.Context, id string) (model.Player, error)
	History(ctx context.Context, playerID string) ([]model.PrixResult, error)
}

// PlayersHandler handles player requests.
type PlayersHandler struct {
	deps PlayerDependencies
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps PlayerDependencies) *PlayersHandler {
	return &PlayersHandler{deps: deps}
}

type createPlayerRequest struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Rating   *int   `json:"rating,omitempty"`
}

// HandleCreate handles POST /players requests.
func (h *PlayersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPlayerRequest
	if err := decode(w, r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	p, err := h.deps.RegisterPlayer(r.Context(), req.ID, req.Nickname, req.Rating)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleGet handles GET /players/{id} requests.
func (h *PlayersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Player(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleHistory handles GET /players/{id}/history requests.
func (h *PlayersHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultRows(rows))
}
