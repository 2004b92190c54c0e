package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/prix/internal/app"
	"github.com/okian/prix/internal/domain/model"
)

// PrixDependencies defines the prix operations.
type PrixDependencies interface {
	SubmitPrix(ctx context.Context, sub service.PrixSubmission) (service.SubmitResult, error)
	PrixResults(ctx context.Context, prixID string) ([]model.PrixResult, error)
	DeletePrix(ctx context.Context, id string) (int, error)
}

// PrixHandler handles prix requests.
type PrixHandler struct {
	deps PrixDependencies
}

// NewPrixHandler creates a new prix handler.
func NewPrixHandler(deps PrixDependencies) *PrixHandler {
	return &PrixHandler{deps: deps}
}

type ackResponse struct {
	Status string `json:"status"`
	service.SubmitResult
}

type replayResponse struct {
	PrixID   string `json:"prix_id,omitempty"`
	Replayed int    `json:"replayed"`
}

// HandleSubmit handles POST /prix requests. Accepted prix are rated asynchronously.
func (h *PrixHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub service.PrixSubmission
	if err := decode(w, r, &sub); err != nil {
		writeFailure(w, err)
		return
	}
	res, err := h.deps.SubmitPrix(r.Context(), sub)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", SubmitResult: res})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", SubmitResult: res})
}

// HandleGet handles GET /prix/{id} requests.
func (h *PrixHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.PrixResults(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultRows(rows))
}

// HandleDelete handles DELETE /prix/{id} requests.
func (h *PrixHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.deps.DeletePrix(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replayResponse{PrixID: id, Replayed: n})
}
