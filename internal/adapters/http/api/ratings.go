package api

import (
	"context"
	"net/http"
)

// RatingsDependencies defines the recalculation operation.
type RatingsDependencies interface {
	Recalculate(ctx context.Context) (int, error)
}

// RatingsHandler handles rating maintenance requests.
type RatingsHandler struct {
	deps RatingsDependencies
}

// NewRatingsHandler creates a new ratings handler.
func NewRatingsHandler(deps RatingsDependencies) *RatingsHandler {
	return &RatingsHandler{deps: deps}
}

// HandleRecalculate handles POST /ratings/recalculate requests.
func (h *RatingsHandler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Recalculate(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replayResponse{Replayed: n})
}
