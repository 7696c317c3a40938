package api

import (
	"context"
	"net/http"

	"github.com/okian/matchday/internal/domain/model"
)

// LeaderboardDependencies defines the interface for standings lookups.
type LeaderboardDependencies interface {
	Standings(ctx context.Context, limit int) ([]model.Standing, error)
}

// LeaderboardHandler handles leaderboard requests
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	if maxLimit < 1 {
		maxLimit = 100
	}
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /leaderboard?limit=N requests
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n, ok := intParam(r, "limit", 20)
	if !ok || n > h.maxLimit {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	standings, err := h.deps.Standings(r.Context(), n)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, standings)
}
