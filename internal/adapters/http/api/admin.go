package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const adminBackfillReason = "admin"

// AdminHandler serves the operator routes.
type AdminHandler struct {
	deps Dependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Dependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// Register attaches the admin routes to r.
func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/queues", h.HandleQueues)
	r.Get("/dead-letters", h.HandleListDeadLetters)
	r.Delete("/dead-letters", h.HandlePurgeDeadLetters)
	r.Delete("/dead-letters/{queue}/{jobID}", h.HandleDeleteDeadLetter)
	r.Post("/dead-letters/{queue}/{jobID}/replay", h.HandleReplayDeadLetter)
	r.Get("/coverage", h.HandleCoverage)
	r.Get("/breakers", h.HandleBreakers)
	r.Post("/breakers/queues/{queue}/resume", h.HandleResumeQueue)
	r.Post("/breakers/queues/{queue}/reset", h.HandleResetQueueBreaker)
	r.Post("/breakers/services/{name}/reset", h.HandleResetServiceBreaker)
	r.Post("/reconcile", h.HandleReconcile)
}

// HandleQueues handles GET /admin/queues.
func (h *AdminHandler) HandleQueues(w http.ResponseWriter, r *http.Request) {
	counts, err := h.deps.QueueCounts(r.Context())
	if err != nil {
		writeError(w, Wrap("api.queues", err))
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// HandleListDeadLetters handles GET /admin/dead-letters?queue=.
func (h *AdminHandler) HandleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters, err := h.deps.DeadLetters(r.Context(), r.URL.Query().Get("queue"))
	if err != nil {
		writeError(w, Wrap("api.dead_letters", err))
		return
	}
	writeJSON(w, http.StatusOK, letters)
}

// HandlePurgeDeadLetters handles DELETE /admin/dead-letters.
func (h *AdminHandler) HandlePurgeDeadLetters(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.PurgeDeadLetters(r.Context())
	if err != nil {
		writeError(w, Wrap("api.purge_dead_letters", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// HandleDeleteDeadLetter handles DELETE /admin/dead-letters/{queue}/{jobID}.
func (h *AdminHandler) HandleDeleteDeadLetter(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteDeadLetter(r.Context(), chi.URLParam(r, "queue"), chi.URLParam(r, "jobID")); err != nil {
		writeError(w, Wrap("api.delete_dead_letter", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReplayDeadLetter handles POST /admin/dead-letters/{queue}/{jobID}/replay.
func (h *AdminHandler) HandleReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	queue, jobID := chi.URLParam(r, "queue"), chi.URLParam(r, "jobID")
	if err := h.deps.ReplayDeadLetter(r.Context(), queue, jobID); err != nil {
		writeError(w, Wrap("api.replay_dead_letter", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"queue": queue, "jobId": jobID})
}

// HandleCoverage handles GET /admin/coverage.
func (h *AdminHandler) HandleCoverage(w http.ResponseWriter, r *http.Request) {
	gaps, err := h.deps.Coverage(r.Context())
	if err != nil {
		writeError(w, Wrap("api.coverage", err))
		return
	}
	writeJSON(w, http.StatusOK, gaps)
}

// HandleBreakers handles GET /admin/breakers.
func (h *AdminHandler) HandleBreakers(w http.ResponseWriter, r *http.Request) {
	b, err := h.deps.Breakers(r.Context())
	if err != nil {
		writeError(w, Wrap("api.breakers", err))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleResumeQueue handles POST /admin/breakers/queues/{queue}/resume.
func (h *AdminHandler) HandleResumeQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.ResumeQueue(r.Context(), chi.URLParam(r, "queue")); err != nil {
		writeError(w, Wrap("api.resume_queue", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResetQueueBreaker handles POST /admin/breakers/queues/{queue}/reset.
func (h *AdminHandler) HandleResetQueueBreaker(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.ResetQueueBreaker(r.Context(), chi.URLParam(r, "queue")); err != nil {
		writeError(w, Wrap("api.reset_queue_breaker", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResetServiceBreaker handles POST /admin/breakers/services/{name}/reset.
func (h *AdminHandler) HandleResetServiceBreaker(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.ResetServiceBreaker(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, Wrap("api.reset_service_breaker", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReconcile handles POST /admin/reconcile?lookback_days=N.
func (h *AdminHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	const op = "api.reconcile"
	days, ok := intParam(r, "lookback_days", 7)
	if !ok {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	id, err := h.deps.RequestBackfill(r.Context(), days, adminBackfillReason)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": id})
}
