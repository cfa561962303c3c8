package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ayusman/formcoach/internal/coach"
	"github.com/ayusman/formcoach/internal/pose"
	"github.com/ayusman/formcoach/internal/store"
)

// defaultHistoryLimit caps GET /api/sessions when no limit is given.
const defaultHistoryLimit = 50

// SessionHandler controls the active session and serves workout history.
type SessionHandler struct {
	coach  *coach.Coach
	store  *store.Store
	logger *zap.Logger
}

// NewSessionHandler creates a SessionHandler. History endpoints respond 503
// when st is nil.
func NewSessionHandler(c *coach.Coach, st *store.Store, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{coach: c, store: st, logger: logger}
}

// Register adds the handler's routes to r.
func (h *SessionHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/sessions", h.start).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/active", h.active).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/active/frames", h.frame).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/active/end", h.end).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/api/stats", h.stats).Methods(http.MethodGet)
}

type startSessionRequest struct {
	Exercise string `json:"exercise"`
}

type frameRequest struct {
	Epoch uint64    `json:"epoch"`
	Pose  pose.Pose `json:"pose"`
}

type listSessionsResponse struct {
	Sessions []*store.WorkoutSession `json:"sessions"`
}

type sessionDetailResponse struct {
	Session  *store.WorkoutSession `json:"session"`
	Accuracy float64               `json:"accuracy"`
	Reps     []*store.RepEvent     `json:"reps"`
}

type statsResponse struct {
	Exercises []store.ExerciseTotals `json:"exercises"`
}

// start handles POST /api/sessions.
func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decode(w, r, &req) {
		return
	}

	s, err := h.coach.StartSession(req.Exercise)
	if err != nil {
		if errors.Is(err, coach.ErrEmptyExercise) {
			writeError(w, http.StatusBadRequest, "Exercise is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	writeJSON(w, http.StatusCreated, s.Snapshot())
}

// active handles GET /api/sessions/active.
func (h *SessionHandler) active(w http.ResponseWriter, r *http.Request) {
	s, ok := h.coach.Active()
	if !ok {
		writeError(w, http.StatusNotFound, "No active session")
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// frame handles POST /api/sessions/active/frames: a client that runs its own
// pose model submits one estimate tagged with the session epoch.
func (h *SessionHandler) frame(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.coach.Submit(req.Epoch, req.Pose)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, u)
	case errors.Is(err, coach.ErrNoActiveSession):
		writeError(w, http.StatusNotFound, "No active session")
	case errors.Is(err, coach.ErrStaleResult), errors.Is(err, coach.ErrSessionEnded):
		writeError(w, http.StatusConflict, "Stale result")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to process frame")
	}
}

// end handles POST /api/sessions/active/end.
func (h *SessionHandler) end(w http.ResponseWriter, r *http.Request) {
	snap, err := h.coach.EndSession()
	if err != nil {
		if errors.Is(err, coach.ErrNoActiveSession) {
			writeError(w, http.StatusNotFound, "No active session")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to end session")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *SessionHandler) requireStore(w http.ResponseWriter) bool {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "History is not available")
		return false
	}
	return true
}

// list handles GET /api/sessions?limit=N.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.WorkoutSession{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

// get handles GET /api/sessions/{id}.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	id := mux.Vars(r)["id"]

	session, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("failed to get session", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	reps, err := h.store.Reps().ListBySession(id)
	if err != nil {
		h.logger.Error("failed to list reps", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	if reps == nil {
		reps = []*store.RepEvent{}
	}

	writeJSON(w, http.StatusOK, sessionDetailResponse{
		Session:  session,
		Accuracy: session.Accuracy(),
		Reps:     reps,
	})
}

// delete handles DELETE /api/sessions/{id}.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	id := mux.Vars(r)["id"]

	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stats handles GET /api/stats.
func (h *SessionHandler) stats(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	totals, err := h.store.Sessions().Totals()
	if err != nil {
		h.logger.Error("failed to compute totals", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	if totals == nil {
		totals = []store.ExerciseTotals{}
	}
	writeJSON(w, http.StatusOK, statsResponse{Exercises: totals})
}
