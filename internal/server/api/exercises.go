package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/ayusman/formcoach/internal/exercise"
	"github.com/ayusman/formcoach/internal/pose"
)

// ExerciseHandler serves the exercise catalog and one-off pose analysis.
type ExerciseHandler struct {
	registry exercise.Registry
}

// NewExerciseHandler creates an ExerciseHandler. A nil registry uses the
// default classifiers.
func NewExerciseHandler(r exercise.Registry) *ExerciseHandler {
	if r == nil {
		r = exercise.DefaultRegistry()
	}
	return &ExerciseHandler{registry: r}
}

// Register adds the handler's routes to r.
func (h *ExerciseHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/exercises", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/analyze", h.analyze).Methods(http.MethodPost)
}

type listExercisesResponse struct {
	Categories []exercise.Category `json:"categories"`
}

type analyzeRequest struct {
	Exercise string    `json:"exercise"`
	Pose     pose.Pose `json:"pose"`
}

// list handles GET /api/exercises.
func (h *ExerciseHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listExercisesResponse{Categories: exercise.Catalog(h.registry)})
}

// analyze handles POST /api/analyze. It classifies a single pose without
// touching any session.
func (h *ExerciseHandler) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Exercise) == "" {
		writeError(w, http.StatusBadRequest, "Exercise is required")
		return
	}

	writeJSON(w, http.StatusOK, h.registry.Analyze(req.Pose, req.Exercise))
}
