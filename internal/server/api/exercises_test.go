package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/formcoach/internal/exercise"
	"github.com/ayusman/formcoach/internal/pose"
)

func TestExerciseHandler_List(t *testing.T) {
	r := newRouter(NewExerciseHandler(nil))

	rec := do(t, r, http.MethodGet, "/api/exercises", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp listExercisesResponse
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.Categories)

	tracked := map[string]bool{}
	for _, c := range resp.Categories {
		for _, e := range c.Exercises {
			if e.Tracked {
				tracked[e.Name] = true
			}
		}
	}
	assert.True(t, tracked["Squat"])
	assert.True(t, tracked["Downward Dog"])
	assert.False(t, tracked["Warrior I"])
}

func TestExerciseHandler_Analyze(t *testing.T) {
	r := newRouter(NewExerciseHandler(nil))

	tests := []struct {
		name     string
		body     interface{}
		status   int
		correct  bool
		feedback string
		hasDepth bool
	}{
		{
			name:     "correct squat",
			body:     analyzeRequest{Exercise: "Squat", Pose: pose.SquatPose()},
			status:   http.StatusOK,
			correct:  true,
			feedback: "Good squat form",
			hasDepth: true,
		},
		{
			name:     "downward dog with missing wrist",
			body:     analyzeRequest{Exercise: "Downward Dog", Pose: pose.DownwardDogPose().WithScore(pose.LeftWrist, 0.1)},
			status:   http.StatusOK,
			feedback: "Ensure full body visible to the camera",
		},
		{
			name:     "unknown exercise",
			body:     analyzeRequest{Exercise: "Tree Pose", Pose: pose.StandingPose()},
			status:   http.StatusOK,
			feedback: "Analyzing Tree Pose pose...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, http.MethodPost, "/api/analyze", tt.body)
			require.Equal(t, tt.status, rec.Code)

			var res exercise.Result
			decodeBody(t, rec, &res)
			assert.Equal(t, tt.correct, res.IsCorrect)
			assert.Equal(t, tt.feedback, res.Feedback)
			_, ok := res.Depth()
			assert.Equal(t, tt.hasDepth, ok)
		})
	}
}

func TestExerciseHandler_AnalyzeBadRequests(t *testing.T) {
	r := newRouter(NewExerciseHandler(nil))

	rec := do(t, r, http.MethodPost, "/api/analyze", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/analyze", analyzeRequest{Pose: pose.SquatPose()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "Exercise is required", resp.Error)
}

func TestExerciseHandler_MethodNotAllowed(t *testing.T) {
	r := newRouter(NewExerciseHandler(nil))

	rec := do(t, r, http.MethodGet, "/api/analyze", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, r, http.MethodDelete, "/api/exercises", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
