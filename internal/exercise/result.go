package exercise

import "fmt"

// Metric names reported in Result.Metrics.
const (
	MetricDepth      = "depth"
	MetricKneeAngle  = "kneeAngle"
	MetricElbowAngle = "elbowAngle"
)

// Result is the verdict for a single frame.
type Result struct {
	IsCorrect bool               `json:"isCorrect"`
	Feedback  string             `json:"feedback"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// Depth returns the depth metric if the exercise reports one.
func (r Result) Depth() (float64, bool) {
	d, ok := r.Metrics[MetricDepth]
	return d, ok
}

// Unknown is the placeholder result for an exercise without a classifier.
func Unknown(name string) Result {
	return Result{Feedback: fmt.Sprintf("Analyzing %s pose...", name)}
}
