package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterFramesAnalyzed   *prometheus.CounterVec
	CounterReps             *prometheus.CounterVec
	CounterAnnouncements    *prometheus.CounterVec
	CounterStaleResults     prometheus.Counter
	CounterInferenceErrors  prometheus.Counter
	CounterSessionsFinished *prometheus.CounterVec

	// gauges
	GaugeActiveSessions prometheus.Gauge
	GaugeCaptureFPS     prometheus.Gauge

	// histograms
	HistInferenceDuration prometheus.Histogram
	HistRepDepth          prometheus.Histogram
}

func NewTestManager() *Manager {
	return NewManager("formcoach", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("formcoach", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterFramesAnalyzed := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frames_analyzed",
		Help:      "The total number of poses classified",
	}, []string{"exercise", "correct"})
	counterReps := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reps",
		Help:      "The total number of completed repetitions",
	}, []string{"exercise"})
	counterAnnouncements := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "announcements",
		Help:      "The total number of feedback announcements by dispatch outcome",
	}, []string{"delivered"})
	counterStaleResults := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "stale_results",
		Help:      "The total number of results discarded because their session was replaced",
	})
	counterInferenceErrors := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "inference_errors",
		Help:      "The total number of frames skipped because pose estimation failed",
	})
	counterSessionsFinished := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sessions_finished",
		Help:      "The total number of ended workout sessions",
	}, []string{"exercise"})

	gaugeActiveSessions := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "active_sessions",
		Help:      "Whether an exercise session is currently running",
	})
	gaugeCaptureFPS := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "capture_fps",
		Help:      "Current camera processing rate chosen by motion gating",
	})

	histInferenceDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets: []float64{
				0.005, 0.01, 0.025, 0.05, 0.075, 0.1,
				0.15, 0.25, 0.5, 1, 2.5, 5,
			},
			Name: "inference_duration_seconds",
			Help: "Duration of a single pose estimation in seconds",
		},
	)
	histRepDepth := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets:   prometheus.LinearBuckets(30, 10, 8),
			Name:      "rep_depth_percent",
			Help:      "Deepest depth reached during each counted repetition",
		},
	)

	return &Manager{
		CounterFramesAnalyzed:   counterFramesAnalyzed,
		CounterReps:             counterReps,
		CounterAnnouncements:    counterAnnouncements,
		CounterStaleResults:     counterStaleResults,
		CounterInferenceErrors:  counterInferenceErrors,
		CounterSessionsFinished: counterSessionsFinished,
		GaugeActiveSessions:     gaugeActiveSessions,
		GaugeCaptureFPS:         gaugeCaptureFPS,
		HistInferenceDuration:   histInferenceDuration,
		HistRepDepth:            histRepDepth,
	}
}
