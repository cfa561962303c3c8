// Package detector provides pose estimators that turn camera frames into
// keypoints.
package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/formcoach/internal/pose"
)

// ErrInferenceUnavailable is wrapped by every estimator failure. Callers
// treat it as "no usable keypoints this frame" and keep going.
var ErrInferenceUnavailable = errors.New("pose inference unavailable")

// Detector defines the interface for pose estimation implementations.
type Detector interface {
	// Detect estimates the pose in a video frame. A frame without a person
	// yields an empty Pose and no error.
	Detect(ctx context.Context, frame *gocv.Mat) (pose.Pose, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Backend names accepted by New.
const (
	BackendMock       = "mock"
	BackendSubprocess = "subprocess"
	BackendRemote     = "remote"
)

// Config holds configuration options for pose estimation.
type Config struct {
	// Backend selects the implementation (default: subprocess).
	Backend string

	// ScriptPath is the pose service script run by the subprocess backend.
	// Empty means search the usual locations.
	ScriptPath string

	// PythonPath is the interpreter for the script. Empty prefers a local
	// virtualenv, then python3.
	PythonPath string

	// IdleTimeout stops the subprocess after this long without frames.
	IdleTimeout time.Duration

	// RemoteURL is the base URL of the HTTP pose service.
	RemoteURL string

	// Timeout bounds a single remote request.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts for a failed remote request.
	MaxRetries int

	// RetryDelay is multiplied by the attempt number between retries.
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendSubprocess,
		IdleTimeout: 30 * time.Second,
		Timeout:     5 * time.Second,
		MaxRetries:  2,
		RetryDelay:  100 * time.Millisecond,
	}
}

// New creates the detector selected by cfg.Backend.
func New(cfg Config, logger *zap.Logger) (Detector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case BackendMock:
		m := NewMockDetector()
		m.SetPose(pose.StandingPose())
		return m, nil
	case BackendSubprocess, "":
		return NewSubprocessDetector(cfg, logger)
	case BackendRemote:
		d, err := NewRemoteDetector(cfg, logger)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
		defer cancel()
		// The service may still be loading its model; Detect retries per frame.
		if err := d.HealthCheck(ctx); err != nil {
			logger.Warn("pose service not healthy", zap.String("url", d.baseURL), zap.Error(err))
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.Backend)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInferenceUnavailable, op, err)
}

// wireKeypoint is the keypoint encoding used by the pose services.
type wireKeypoint struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

type wireResponse struct {
	Keypoints []wireKeypoint `json:"keypoints"`
	Score     float64        `json:"score"`
	Error     string         `json:"error,omitempty"`
}

// toPose converts a service response, dropping names outside the model's
// part set and duplicate parts.
func (r wireResponse) toPose() pose.Pose {
	p := pose.Pose{Score: r.Score}
	seen := make(map[pose.Part]bool, len(r.Keypoints))
	for _, kp := range r.Keypoints {
		part, ok := pose.ParsePart(kp.Name)
		if !ok || seen[part] {
			continue
		}
		seen[part] = true
		p.Keypoints = append(p.Keypoints, pose.Keypoint{
			Part:     part,
			Position: pose.Point{X: kp.X, Y: kp.Y},
			Score:    kp.Confidence,
		})
	}
	return p
}

func encodeFrame(frame *gocv.Mat) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close frees.
	return append([]byte(nil), buf.GetBytes()...), nil
}
