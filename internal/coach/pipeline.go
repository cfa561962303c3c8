package coach

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/formcoach/internal/capture"
	"github.com/ayusman/formcoach/internal/detector"
	"github.com/ayusman/formcoach/internal/exercise"
	"github.com/ayusman/formcoach/internal/metrics"
	"github.com/ayusman/formcoach/internal/overlay"
)

// PipelineConfig holds the devices a Pipeline reads from.
type PipelineConfig struct {
	Camera   capture.Camera
	Motion   *capture.MotionDetector
	Gate     *capture.Gate
	Detector detector.Detector
	// Frames receives annotated JPEG frames when set.
	Frames  *overlay.Broadcaster
	Metrics *metrics.Manager
	Logger  *zap.Logger
}

// Pipeline feeds camera frames through pose estimation into the Coach.
//
// Frames are polled at the gate's rate: slowly while the scene is still and
// at full rate once someone moves. Pose estimation runs only while a session
// is active and at most one estimate is in flight; frames arriving meanwhile
// are shown but not analyzed. Each estimate carries the epoch it was started
// in, so an estimate that finishes after its session ended is dropped.
type Pipeline struct {
	config PipelineConfig
	coach  *Coach
	logger *zap.Logger

	mu      sync.Mutex
	enabled bool
	cancel  context.CancelFunc
	done    chan struct{}

	inflight atomic.Bool
	wg       sync.WaitGroup
	last     atomic.Pointer[Update]
}

// NewPipeline creates a pipeline. Camera and Detector are required.
func NewPipeline(c *Coach, config PipelineConfig) *Pipeline {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Gate == nil {
		config.Gate = capture.NewGate(capture.IdleFPS, capture.ActiveFPS, capture.DefaultIdleTimeout)
	}
	return &Pipeline{
		config:  config,
		coach:   c,
		logger:  config.Logger,
		enabled: true,
	}
}

// SetEnabled pauses or resumes frame processing without closing the camera.
func (p *Pipeline) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

// IsEnabled reports whether frames are being processed.
func (p *Pipeline) IsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Running reports whether the frame loop is started.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}

// Last returns the most recent update produced by the pipeline.
func (p *Pipeline) Last() (Update, bool) {
	u := p.last.Load()
	if u == nil {
		return Update{}, false
	}
	return *u, true
}

// Start opens the camera and begins the frame loop. Starting a running
// pipeline does nothing.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return nil
	}
	if err := p.config.Camera.Open(); err != nil {
		return err
	}
	p.config.Camera.SetFPS(p.config.Gate.FPS())

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)

	p.logger.Info("frame pipeline started", zap.Int("fps", p.config.Gate.FPS()))
	return nil
}

// Stop ends the frame loop, waits for any in-flight estimate and closes the
// camera, motion detector and pose detector.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	p.wg.Wait()

	var errs []error
	if err := p.config.Camera.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.config.Motion != nil {
		p.config.Motion.Close()
	}
	if p.config.Detector != nil {
		if err := p.config.Detector.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.Info("frame pipeline stopped")
	return errors.Join(errs...)
}

func (p *Pipeline) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	gate := p.config.Gate
	ticker := time.NewTicker(gate.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !p.IsEnabled() {
			continue
		}

		frame, err := p.config.Camera.ReadFrame()
		if err != nil {
			p.logger.Debug("failed to read frame", zap.Error(err))
			continue
		}

		now := time.Now()
		motion := true
		if p.config.Motion != nil {
			motion, _ = p.config.Motion.Detect(frame)
		}
		if gate.Observe(motion, now) {
			fps := gate.FPS()
			p.config.Camera.SetFPS(fps)
			ticker.Reset(gate.Interval())
			if m := p.config.Metrics; m != nil {
				m.GaugeCaptureFPS.Set(float64(fps))
			}
			p.logger.Debug("capture rate changed", zap.Bool("active", gate.Active()), zap.Int("fps", fps))
		}

		if gate.Active() {
			p.dispatch(ctx, frame)
		}
		p.publish(frame)
		frame.Close()
	}
}

// dispatch starts an estimate for frame unless one is already running.
func (p *Pipeline) dispatch(ctx context.Context, frame *gocv.Mat) {
	if p.config.Detector == nil {
		return
	}
	s, ok := p.coach.Active()
	if !ok {
		return
	}
	if !p.inflight.CompareAndSwap(false, true) {
		return
	}

	img := frame.Clone()
	p.wg.Add(1)
	go p.estimate(ctx, s, img)
}

func (p *Pipeline) estimate(ctx context.Context, s *Session, img gocv.Mat) {
	defer p.wg.Done()
	defer p.inflight.Store(false)
	defer img.Close()

	// Ending the session abandons the request.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.Context(), cancel)
	defer stop()

	start := time.Now()
	est, err := p.config.Detector.Detect(ctx, &img)
	if m := p.config.Metrics; m != nil {
		m.HistInferenceDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if m := p.config.Metrics; m != nil {
			m.CounterInferenceErrors.Inc()
		}
		p.logger.Debug("skipping frame", zap.Error(err))
		return
	}

	u, err := p.coach.Submit(s.Epoch(), est)
	if err != nil {
		if !errors.Is(err, ErrStaleResult) && !errors.Is(err, ErrSessionEnded) {
			p.logger.Debug("failed to submit pose", zap.Error(err))
		}
		return
	}
	p.last.Store(&u)
}

func (p *Pipeline) publish(frame *gocv.Mat) {
	if p.config.Frames == nil {
		return
	}

	if u, ok := p.Last(); ok && p.current(u) {
		overlay.Pose(frame, u.Pose, u.Result.IsCorrect)
		overlay.Panel(frame, StatsFor(u))
	}

	if err := p.config.Frames.PublishMat(frame); err != nil {
		p.logger.Debug("failed to encode frame", zap.Error(err))
	}
}

// current reports whether u belongs to the running session.
func (p *Pipeline) current(u Update) bool {
	s, ok := p.coach.Active()
	return ok && s.Epoch() == u.Epoch
}

// StatsFor converts an update into overlay text.
func StatsFor(u Update) overlay.Stats {
	st := overlay.Stats{
		Exercise: u.Exercise,
		Feedback: u.Result.Feedback,
		RepCount: u.State.RepCount,
		Tracked:  u.Tracked,
		Phase:    u.State.Phase,
	}
	if d, ok := u.Result.Depth(); ok {
		st.Depth = d
	}
	if v, ok := u.Result.Metrics[exercise.MetricKneeAngle]; ok {
		st.AngleLabel, st.Angle = "Knee angle", v
	} else if v, ok := u.Result.Metrics[exercise.MetricElbowAngle]; ok {
		st.AngleLabel, st.Angle = "Elbow angle", v
	}
	return st
}
