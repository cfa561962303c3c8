package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MotionConfig tunes frame-difference motion detection.
type MotionConfig struct {
	// Threshold is the percentage of pixels that must change, e.g. 1.0 for 1%.
	Threshold float64
	// BlurSize is the Gaussian kernel applied before differencing. Must be odd.
	BlurSize int
	// PixelDelta is the per-pixel intensity change that counts as a change.
	PixelDelta float32
	// SampleWidth downsizes frames to this width before differencing. Zero
	// keeps the original size.
	SampleWidth int
}

// DefaultMotionConfig returns settings that ignore sensor noise but react to a
// person stepping into view.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		Threshold:   1.0,
		BlurSize:    21,
		PixelDelta:  25,
		SampleWidth: 320,
	}
}

// MotionDetector detects motion between consecutive video frames.
type MotionDetector struct {
	config      MotionConfig
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewMotionDetector creates a MotionDetector. Zero fields of cfg take their
// defaults.
func NewMotionDetector(cfg MotionConfig) *MotionDetector {
	def := DefaultMotionConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.BlurSize <= 0 {
		cfg.BlurSize = def.BlurSize
	}
	if cfg.BlurSize%2 == 0 {
		cfg.BlurSize++
	}
	if cfg.PixelDelta <= 0 {
		cfg.PixelDelta = def.PixelDelta
	}
	return &MotionDetector{
		config:   cfg,
		prevGray: gocv.NewMat(),
	}
}

// Detect compares frame with the previous one and returns whether motion was
// detected along with the percentage of pixels that changed. The first frame
// after creation or Reset only sets the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	sample := gray
	if w := m.config.SampleWidth; w > 0 && gray.Cols() > w {
		small := gocv.NewMat()
		defer small.Close()
		h := gray.Rows() * w / gray.Cols()
		gocv.Resize(gray, &small, image.Point{X: w, Y: h}, 0, 0, gocv.InterpolationArea)
		sample = small
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	k := m.config.BlurSize
	gocv.GaussianBlur(sample, &blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)

	if !m.initialized || blurred.Rows() != m.prevGray.Rows() || blurred.Cols() != m.prevGray.Cols() {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, m.config.PixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&m.prevGray)

	return changed > m.config.Threshold, changed
}

// Reset drops the baseline frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

// Close releases resources used by the motion detector.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

func (m *MotionDetector) releaseLocked() {
	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
}

// SetThreshold sets the percentage of pixels that must change.
// Values less than or equal to 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.config.Threshold = threshold
}
