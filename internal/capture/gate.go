package capture

import "time"

// Gate timing defaults.
const (
	// IdleFPS is the frame rate when nobody is moving in front of the camera.
	IdleFPS = 5
	// ActiveFPS is the frame rate while a person is exercising.
	ActiveFPS = 15
	// DefaultIdleTimeout is how long without motion before dropping to idle.
	DefaultIdleTimeout = 2 * time.Second
)

// Gate tracks whether the scene is active. Pose estimation only runs on
// active frames; idle frames are polled at a lower rate.
//
// Gate is not safe for concurrent use; it belongs to one frame loop.
type Gate struct {
	idleFPS     int
	activeFPS   int
	idleTimeout time.Duration

	active     bool
	lastMotion time.Time
}

// NewGate creates a gate. Non-positive arguments take the package defaults.
func NewGate(idleFPS, activeFPS int, idleTimeout time.Duration) *Gate {
	if idleFPS <= 0 {
		idleFPS = IdleFPS
	}
	if activeFPS <= 0 {
		activeFPS = ActiveFPS
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Gate{idleFPS: idleFPS, activeFPS: activeFPS, idleTimeout: idleTimeout}
}

// Observe records a motion sample taken at now and reports whether the gate
// switched between idle and active.
func (g *Gate) Observe(motion bool, now time.Time) bool {
	if motion {
		g.lastMotion = now
		if !g.active {
			g.active = true
			return true
		}
		return false
	}
	if g.active && now.Sub(g.lastMotion) > g.idleTimeout {
		g.active = false
		return true
	}
	return false
}

// Active reports whether frames should be analyzed.
func (g *Gate) Active() bool { return g.active }

// FPS returns the frame rate for the current mode.
func (g *Gate) FPS() int {
	if g.active {
		return g.activeFPS
	}
	return g.idleFPS
}

// Interval returns the frame period for the current mode.
func (g *Gate) Interval() time.Duration {
	return time.Second / time.Duration(g.FPS())
}

// Force puts the gate into active mode as if motion had just been seen.
func (g *Gate) Force(now time.Time) {
	g.active = true
	g.lastMotion = now
}
