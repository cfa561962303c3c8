// Package tracker counts repetitions from a stream of depth samples.
package tracker

import "time"

// Phase is the movement phase within a repetition.
type Phase string

const (
	Waiting Phase = "waiting"
	Down    Phase = "down"
	Up      Phase = "up"
)

// Config holds the tunable thresholds of the state machine.
type Config struct {
	// Hysteresis is the dead band a sample must move past the previous one
	// before it counts as motion.
	Hysteresis float64
	// RepDepth is the deepest sample a movement must exceed to count as a rep.
	RepDepth float64
	// StandingDepth is the depth below which the user is considered upright.
	StandingDepth float64
	// FeedbackCooldown is the minimum gap between corrective announcements.
	FeedbackCooldown time.Duration
}

// DefaultConfig returns the thresholds used for squats.
func DefaultConfig() Config {
	return Config{
		Hysteresis:       5,
		RepDepth:         30,
		StandingDepth:    10,
		FeedbackCooldown: 3 * time.Second,
	}
}

// State is the per-session tracker state. The zero value is not valid; use
// NewState.
type State struct {
	Phase                Phase     `json:"phase"`
	RepCount             int       `json:"repCount"`
	MaxDepthSinceLastRep float64   `json:"maxDepthSinceLastRep"`
	LastDepthSample      float64   `json:"lastDepthSample"`
	RepInProgress        bool      `json:"repInProgress"`
	LastFeedbackAt       time.Time `json:"lastFeedbackAt"`
}

// NewState returns the state of a freshly started session.
func NewState() State {
	return State{Phase: Waiting}
}

// Transition describes what a single Update changed.
type Transition struct {
	From Phase `json:"from"`
	To   Phase `json:"to"`
	// Rep is set when the sample completed a repetition.
	Rep bool `json:"rep"`
	// RepDepth is the deepest sample of the completed repetition.
	RepDepth float64 `json:"repDepth,omitempty"`
}

// Changed reports whether the phase moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Update advances s by one depth sample and returns the new state.
//
// The deepest sample is recorded before the phase is evaluated, so the sample
// that turns the movement upward is compared against the true bottom of the
// rep. Rising back below StandingDepth settles the tracker in Waiting. The
// recorded depth survives the settle and is cleared only when a rep counts.
func Update(cfg Config, s State, depth float64) (State, Transition) {
	tr := Transition{From: s.Phase}

	if depth > s.MaxDepthSinceLastRep {
		s.MaxDepthSinceLastRep = depth
	}

	switch {
	case depth > s.LastDepthSample+cfg.Hysteresis:
		if s.Phase != Down {
			s.Phase = Down
			s.RepInProgress = true
		}
	case depth < s.LastDepthSample-cfg.Hysteresis && s.RepInProgress:
		if s.Phase != Up {
			s.Phase = Up
			if s.MaxDepthSinceLastRep > cfg.RepDepth {
				tr.Rep = true
				tr.RepDepth = s.MaxDepthSinceLastRep
				s.RepCount++
				s.MaxDepthSinceLastRep = 0
			}
		}
		if depth < cfg.StandingDepth {
			settle(&s)
		}
	case depth < cfg.StandingDepth:
		settle(&s)
	}

	s.LastDepthSample = depth
	tr.To = s.Phase
	return s, tr
}

func settle(s *State) {
	s.Phase = Waiting
	s.RepInProgress = false
}
