package tracker

import "time"

// AllowFeedback reports whether a corrective announcement may be made at now
// and, if so, returns s with the announcement recorded. The first
// announcement of a session is always allowed.
func AllowFeedback(cfg Config, s State, now time.Time) (State, bool) {
	if !s.LastFeedbackAt.IsZero() && now.Sub(s.LastFeedbackAt) < cfg.FeedbackCooldown {
		return s, false
	}
	s.LastFeedbackAt = now
	return s, true
}
