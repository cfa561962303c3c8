package coach

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/formcoach/internal/exercise"
	"github.com/ayusman/formcoach/internal/feedback"
	"github.com/ayusman/formcoach/internal/pose"
	"github.com/ayusman/formcoach/internal/tracker"
)

var (
	// ErrStaleResult is returned for a result tagged with an epoch other than
	// the session's. The result is discarded.
	ErrStaleResult = errors.New("stale result from a previous session")
	// ErrSessionEnded is returned when processing a frame for an ended session.
	ErrSessionEnded = errors.New("session ended")
	// ErrNoActiveSession is returned when no exercise has been selected.
	ErrNoActiveSession = errors.New("no active session")
)

// GoodRepAnnouncement is spoken each time a repetition is counted.
const GoodRepAnnouncement = "Good rep"

// Announcement is a single dispatch to the feedback sink.
type Announcement struct {
	Text      string `json:"text"`
	Delivered bool   `json:"delivered"`
}

// Update is everything produced by processing one frame.
type Update struct {
	SessionID     string             `json:"sessionId"`
	Exercise      string             `json:"exercise"`
	Epoch         uint64             `json:"epoch"`
	Result        exercise.Result    `json:"result"`
	Tracked       bool               `json:"tracked"`
	State         tracker.State      `json:"state"`
	Transition    tracker.Transition `json:"transition"`
	Announcements []Announcement     `json:"announcements,omitempty"`
	Status        string             `json:"status"`
	Pose          pose.Pose          `json:"-"`
	At            time.Time          `json:"at"`
}

// Snapshot summarises a session for the API, the tray and storage.
type Snapshot struct {
	ID            string           `json:"id"`
	Exercise      string           `json:"exercise"`
	Epoch         uint64           `json:"epoch"`
	StartedAt     time.Time        `json:"startedAt"`
	EndedAt       *time.Time       `json:"endedAt,omitempty"`
	Phase         tracker.Phase    `json:"phase"`
	RepCount      int              `json:"repCount"`
	MaxDepth      float64          `json:"maxDepth"`
	TotalFrames   int              `json:"totalFrames"`
	CorrectFrames int              `json:"correctFrames"`
	LastResult    *exercise.Result `json:"lastResult,omitempty"`
	Status        string           `json:"status"`
}

// SessionConfig holds the collaborators a session uses.
type SessionConfig struct {
	Tracker  tracker.Config
	Registry exercise.Registry
	Sink     feedback.Sink
}

// Session tracks one exercise selection from start to end. Frames are
// processed one at a time; a Session is safe for concurrent use.
type Session struct {
	id        string
	exercise  string
	epoch     uint64
	startedAt time.Time
	cfg       tracker.Config
	registry  exercise.Registry
	sink      feedback.Sink
	ctx       context.Context
	cancel    context.CancelFunc

	mu            sync.Mutex
	state         tracker.State
	ended         bool
	endedAt       time.Time
	totalFrames   int
	correctFrames int
	maxDepth      float64
	last          *exercise.Result
	lastDepth     float64
	hasDepth      bool
}

// NewSession creates a session with a fresh tracker state for the named
// exercise. Unknown names are accepted and receive the placeholder result.
func NewSession(name string, epoch uint64, cfg SessionConfig, now time.Time) *Session {
	if cfg.Registry == nil {
		cfg.Registry = exercise.DefaultRegistry()
	}
	if cfg.Sink == nil {
		cfg.Sink = feedback.Nop{}
	}
	if cfg.Tracker == (tracker.Config{}) {
		cfg.Tracker = tracker.DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        uuid.New().String(),
		exercise:  name,
		epoch:     epoch,
		startedAt: now,
		cfg:       cfg.Tracker,
		registry:  cfg.Registry,
		sink:      cfg.Sink,
		ctx:       ctx,
		cancel:    cancel,
		state:     tracker.NewState(),
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Exercise() string     { return s.exercise }
func (s *Session) Epoch() uint64        { return s.epoch }
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Context is cancelled when the session ends. Work done on behalf of the
// session should stop with it.
func (s *Session) Context() context.Context { return s.ctx }

// Process classifies p, advances the rep tracker and dispatches any
// announcements. A pose without a single confident keypoint is classified
// but does not move the tracker.
func (s *Session) Process(epoch uint64, p pose.Pose, now time.Time) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return Update{}, ErrSessionEnded
	}
	if epoch != s.epoch {
		return Update{}, ErrStaleResult
	}

	res := s.registry.Analyze(p, s.exercise)
	s.totalFrames++
	if res.IsCorrect {
		s.correctFrames++
	}
	s.last = &res

	u := Update{
		SessionID: s.id,
		Exercise:  s.exercise,
		Epoch:     s.epoch,
		Result:    res,
		Pose:      p,
		At:        now,
	}

	depth, tracked := res.Depth()
	u.Tracked = tracked
	if tracked && !p.Empty() {
		var tr tracker.Transition
		s.state, tr = tracker.Update(s.cfg, s.state, depth)
		u.Transition = tr
		s.lastDepth, s.hasDepth = depth, true
		if tr.Rep {
			s.maxDepth = math.Max(s.maxDepth, tr.RepDepth)
			u.Announcements = append(u.Announcements, s.announce(GoodRepAnnouncement))
		}
	} else {
		u.Transition = tracker.Transition{From: s.state.Phase, To: s.state.Phase}
	}

	if tracked && !res.IsCorrect {
		var allowed bool
		if s.state, allowed = tracker.AllowFeedback(s.cfg, s.state, now); allowed {
			u.Announcements = append(u.Announcements, s.announce(res.Feedback))
		}
	}

	u.State = s.state
	u.Status = s.statusLocked()
	return u, nil
}

func (s *Session) announce(text string) Announcement {
	return Announcement{Text: text, Delivered: s.sink.Announce(text)}
}

// End marks the session finished. Later calls return the same snapshot.
func (s *Session) End(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		s.endedAt = now
		s.cancel()
	}
	return s.snapshotLocked()
}

// Ended reports whether End has been called.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Snapshot returns the current statistics.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:            s.id,
		Exercise:      s.exercise,
		Epoch:         s.epoch,
		StartedAt:     s.startedAt,
		Phase:         s.state.Phase,
		RepCount:      s.state.RepCount,
		MaxDepth:      s.maxDepth,
		TotalFrames:   s.totalFrames,
		CorrectFrames: s.correctFrames,
		Status:        s.statusLocked(),
	}
	if s.ended {
		t := s.endedAt
		snap.EndedAt = &t
	}
	if s.last != nil {
		r := *s.last
		snap.LastResult = &r
	}
	return snap
}

// statusLocked renders the one-line summary shown under the video, e.g.
// "Keep knees behind toes | Reps: 3 | Depth: 62% | Knee angle: 124°".
func (s *Session) statusLocked() string {
	if s.last == nil {
		return fmt.Sprintf("Get ready for %s", s.exercise)
	}
	if !s.hasDepth {
		return s.last.Feedback
	}

	parts := []string{
		s.last.Feedback,
		fmt.Sprintf("Reps: %d", s.state.RepCount),
		fmt.Sprintf("Depth: %d%%", int(math.Round(s.lastDepth))),
	}
	if v, ok := s.last.Metrics[exercise.MetricKneeAngle]; ok {
		parts = append(parts, fmt.Sprintf("Knee angle: %d°", int(math.Round(v))))
	}
	if v, ok := s.last.Metrics[exercise.MetricElbowAngle]; ok {
		parts = append(parts, fmt.Sprintf("Elbow angle: %d°", int(math.Round(v))))
	}
	return strings.Join(parts, " | ")
}
