// Package coach runs exercise sessions: it classifies incoming poses, counts
// repetitions and dispatches feedback for the one session that is active.
package coach

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/formcoach/internal/exercise"
	"github.com/ayusman/formcoach/internal/feedback"
	"github.com/ayusman/formcoach/internal/metrics"
	"github.com/ayusman/formcoach/internal/pose"
	"github.com/ayusman/formcoach/internal/store"
	"github.com/ayusman/formcoach/internal/tracker"
)

// ErrEmptyExercise is returned by StartSession for a blank exercise name.
var ErrEmptyExercise = errors.New("exercise name is required")

// Config holds the collaborators of a Coach. Every field is optional.
type Config struct {
	Tracker  tracker.Config
	Registry exercise.Registry
	Sink     feedback.Sink
	Store    *store.Store
	Metrics  *metrics.Manager
	Logger   *zap.Logger
	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// Listener receives every successfully processed frame.
type Listener func(Update)

// Coach owns the active session. Starting or ending a session advances the
// epoch, which invalidates results still in flight for the old session.
type Coach struct {
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	epoch  uint64
	active *Session

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// New creates a Coach with no active session.
func New(config Config) *Coach {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Registry == nil {
		config.Registry = exercise.DefaultRegistry()
	}
	if config.Sink == nil {
		config.Sink = feedback.Nop{}
	}
	if config.Tracker == (tracker.Config{}) {
		config.Tracker = tracker.DefaultConfig()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Coach{
		config:    config,
		logger:    config.Logger,
		listeners: make(map[int]Listener),
	}
}

// Registry returns the classifiers used by sessions.
func (c *Coach) Registry() exercise.Registry {
	return c.config.Registry
}

// StartSession ends any running session and starts a fresh one for name.
func (c *Coach) StartSession(name string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyExercise
	}
	if kind, ok := exercise.ParseKind(name); ok {
		name = kind.String()
	}

	c.mu.Lock()
	prev := c.active
	c.epoch++
	now := c.config.Now()
	s := NewSession(name, c.epoch, SessionConfig{
		Tracker:  c.config.Tracker,
		Registry: c.config.Registry,
		Sink:     c.config.Sink,
	}, now)
	c.active = s
	c.mu.Unlock()

	if prev != nil {
		c.finish(prev, now)
	}

	if c.config.Store != nil {
		err := c.config.Store.Sessions().Create(&store.WorkoutSession{
			ID:        s.ID(),
			Exercise:  s.Exercise(),
			StartedAt: now.UTC(),
		})
		if err != nil {
			c.logger.Warn("failed to save session start", zap.String("session", s.ID()), zap.Error(err))
		}
	}
	if m := c.config.Metrics; m != nil {
		m.GaugeActiveSessions.Set(1)
	}

	c.logger.Info("session started",
		zap.String("session", s.ID()),
		zap.String("exercise", name),
		zap.Uint64("epoch", s.Epoch()),
		zap.Bool("tracked", c.config.Registry.Has(name)),
	)
	return s, nil
}

// EndSession ends the active session and returns its final snapshot.
func (c *Coach) EndSession() (Snapshot, error) {
	c.mu.Lock()
	s := c.active
	if s == nil {
		c.mu.Unlock()
		return Snapshot{}, ErrNoActiveSession
	}
	c.active = nil
	c.epoch++
	c.mu.Unlock()

	if m := c.config.Metrics; m != nil {
		m.GaugeActiveSessions.Set(0)
	}
	return c.finish(s, c.config.Now()), nil
}

func (c *Coach) finish(s *Session, now time.Time) Snapshot {
	snap := s.End(now)

	if c.config.Store != nil {
		ended := now.UTC()
		err := c.config.Store.Sessions().Finish(&store.WorkoutSession{
			ID:            snap.ID,
			EndedAt:       &ended,
			RepCount:      snap.RepCount,
			MaxDepth:      snap.MaxDepth,
			TotalFrames:   snap.TotalFrames,
			CorrectFrames: snap.CorrectFrames,
		})
		if err != nil {
			c.logger.Warn("failed to save session summary", zap.String("session", snap.ID), zap.Error(err))
		}
	}
	if m := c.config.Metrics; m != nil {
		m.CounterSessionsFinished.WithLabelValues(exerciseLabel(snap.Exercise)).Inc()
	}

	c.logger.Info("session ended",
		zap.String("session", snap.ID),
		zap.String("exercise", snap.Exercise),
		zap.Int("reps", snap.RepCount),
		zap.Int("frames", snap.TotalFrames),
	)
	return snap
}

// Active returns the running session, if any.
func (c *Coach) Active() (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active, c.active != nil
}

// Epoch returns the current epoch. Results must be tagged with the epoch
// current when their inference was dispatched.
func (c *Coach) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Submit processes a pose estimated during epoch.
func (c *Coach) Submit(epoch uint64, p pose.Pose) (Update, error) {
	c.mu.RLock()
	s, current := c.active, c.epoch
	c.mu.RUnlock()

	if epoch != current {
		c.stale(epoch, current)
		return Update{}, ErrStaleResult
	}
	if s == nil {
		return Update{}, ErrNoActiveSession
	}

	u, err := s.Process(epoch, p, c.config.Now())
	if err != nil {
		if errors.Is(err, ErrStaleResult) || errors.Is(err, ErrSessionEnded) {
			c.stale(epoch, current)
		}
		return Update{}, err
	}

	c.record(s, u)
	c.notify(u)
	return u, nil
}

func (c *Coach) stale(epoch, current uint64) {
	if m := c.config.Metrics; m != nil {
		m.CounterStaleResults.Inc()
	}
	c.logger.Debug("discarding stale result", zap.Uint64("epoch", epoch), zap.Uint64("current", current))
}

// otherExerciseLabel groups every exercise without a classifier kind.
const otherExerciseLabel = "other"

// exerciseLabel keeps the metric label set bounded: names come from clients.
func exerciseLabel(name string) string {
	if kind, ok := exercise.ParseKind(name); ok {
		return kind.String()
	}
	return otherExerciseLabel
}

func (c *Coach) record(s *Session, u Update) {
	if m := c.config.Metrics; m != nil {
		m.CounterFramesAnalyzed.WithLabelValues(exerciseLabel(u.Exercise), strconv.FormatBool(u.Result.IsCorrect)).Inc()
		if u.Transition.Rep {
			m.CounterReps.WithLabelValues(exerciseLabel(u.Exercise)).Inc()
			m.HistRepDepth.Observe(u.Transition.RepDepth)
		}
		for _, a := range u.Announcements {
			m.CounterAnnouncements.WithLabelValues(strconv.FormatBool(a.Delivered)).Inc()
		}
	}

	for _, a := range u.Announcements {
		if !a.Delivered {
			c.logger.Debug("announcement not delivered", zap.String("text", a.Text))
		}
	}

	if !u.Transition.Rep {
		return
	}
	c.logger.Info("rep counted",
		zap.String("session", s.ID()),
		zap.Int("rep", u.State.RepCount),
		zap.Float64("depth", u.Transition.RepDepth),
	)
	if c.config.Store != nil {
		err := c.config.Store.Reps().Add(&store.RepEvent{
			SessionID:   s.ID(),
			RepNumber:   u.State.RepCount,
			MaxDepth:    u.Transition.RepDepth,
			CompletedAt: u.At.UTC(),
		})
		if err != nil {
			c.logger.Warn("failed to save rep", zap.String("session", s.ID()), zap.Error(err))
		}
	}
}

// Subscribe registers l for every future Update and returns a function that
// removes it.
func (c *Coach) Subscribe(l Listener) (unsubscribe func()) {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *Coach) notify(u Update) {
	c.listenersMu.RLock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.listenersMu.RUnlock()

	for _, l := range ls {
		l(u)
	}
}

// Close ends the active session, if any.
func (c *Coach) Close() error {
	if _, err := c.EndSession(); err != nil && !errors.Is(err, ErrNoActiveSession) {
		return err
	}
	return nil
}
