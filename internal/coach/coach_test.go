package coach

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ayusman/formcoach/internal/metrics"
	"github.com/ayusman/formcoach/internal/pose"
	"github.com/ayusman/formcoach/internal/store"
)

func newTestCoach(t *testing.T, sink *recordingSink) (*Coach, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	c := New(Config{
		Registry: depthRegistry(),
		Sink:     sink,
		Now:      clock.Now,
	})
	return c, clock
}

func TestCoach_StartSession(t *testing.T) {
	c, _ := newTestCoach(t, &recordingSink{})

	_, ok := c.Active()
	assert.False(t, ok)
	assert.Zero(t, c.Epoch())

	s, err := c.StartSession("  squat ")
	require.NoError(t, err)
	assert.Equal(t, "Squat", s.Exercise(), "known names are canonicalised")
	assert.Equal(t, uint64(1), s.Epoch())
	assert.Equal(t, uint64(1), c.Epoch())

	active, ok := c.Active()
	require.True(t, ok)
	assert.Same(t, s, active)
}

func TestCoach_StartSessionEmptyName(t *testing.T) {
	c, _ := newTestCoach(t, &recordingSink{})
	_, err := c.StartSession("   ")
	assert.ErrorIs(t, err, ErrEmptyExercise)
	assert.Zero(t, c.Epoch())
}

func TestCoach_StartSessionReplacesPrevious(t *testing.T) {
	c, _ := newTestCoach(t, &recordingSink{})

	first, err := c.StartSession("Squat")
	require.NoError(t, err)
	second, err := c.StartSession("Downward Dog")
	require.NoError(t, err)

	assert.True(t, first.Ended())
	assert.False(t, second.Ended())
	assert.Equal(t, uint64(2), second.Epoch())
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestCoach_EndSession(t *testing.T) {
	c, clock := newTestCoach(t, &recordingSink{})

	_, err := c.EndSession()
	assert.ErrorIs(t, err, ErrNoActiveSession)

	s, err := c.StartSession("Squat")
	require.NoError(t, err)
	clock.Advance(time.Minute)

	snap, err := c.EndSession()
	require.NoError(t, err)
	assert.Equal(t, s.ID(), snap.ID)
	require.NotNil(t, snap.EndedAt)
	assert.Equal(t, clock.Now(), *snap.EndedAt)

	_, ok := c.Active()
	assert.False(t, ok)
	assert.Equal(t, uint64(2), c.Epoch(), "ending a session invalidates its epoch")
	assert.NoError(t, c.Close(), "closing without a session is fine")
}

func TestCoach_SubmitWithoutSession(t *testing.T) {
	c, _ := newTestCoach(t, &recordingSink{})
	_, err := c.Submit(c.Epoch(), depthPose(10))
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestCoach_SubmitDiscardsStaleResults(t *testing.T) {
	m, _ := metrics.NewTestManagerAndRegistry()
	sink := &recordingSink{}
	c := New(Config{Registry: depthRegistry(), Sink: sink, Metrics: m})

	old, err := c.StartSession("Squat")
	require.NoError(t, err)
	oldEpoch := old.Epoch()

	// An inference dispatched in the first session completes after the
	// user switched exercise.
	current, err := c.StartSession("Squat")
	require.NoError(t, err)

	_, err = c.Submit(oldEpoch, depthPose(80))
	assert.ErrorIs(t, err, ErrStaleResult)
	assert.Zero(t, current.Snapshot().TotalFrames)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterStaleResults))

	_, err = c.Submit(current.Epoch(), depthPose(80))
	assert.NoError(t, err)
	assert.Equal(t, 1, current.Snapshot().TotalFrames)
}

func TestCoach_SubmitAfterEnd(t *testing.T) {
	c, _ := newTestCoach(t, &recordingSink{})
	s, err := c.StartSession("Squat")
	require.NoError(t, err)
	_, err = c.EndSession()
	require.NoError(t, err)

	_, err = c.Submit(s.Epoch(), depthPose(50))
	assert.ErrorIs(t, err, ErrStaleResult)
}

func TestCoach_Subscribe(t *testing.T) {
	c, _ := newTestCoach(t, &recordingSink{})
	s, err := c.StartSession("Squat")
	require.NoError(t, err)

	var mu sync.Mutex
	var got []Update
	unsubscribe := c.Subscribe(func(u Update) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, u)
	})

	_, err = c.Submit(s.Epoch(), depthPose(0))
	require.NoError(t, err)
	_, err = c.Submit(s.Epoch(), depthPose(40))
	require.NoError(t, err)

	unsubscribe()
	_, err = c.Submit(s.Epoch(), depthPose(10))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, s.ID(), got[1].SessionID)
	assert.Equal(t, 40.0, got[1].State.LastDepthSample)
}

func TestCoach_Metrics(t *testing.T) {
	m, _ := metrics.NewTestManagerAndRegistry()
	c := New(Config{Registry: depthRegistry(), Sink: &recordingSink{}, Metrics: m})

	s, err := c.StartSession("Squat")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GaugeActiveSessions))

	for _, d := range []float64{0, 60, 20, 0} {
		_, err := c.Submit(s.Epoch(), depthPose(d))
		require.NoError(t, err)
	}

	assert.Equal(t, 4.0, testutil.ToFloat64(m.CounterFramesAnalyzed.WithLabelValues("Squat", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterReps.WithLabelValues("Squat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterAnnouncements.WithLabelValues("true")))

	_, err = c.EndSession()
	require.NoError(t, err)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.GaugeActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterSessionsFinished.WithLabelValues("Squat")))
}

func TestCoach_PersistsSessions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sqlite test in short mode")
	}

	st, err := store.New(filepath.Join(t.TempDir(), "coach.db"), nil)
	require.NoError(t, err)
	defer st.Close()

	clock := newFakeClock()
	c := New(Config{Registry: depthRegistry(), Store: st, Now: clock.Now})

	s, err := c.StartSession("Squat")
	require.NoError(t, err)

	for _, d := range []float64{0, 70, 20, 0, 55, 15, 0} {
		clock.Advance(500 * time.Millisecond)
		_, err := c.Submit(s.Epoch(), depthPose(d))
		require.NoError(t, err)
	}

	_, err = c.EndSession()
	require.NoError(t, err)

	saved, err := st.Sessions().GetByID(s.ID())
	require.NoError(t, err)
	assert.Equal(t, "Squat", saved.Exercise)
	assert.Equal(t, 2, saved.RepCount)
	assert.Equal(t, 70.0, saved.MaxDepth)
	assert.Equal(t, 7, saved.TotalFrames)
	require.NotNil(t, saved.EndedAt)

	reps, err := st.Reps().ListBySession(s.ID())
	require.NoError(t, err)
	require.Len(t, reps, 2)
	assert.Equal(t, 1, reps[0].RepNumber)
	assert.Equal(t, 70.0, reps[0].MaxDepth)
	assert.Equal(t, 2, reps[1].RepNumber)
	assert.Equal(t, 55.0, reps[1].MaxDepth)
}

func TestCoach_StoreFailureIsNotFatal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sqlite test in short mode")
	}

	st, err := store.New(filepath.Join(t.TempDir(), "closed.db"), nil)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	core, logs := observer.New(zap.WarnLevel)
	c := New(Config{Registry: depthRegistry(), Store: st, Logger: zap.New(core)})

	s, err := c.StartSession("Squat")
	require.NoError(t, err, "a failed save must not stop the workout")

	_, err = c.Submit(s.Epoch(), depthPose(20))
	require.NoError(t, err)

	_, err = c.EndSession()
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("failed to save session start").Len())
	assert.Equal(t, 1, logs.FilterMessage("failed to save session summary").Len())
}

func TestCoach_LogsSessionLifecycle(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := New(Config{Registry: depthRegistry(), Logger: zap.New(core)})

	s, err := c.StartSession("Squat")
	require.NoError(t, err)
	for _, d := range []float64{0, 60, 20} {
		_, err := c.Submit(s.Epoch(), depthPose(d))
		require.NoError(t, err)
	}
	_, err = c.EndSession()
	require.NoError(t, err)

	started := logs.FilterMessage("session started").All()
	require.Len(t, started, 1)
	assert.Equal(t, "Squat", started[0].ContextMap()["exercise"])
	assert.Equal(t, 1, logs.FilterMessage("rep counted").Len())
	assert.Equal(t, 1, logs.FilterMessage("session ended").Len())
}

func TestCoach_RealPoseFlow(t *testing.T) {
	sink := &recordingSink{}
	c := New(Config{Sink: sink})
	s, err := c.StartSession("Squat")
	require.NoError(t, err)

	for _, p := range []pose.Pose{pose.StandingPose(), pose.SquatPose(), pose.StandingPose()} {
		_, err := c.Submit(s.Epoch(), p)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.Snapshot().RepCount)
	assert.Equal(t, 1, sink.Count(GoodRepAnnouncement))
}

func TestCoach_MetricsGroupUnknownExercises(t *testing.T) {
	m := metrics.NewTestManager()
	c := New(Config{Sink: &recordingSink{}, Metrics: m})

	for _, name := range []string{"Burpee", "Plank", "jumping jacks #42"} {
		s, err := c.StartSession(name)
		require.NoError(t, err)
		_, err = c.Submit(s.Epoch(), pose.StandingPose())
		require.NoError(t, err)
	}
	_, err := c.EndSession()
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(m.CounterFramesAnalyzed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CounterFramesAnalyzed.WithLabelValues("other", "false")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CounterSessionsFinished))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CounterSessionsFinished.WithLabelValues("other")))
}

func TestExerciseLabel(t *testing.T) {
	assert.Equal(t, "Squat", exerciseLabel("Squat"))
	assert.Equal(t, "Downward Dog", exerciseLabel("downward dog"))
	assert.Equal(t, "other", exerciseLabel("Burpee"))
	assert.Equal(t, "other", exerciseLabel(""))
}
