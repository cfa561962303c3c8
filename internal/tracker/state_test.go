package tracker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func feed(cfg Config, s State, samples ...float64) (State, []Transition) {
	var trs []Transition
	for _, d := range samples {
		var tr Transition
		s, tr = Update(cfg, s, d)
		trs = append(trs, tr)
	}
	return s, trs
}

func TestNewState(t *testing.T) {
	want := State{Phase: Waiting}
	if diff := cmp.Diff(want, NewState()); diff != "" {
		t.Errorf("NewState() mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_FullSquatCycle(t *testing.T) {
	s, trs := feed(DefaultConfig(), NewState(), 0, 10, 40, 70, 90, 70, 40, 10, 0)

	assert.Equal(t, 1, s.RepCount)
	assert.Equal(t, Waiting, s.Phase)
	assert.False(t, s.RepInProgress)
	assert.Zero(t, s.LastDepthSample)

	reps := 0
	for i, tr := range trs {
		if tr.Rep {
			reps++
			assert.Equal(t, 5, i, "rep should complete on the first rising sample")
			assert.Equal(t, 90.0, tr.RepDepth)
		}
	}
	assert.Equal(t, 1, reps)
}

func TestUpdate_PhaseSequence(t *testing.T) {
	_, trs := feed(DefaultConfig(), NewState(), 0, 10, 40, 70, 90, 70, 40, 10, 0)

	var phases []Phase
	for _, tr := range trs {
		phases = append(phases, tr.To)
	}
	want := []Phase{Waiting, Down, Down, Down, Down, Up, Up, Up, Waiting}
	if diff := cmp.Diff(want, phases); diff != "" {
		t.Errorf("phase sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_ShallowMovementDoesNotCount(t *testing.T) {
	s, _ := feed(DefaultConfig(), NewState(), 0, 5, 10, 15, 10, 5, 0)
	assert.Equal(t, 0, s.RepCount)
	assert.Equal(t, Waiting, s.Phase)
}

func TestUpdate_MultipleReps(t *testing.T) {
	cycle := []float64{0, 10, 40, 70, 90, 70, 40, 10, 0}
	s := NewState()
	for i := 0; i < 3; i++ {
		s, _ = feed(DefaultConfig(), s, cycle...)
	}
	assert.Equal(t, 3, s.RepCount)
}

func TestUpdate_RepCountNeverDecreases(t *testing.T) {
	samples := []float64{0, 50, 0, 20, 80, 79, 12, 60, 3, 0, 100, 0, 45, 44, 46, 2}
	s := NewState()
	prev := 0
	for _, d := range samples {
		s, _ = Update(DefaultConfig(), s, d)
		assert.GreaterOrEqual(t, s.RepCount, prev)
		prev = s.RepCount
	}
}

func TestUpdate_JitterInsideDeadBand(t *testing.T) {
	s := NewState()
	s, _ = Update(DefaultConfig(), s, 50)
	assert.Equal(t, Down, s.Phase)

	// Noise of ±4 around the bottom keeps the phase.
	s, trs := feed(DefaultConfig(), s, 54, 50, 46, 50)
	assert.Equal(t, Down, s.Phase)
	for _, tr := range trs {
		assert.False(t, tr.Changed())
	}
}

func TestUpdate_RiseWithoutDescentIgnored(t *testing.T) {
	s := NewState()
	s.LastDepthSample = 60

	s, tr := Update(DefaultConfig(), s, 40)
	assert.Equal(t, Waiting, s.Phase, "upward motion needs a rep in progress")
	assert.False(t, tr.Rep)
	assert.Equal(t, 40.0, s.LastDepthSample)
}

func TestUpdate_ShallowRepAfterDeepOneDoesNotCount(t *testing.T) {
	s, _ := feed(DefaultConfig(), NewState(), 0, 80, 0)
	assert.Equal(t, 1, s.RepCount)

	s, _ = feed(DefaultConfig(), s, 20, 0)
	assert.Equal(t, 1, s.RepCount)
}

func TestUpdate_CustomThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RepDepth = 60

	s, _ := feed(cfg, NewState(), 0, 50, 0)
	assert.Equal(t, 0, s.RepCount)

	s, _ = feed(cfg, s, 70, 0)
	assert.Equal(t, 1, s.RepCount)
}

func TestUpdate_SettleKeepsDepthUntilRepCounts(t *testing.T) {
	// A slow rise never exceeds the dead band, so no rep is counted before
	// the tracker settles in Waiting.
	s, _ := feed(DefaultConfig(), NewState(), 0, 20, 40, 37, 34, 31, 28, 25, 22, 19, 16, 13, 10, 7)
	assert.Equal(t, Waiting, s.Phase)
	assert.Equal(t, 0, s.RepCount)
	assert.Equal(t, 40.0, s.MaxDepthSinceLastRep)

	s, trs := feed(DefaultConfig(), s, 12, 4)
	assert.Equal(t, 1, s.RepCount)
	assert.True(t, trs[1].Rep)
	assert.Equal(t, 40.0, trs[1].RepDepth)
	assert.Zero(t, s.MaxDepthSinceLastRep)
}
