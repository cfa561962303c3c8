package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	texts []string
	ok    bool
}

func (r *recorder) Announce(text string) bool {
	r.texts = append(r.texts, text)
	return r.ok
}

func TestNop(t *testing.T) {
	assert.False(t, Nop{}.Announce("Good rep"))
}

func TestFuncSink(t *testing.T) {
	var got string
	s := FuncSink(func(text string) bool {
		got = text
		return true
	})
	assert.True(t, s.Announce("Keep knees behind toes"))
	assert.Equal(t, "Keep knees behind toes", got)

	var nilSink FuncSink
	assert.False(t, nilSink.Announce("x"))
}

func TestTee(t *testing.T) {
	failing := &recorder{ok: false}
	working := &recorder{ok: true}

	assert.True(t, Tee{failing, nil, working}.Announce("Good rep"))
	assert.Equal(t, []string{"Good rep"}, failing.texts)
	assert.Equal(t, []string{"Good rep"}, working.texts)

	assert.False(t, Tee{failing}.Announce("again"))
	assert.False(t, Tee{}.Announce("empty"))
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSink(zap.New(core))

	assert.False(t, s.Announce("Try to squat deeper"), "logging is not a delivery")

	entries := logs.FilterMessage("announce").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "Try to squat deeper", entries[0].ContextMap()["text"])
	}

	assert.False(t, NewLogSink(nil).Announce("discarded"))
}

func TestTee_LogSinkDoesNotCountAsDelivered(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logSink := NewLogSink(zap.New(core))

	assert.False(t, Tee{logSink, Nop{}}.Announce("Keep your back straight"))
	assert.True(t, Tee{logSink, FuncSink(func(string) bool { return true })}.Announce("Good rep"))
	assert.Equal(t, 2, logs.FilterMessage("announce").Len())
}
