// Package feedback delivers spoken or displayed announcements to the user.
package feedback

import "go.uber.org/zap"

// Sink dispatches an announcement. Announce reports whether the text was
// handed to a delivery mechanism; it never panics and never blocks until the
// announcement finishes.
type Sink interface {
	Announce(text string) bool
}

// Nop is the sink used when no delivery mechanism exists.
type Nop struct{}

// Announce always reports false.
func (Nop) Announce(string) bool { return false }

// FuncSink adapts a function to the Sink interface.
type FuncSink func(text string) bool

// Announce calls f. A nil FuncSink reports false.
func (f FuncSink) Announce(text string) bool {
	if f == nil {
		return false
	}
	return f(text)
}

// Tee sends every announcement to all of its sinks.
type Tee []Sink

// Announce reports true if at least one sink accepted the text.
func (t Tee) Announce(text string) bool {
	ok := false
	for _, s := range t {
		if s == nil {
			continue
		}
		if s.Announce(text) {
			ok = true
		}
	}
	return ok
}

// LogSink writes announcements to a logger. A log line does not reach the
// user, so it never counts as a delivery.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink. A nil logger discards output.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Announce logs the text and reports false.
func (s *LogSink) Announce(text string) bool {
	s.logger.Info("announce", zap.String("text", text))
	return false
}
