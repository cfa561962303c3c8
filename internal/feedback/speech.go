package feedback

import (
	"context"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// DefaultSpeechCommands are the text-to-speech programs tried in order when no
// command is configured.
var DefaultSpeechCommands = []string{"say", "espeak-ng", "espeak", "spd-say"}

var lookPath = exec.LookPath

// SpeechSink speaks announcements through an external text-to-speech program.
// At most one utterance runs at a time: a new announcement interrupts the one
// in progress.
type SpeechSink struct {
	path   string
	args   []string
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSpeechSink resolves command on PATH, or the first available of
// DefaultSpeechCommands when command is empty. The text is appended to args.
// If nothing can be found the sink is still usable and every Announce
// reports false.
func NewSpeechSink(command string, args []string, logger *zap.Logger) *SpeechSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SpeechSink{args: args, logger: logger}

	candidates := DefaultSpeechCommands
	if command != "" {
		candidates = []string{command}
	}
	for _, c := range candidates {
		if p, err := lookPath(c); err == nil {
			s.path = p
			break
		}
	}
	if s.path == "" {
		logger.Warn("no text-to-speech command available, announcements will not be spoken",
			zap.Strings("tried", candidates))
	}
	return s
}

// Available reports whether a speech program was found.
func (s *SpeechSink) Available() bool {
	return s.path != ""
}

// Announce interrupts any utterance in progress and starts speaking text.
func (s *SpeechSink) Announce(text string) bool {
	if s.path == "" || text == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	args := append(append([]string(nil), s.args...), text)
	cmd := exec.CommandContext(ctx, s.path, args...)
	if err := cmd.Start(); err != nil {
		cancel()
		s.logger.Warn("speech dispatch failed", zap.String("text", text), zap.Error(err))
		return false
	}

	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go func() {
		defer close(done)
		defer cancel()
		_ = cmd.Wait()
	}()
	return true
}

// Speaking reports whether an utterance is still running.
func (s *SpeechSink) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Close stops any utterance in progress.
func (s *SpeechSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *SpeechSink) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}
