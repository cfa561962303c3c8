// Package tray provides a system tray interface for formcoach.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	exercises  []string
	onToggle   func(enabled bool)
	onExercise func(name string)
	onEnd      func()
	onOpen     func()
	onQuit     func()
	enabled    bool
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a new Tray offering the given exercises, with coaching enabled.
func New(exercises []string) *Tray {
	return &Tray{
		exercises: exercises,
		enabled:   true,
	}
}

// OnToggle sets the callback function to be called when coaching is paused or resumed.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnExercise sets the callback function to be called when an exercise is picked.
func (t *Tray) OnExercise(fn func(name string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExercise = fn
}

// OnEnd sets the callback function to be called when the session is ended.
func (t *Tray) OnEnd(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnd = fn
}

// OnOpen sets the callback function to be called when the open menu item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("FormCoach")
	systray.SetTooltip("FormCoach exercise feedback")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume coaching")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem(StatusTitle("", 0), "Current exercise")
	t.menuStatus.Disable()
	t.mu.Unlock()

	menuExercise := systray.AddMenuItem("Exercise", "Choose an exercise")
	for _, name := range t.exercises {
		item := menuExercise.AddSubMenuItem(name, "Start a "+name+" session")
		go func(name string) {
			for range item.ClickedCh {
				t.handleExercise(name)
			}
		}(name)
	}
	menuEnd := systray.AddMenuItem("End Session", "Finish the current session")
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open FormCoach...", "Open the coach in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit FormCoach")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuEnd.ClickedCh:
				t.handleEnd()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Coaching"
	}
	return "○ Paused"
}

// StatusTitle formats the status line shown in the menu.
func StatusTitle(exercise string, reps int) string {
	if exercise == "" {
		return "No exercise selected"
	}
	return fmt.Sprintf("%s · Reps: %d", exercise, reps)
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleExercise(name string) {
	t.mu.RLock()
	callback := t.onExercise
	t.mu.RUnlock()

	if callback != nil {
		callback(name)
	}
}

func (t *Tray) handleEnd() {
	t.mu.RLock()
	callback := t.onEnd
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetStatus updates the exercise and rep count shown in the menu.
func (t *Tray) SetStatus(exercise string, reps int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuStatus != nil {
		t.menuStatus.SetTitle(StatusTitle(exercise, reps))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}
