// Package navigation tracks which screen and level a browser tab is showing.
//
// State performs no validation: screens decide which levels may be entered.
package navigation

import (
	"sync"

	"github.com/ashureev/voicelab/internal/domain"
)

// State is the in-memory navigation position of one tab.
type State struct {
	mu    sync.RWMutex
	state domain.NavigationState
}

// New returns navigation on the welcome screen at level 0.
func New() *State {
	return &State{state: domain.NavigationState{Screen: domain.ScreenWelcome, LevelID: 0}}
}

// SetScreen switches the current screen.
func (s *State) SetScreen(screen domain.Screen) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Screen = screen
}

// SetCurrentLevel switches the current level.
func (s *State) SetCurrentLevel(id domain.LevelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LevelID = id
}

// Screen returns the current screen.
func (s *State) Screen() domain.Screen {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Screen
}

// CurrentLevel returns the current level id.
func (s *State) CurrentLevel() domain.LevelID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LevelID
}

// Snapshot returns a copy of the navigation state.
func (s *State) Snapshot() domain.NavigationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}
