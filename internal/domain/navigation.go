package domain

// Screen names a top-level view of the game.
type Screen string

const (
	ScreenWelcome Screen = "welcome"
	ScreenLevel   Screen = "level"
	ScreenSuccess Screen = "success"
)

// Valid reports whether s is one of the known screens.
func (s Screen) Valid() bool {
	switch s {
	case ScreenWelcome, ScreenLevel, ScreenSuccess:
		return true
	default:
		return false
	}
}

// NavigationState is the transient per-tab navigation position.
type NavigationState struct {
	Screen  Screen  `json:"current_screen"`
	LevelID LevelID `json:"current_level_id"`
}
