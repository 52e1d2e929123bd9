package screen

import "github.com/ashureev/voicelab/internal/domain"

// LevelCard is a catalog entry decorated with the user's progress.
type LevelCard struct {
	domain.Level
	Unlocked  bool `json:"unlocked"`
	Completed bool `json:"completed"`
	Current   bool `json:"current"`
}

// View is the render model of the current screen. Exactly one of Welcome,
// Level or Success is set, matching Screen.
type View struct {
	Screen         domain.Screen  `json:"screen"`
	CurrentLevelID domain.LevelID `json:"current_level_id"`
	Welcome        *WelcomeView   `json:"welcome,omitempty"`
	Level          *LevelView     `json:"level,omitempty"`
	Success        *SuccessView   `json:"success,omitempty"`
}

// WelcomeView lists the levels on the landing screen.
type WelcomeView struct {
	Levels []LevelCard `json:"levels"`
}

// LevelView drives the level screen and its call controls.
type LevelView struct {
	Level       LevelCard          `json:"level"`
	Levels      []LevelCard        `json:"levels"`
	Call        domain.CallSession `json:"call"`
	CanCall     bool               `json:"can_call"`
	CallLabel   string             `json:"call_label"`
	ShowSuccess bool               `json:"show_success"`
	TraceURL    string             `json:"trace_url,omitempty"`
	NextLabel   string             `json:"next_label"`
}

// SuccessView summarizes a finished challenge.
type SuccessView struct {
	CompletedLevels []domain.LevelID `json:"completed_levels"`
	TotalLevels     int              `json:"total_levels"`
}

const (
	labelCallAgent  = "Call Agent"
	labelConnecting = "Connecting..."
	labelNextLevel  = "Next Level"
	labelFinish     = "Finish Challenge"
)
