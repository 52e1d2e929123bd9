// Package screen composes progress, navigation and call state into the three
// challenge screens and the actions a user can take on them.
package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/voicelab/internal/call"
	"github.com/ashureev/voicelab/internal/domain"
	"github.com/ashureev/voicelab/internal/levels"
	"github.com/ashureev/voicelab/internal/navigation"
	"github.com/ashureev/voicelab/internal/progress"
)

var (
	// ErrLevelLocked is returned when an action targets a level that is not unlocked.
	ErrLevelLocked = errors.New("level is locked")
	// ErrCallInProgress is returned when a call is started while one is connecting or live.
	ErrCallInProgress = errors.New("call already in progress")
	// ErrLevelNotCompleted is returned when leaving a level that has not been beaten.
	ErrLevelNotCompleted = errors.New("level not completed")
)

const completionPersistTimeout = 5 * time.Second

// Controller owns the screen flow of one browser tab.
type Controller struct {
	catalog  *levels.Catalog
	progress *progress.Tracker
	nav      *navigation.State
	call     *call.Machine
	logger   *slog.Logger

	mu          sync.Mutex
	showSuccess bool
	// processed is set once the latched completion of processedCallID has
	// been credited to a level.
	processed       bool
	processedCallID string

	watchMu     sync.Mutex
	watchers    map[int]func(View)
	nextWatcher int

	stopCallWatch func()
}

// NewController wires the containers together and starts following call changes.
func NewController(catalog *levels.Catalog, tracker *progress.Tracker, nav *navigation.State, machine *call.Machine, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		catalog:  catalog,
		progress: tracker,
		nav:      nav,
		call:     machine,
		logger:   logger,
		watchers: make(map[int]func(View)),
	}
	c.stopCallWatch = machine.Watch(func(domain.CallSession) { c.onCallChange() })
	return c
}

// Close stops following the call machine.
func (c *Controller) Close() {
	c.stopCallWatch()
}

// Watch registers fn to receive the view after every change.
func (c *Controller) Watch(fn func(View)) (cancel func()) {
	c.watchMu.Lock()
	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = fn
	c.watchMu.Unlock()

	return func() {
		c.watchMu.Lock()
		delete(c.watchers, id)
		c.watchMu.Unlock()
	}
}

// View renders the current screen.
func (c *Controller) View() View {
	c.mu.Lock()
	showSuccess := c.showSuccess
	c.mu.Unlock()

	nav := c.nav.Snapshot()
	v := View{Screen: nav.Screen, CurrentLevelID: nav.LevelID}

	switch nav.Screen {
	case domain.ScreenLevel:
		v.Level = c.levelView(nav.LevelID, showSuccess)
	case domain.ScreenSuccess:
		record := c.progress.Snapshot()
		v.Success = &SuccessView{
			CompletedLevels: record.CompletedLevels(),
			TotalLevels:     c.catalog.Len(),
		}
	default:
		v.Welcome = &WelcomeView{Levels: c.cards(nav.LevelID)}
	}
	return v
}

func (c *Controller) cards(current domain.LevelID) []LevelCard {
	all := c.catalog.All()
	out := make([]LevelCard, 0, len(all))
	for _, lvl := range all {
		out = append(out, c.card(lvl, current))
	}
	return out
}

func (c *Controller) card(lvl domain.Level, current domain.LevelID) LevelCard {
	return LevelCard{
		Level:     lvl,
		Unlocked:  c.progress.IsUnlocked(lvl.ID),
		Completed: c.progress.IsCompleted(lvl.ID),
		Current:   lvl.ID == current,
	}
}

func (c *Controller) levelView(id domain.LevelID, showSuccess bool) *LevelView {
	lvl, err := c.catalog.Get(id)
	if err != nil {
		lvl = domain.Level{ID: id}
	}
	snap := c.call.Snapshot()
	card := c.card(lvl, id)

	v := &LevelView{
		Level:       card,
		Levels:      c.cards(id),
		Call:        snap,
		CanCall:     err == nil && card.Unlocked && snap.Status != domain.CallConnecting && !snap.IsActive,
		CallLabel:   labelCallAgent,
		ShowSuccess: showSuccess,
		NextLabel:   labelNextLevel,
	}
	if snap.Status == domain.CallConnecting {
		v.CallLabel = labelConnecting
	}
	if id >= c.catalog.Last() {
		v.NextLabel = labelFinish
	}
	if showSuccess && snap.ChallengeData != nil {
		v.TraceURL = snap.ChallengeData.TraceURL
	}
	return v
}

// Begin leaves the welcome screen for the level screen.
func (c *Controller) Begin() {
	c.nav.SetScreen(domain.ScreenLevel)
	c.notify()
}

// SelectLevel switches to another unlocked level.
func (c *Controller) SelectLevel(id domain.LevelID) error {
	if !c.catalog.Has(id) {
		return fmt.Errorf("select level %d: %w", id, levels.ErrUnknownLevel)
	}
	if !c.progress.IsUnlocked(id) {
		return fmt.Errorf("select level %d: %w", id, ErrLevelLocked)
	}

	c.mu.Lock()
	c.showSuccess = false
	c.mu.Unlock()
	c.nav.SetCurrentLevel(id)
	c.nav.SetScreen(domain.ScreenLevel)
	c.notify()
	return nil
}

// StartCall places a call for the current level.
func (c *Controller) StartCall(ctx context.Context) error {
	id := c.nav.CurrentLevel()
	if !c.catalog.Has(id) {
		return fmt.Errorf("start call: %w", levels.ErrUnknownLevel)
	}
	if !c.progress.IsUnlocked(id) {
		return fmt.Errorf("start call on level %d: %w", id, ErrLevelLocked)
	}
	if snap := c.call.Snapshot(); snap.Status == domain.CallConnecting || snap.IsActive {
		return ErrCallInProgress
	}

	c.mu.Lock()
	c.showSuccess = false
	c.mu.Unlock()

	c.logger.Info("Starting level call", "level", int(id))
	return c.call.StartCall(ctx)
}

// HangUp ends the current call.
func (c *Controller) HangUp(ctx context.Context) error {
	return c.call.EndCall(ctx)
}

// ToggleMic flips the microphone flag.
func (c *Controller) ToggleMic() {
	c.call.ToggleMic()
}

// NextLevel leaves the success panel: it hangs up a live call, then moves to
// the next level or, after the last one, to the success screen. The current
// level must be completed.
func (c *Controller) NextLevel(ctx context.Context) error {
	current := c.nav.CurrentLevel()
	c.mu.Lock()
	showSuccess := c.showSuccess
	c.mu.Unlock()
	if !showSuccess && !c.progress.IsCompleted(current) {
		return fmt.Errorf("next level from %d: %w", current, ErrLevelNotCompleted)
	}

	if c.call.Snapshot().IsActive {
		if err := c.call.EndCall(ctx); err != nil {
			c.logger.Warn("Failed to hang up before next level", "error", err)
		}
	}
	c.call.ResetChallengeState()

	c.mu.Lock()
	c.showSuccess = false
	c.processed = false
	c.mu.Unlock()

	if current >= c.catalog.Last() {
		c.nav.SetScreen(domain.ScreenSuccess)
	} else {
		c.nav.SetCurrentLevel(current + 1)
	}
	c.notify()
	return nil
}

// BackToWelcome returns to the landing screen.
func (c *Controller) BackToWelcome() {
	c.nav.SetScreen(domain.ScreenWelcome)
	c.notify()
}

// Restart returns the tab to the welcome screen at level 0 after its
// player's progress was reset.
func (c *Controller) Restart() {
	c.mu.Lock()
	c.showSuccess = false
	c.mu.Unlock()
	c.nav.SetCurrentLevel(0)
	c.nav.SetScreen(domain.ScreenWelcome)
	c.notify()
}

// onCallChange credits a latched challenge completion to the current level,
// once per call.
func (c *Controller) onCallChange() {
	snap := c.call.Snapshot()

	c.mu.Lock()
	credit := snap.ChallengeCompleted && snap.ChallengeData != nil &&
		(!c.processed || c.processedCallID != snap.CallID)
	if credit {
		c.processed = true
		c.processedCallID = snap.CallID
		c.showSuccess = true
	}
	c.mu.Unlock()

	if credit {
		id := c.nav.CurrentLevel()
		ctx, cancel := context.WithTimeout(context.Background(), completionPersistTimeout)
		c.progress.CompleteLevel(ctx, id)
		cancel()
		c.logger.Info("Level completed",
			"level", int(id),
			"call_id", snap.CallID,
			"tool", snap.ChallengeData.Tool,
		)
	}
	c.notify()
}

func (c *Controller) notify() {
	c.watchMu.Lock()
	fns := make([]func(View), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.watchMu.Unlock()
	if len(fns) == 0 {
		return
	}

	v := c.View()
	for _, fn := range fns {
		fn(v)
	}
}
