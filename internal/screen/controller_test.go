package screen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ashureev/voicelab/internal/call"
	"github.com/ashureev/voicelab/internal/domain"
	"github.com/ashureev/voicelab/internal/levels"
	"github.com/ashureev/voicelab/internal/navigation"
	"github.com/ashureev/voicelab/internal/progress"
)

// stubClient connects instantly and lets tests push agent events.
type stubClient struct {
	mu       sync.Mutex
	messages []func(json.RawMessage)
	states   []func(call.TransportState)
}

func (s *stubClient) Connect(context.Context) error {
	s.emitState(call.TransportConnecting)
	s.emitState(call.TransportConnected)
	s.emitState(call.TransportReady)
	return nil
}

func (s *stubClient) Disconnect(context.Context) error {
	s.emitState(call.TransportDisconnecting)
	s.emitState(call.TransportDisconnected)
	return nil
}

func (s *stubClient) Subscribe(_ string, fn func(json.RawMessage)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, fn)
	return func() {}
}

func (s *stubClient) OnTransportState(fn func(call.TransportState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, fn)
	return func() {}
}

func (s *stubClient) emitState(ts call.TransportState) {
	s.mu.Lock()
	fns := append([]func(call.TransportState){}, s.states...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ts)
	}
}

func (s *stubClient) complete(level int) {
	raw := json.RawMessage(fmt.Sprintf(`{"type":"challenge_completed","payload":{"level":%d,"tool":"authorize_bank_transfer","weaveTraceUrl":"https://trace"}}`, level))
	s.mu.Lock()
	fns := append([]func(json.RawMessage){}, s.messages...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(raw)
	}
}

type fixture struct {
	ctrl    *Controller
	tracker *progress.Tracker
	nav     *navigation.State
	machine *call.Machine
	client  *stubClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog := levels.Default()
	tracker := progress.NewTracker(context.Background(), progress.NewMemoryStorage(nil), catalog.Last(), nil)
	nav := navigation.New()
	machine := call.NewMachine(nil)
	client := &stubClient{}
	machine.Attach(client)

	ctrl := NewController(catalog, tracker, nav, machine, nil)
	t.Cleanup(ctrl.Close)
	return &fixture{ctrl: ctrl, tracker: tracker, nav: nav, machine: machine, client: client}
}

func TestWelcomeView(t *testing.T) {
	f := newFixture(t)

	v := f.ctrl.View()
	if v.Screen != domain.ScreenWelcome || v.Welcome == nil || v.Level != nil {
		t.Fatalf("expected welcome view, got %+v", v)
	}
	if len(v.Welcome.Levels) != 6 {
		t.Fatalf("expected 6 level cards, got %d", len(v.Welcome.Levels))
	}
	if !v.Welcome.Levels[0].Unlocked || v.Welcome.Levels[1].Unlocked {
		t.Fatalf("only level 0 should start unlocked: %+v", v.Welcome.Levels[:2])
	}
}

func TestBeginShowsLevelZero(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Begin()

	v := f.ctrl.View()
	if v.Screen != domain.ScreenLevel || v.Level == nil {
		t.Fatalf("expected level view, got %+v", v)
	}
	if v.Level.Level.ID != 0 || !v.Level.CanCall || v.Level.CallLabel != labelCallAgent {
		t.Fatalf("unexpected level view %+v", v.Level)
	}
}

func TestSelectLockedLevelRefused(t *testing.T) {
	f := newFixture(t)

	if err := f.ctrl.SelectLevel(3); !errors.Is(err, ErrLevelLocked) {
		t.Fatalf("expected ErrLevelLocked, got %v", err)
	}
	if err := f.ctrl.SelectLevel(42); !errors.Is(err, levels.ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel, got %v", err)
	}
	if f.nav.CurrentLevel() != 0 {
		t.Fatalf("navigation moved to %d", f.nav.CurrentLevel())
	}
}

func TestStartCallOnLockedLevelRefused(t *testing.T) {
	f := newFixture(t)
	f.nav.SetCurrentLevel(2)

	if err := f.ctrl.StartCall(context.Background()); !errors.Is(err, ErrLevelLocked) {
		t.Fatalf("expected ErrLevelLocked, got %v", err)
	}
}

func TestStartCallTwiceRefused(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Begin()

	if err := f.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("StartCall failed: %v", err)
	}
	if err := f.ctrl.StartCall(context.Background()); !errors.Is(err, ErrCallInProgress) {
		t.Fatalf("expected ErrCallInProgress, got %v", err)
	}
}

func TestCompletionCreditsCurrentLevelOnce(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Begin()
	if err := f.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("StartCall failed: %v", err)
	}

	// The payload level is informational; the current level is credited.
	f.client.complete(4)
	f.client.complete(4)

	if !f.tracker.IsCompleted(0) || !f.tracker.IsUnlocked(1) {
		t.Fatalf("expected level 0 completed and 1 unlocked: %+v", f.tracker.Snapshot())
	}
	if f.tracker.IsCompleted(4) {
		t.Fatal("payload level must not be credited")
	}

	v := f.ctrl.View()
	if !v.Level.ShowSuccess || v.Level.TraceURL != "https://trace" || v.Level.NextLabel != labelNextLevel {
		t.Fatalf("expected success panel, got %+v", v.Level)
	}
	if got := len(f.tracker.Snapshot().CompletedLevels()); got != 1 {
		t.Fatalf("expected exactly one completed level, got %d", got)
	}
}

func TestNextLevelHangsUpAndAdvances(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Begin()
	if err := f.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("StartCall failed: %v", err)
	}
	f.client.complete(0)

	if err := f.ctrl.NextLevel(context.Background()); err != nil {
		t.Fatalf("NextLevel failed: %v", err)
	}

	snap := f.machine.Snapshot()
	if snap.IsActive || snap.Status != domain.CallIdle {
		t.Fatalf("expected call hung up, got %+v", snap)
	}
	if snap.ChallengeCompleted {
		t.Fatal("expected challenge state cleared")
	}
	v := f.ctrl.View()
	if v.CurrentLevelID != 1 || v.Level.ShowSuccess || !v.Level.CanCall {
		t.Fatalf("expected fresh level 1 view, got %+v", v.Level)
	}
}

func TestFinalLevelGoesToSuccess(t *testing.T) {
	f := newFixture(t)
	for id := domain.LevelID(0); id < 5; id++ {
		f.tracker.CompleteLevel(context.Background(), id)
	}
	if err := f.ctrl.SelectLevel(5); err != nil {
		t.Fatalf("SelectLevel failed: %v", err)
	}
	if err := f.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("StartCall failed: %v", err)
	}
	f.client.complete(5)

	if v := f.ctrl.View(); v.Level.NextLabel != labelFinish {
		t.Fatalf("expected finish label, got %q", v.Level.NextLabel)
	}
	if err := f.ctrl.NextLevel(context.Background()); err != nil {
		t.Fatalf("NextLevel failed: %v", err)
	}

	v := f.ctrl.View()
	if v.Screen != domain.ScreenSuccess || v.Success == nil {
		t.Fatalf("expected success screen, got %+v", v)
	}
	if len(v.Success.CompletedLevels) != 6 || v.Success.TotalLevels != 6 {
		t.Fatalf("unexpected summary %+v", v.Success)
	}
}

func TestNextLevelRequiresCompletion(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Begin()

	for i := 0; i < 6; i++ {
		if err := f.ctrl.NextLevel(context.Background()); !errors.Is(err, ErrLevelNotCompleted) {
			t.Fatalf("attempt %d: expected ErrLevelNotCompleted, got %v", i, err)
		}
	}
	nav := f.nav.Snapshot()
	if nav.Screen != domain.ScreenLevel || nav.LevelID != 0 {
		t.Fatalf("navigation moved without a completion: %+v", nav)
	}

	// A level beaten earlier may be left without replaying it.
	f.tracker.CompleteLevel(context.Background(), 0)
	if err := f.ctrl.NextLevel(context.Background()); err != nil {
		t.Fatalf("NextLevel after completion failed: %v", err)
	}
	if f.nav.CurrentLevel() != 1 || !f.tracker.IsUnlocked(1) {
		t.Fatalf("expected unlocked level 1, got %d", f.nav.CurrentLevel())
	}
}

func TestRestartReturnsToWelcome(t *testing.T) {
	f := newFixture(t)
	f.tracker.CompleteLevel(context.Background(), 0)
	if err := f.ctrl.SelectLevel(1); err != nil {
		t.Fatalf("SelectLevel failed: %v", err)
	}

	var pushed []View
	f.ctrl.Watch(func(v View) { pushed = append(pushed, v) })
	f.tracker.Reset(context.Background())
	f.ctrl.Restart()

	if len(pushed) != 1 || pushed[0].Screen != domain.ScreenWelcome {
		t.Fatalf("expected one welcome view pushed, got %+v", pushed)
	}

	if f.tracker.IsCompleted(0) || f.tracker.IsUnlocked(1) {
		t.Fatalf("progress not reset: %+v", f.tracker.Snapshot())
	}
	nav := f.nav.Snapshot()
	if nav.Screen != domain.ScreenWelcome || nav.LevelID != 0 {
		t.Fatalf("expected welcome at level 0, got %+v", nav)
	}
}

func TestWatchReceivesViews(t *testing.T) {
	f := newFixture(t)

	var screens []domain.Screen
	cancel := f.ctrl.Watch(func(v View) { screens = append(screens, v.Screen) })
	f.ctrl.Begin()
	f.ctrl.BackToWelcome()
	cancel()
	f.ctrl.Begin()

	if len(screens) != 2 || screens[0] != domain.ScreenLevel || screens[1] != domain.ScreenWelcome {
		t.Fatalf("unexpected watched screens %v", screens)
	}
}
