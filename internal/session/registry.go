// Package session keeps the per-tab challenge state of every connected browser.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/voicelab/internal/call"
	"github.com/ashureev/voicelab/internal/levels"
	"github.com/ashureev/voicelab/internal/navigation"
	"github.com/ashureev/voicelab/internal/progress"
	"github.com/ashureev/voicelab/internal/screen"
	"github.com/ashureev/voicelab/internal/store"
	"github.com/coder/websocket"
)

// Tab is the state behind one browser tab. Progress is shared by every tab of
// the same user; navigation and call state are not.
type Tab struct {
	UserID     string
	SessionID  string
	Progress   *progress.Tracker
	Navigation *navigation.State
	Call       *call.Machine
	Screen     *screen.Controller

	// guarded by Registry.mu
	lastSeen time.Time
	conn     *websocket.Conn
	relay    *call.RelayClient
}

// Registry maps (user, session) pairs to tabs.
type Registry struct {
	catalog *levels.Catalog
	repo    store.Repository
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	trackers map[string]*trackerEntry
	tabs     map[string]map[string]*Tab
}

type trackerEntry struct {
	tracker  *progress.Tracker
	lastSeen time.Time
}

// NewRegistry creates an empty registry. A nil repo keeps progress in memory.
func NewRegistry(catalog *levels.Catalog, repo store.Repository, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		catalog:  catalog,
		repo:     repo,
		logger:   logger,
		now:      time.Now,
		trackers: make(map[string]*trackerEntry),
		tabs:     make(map[string]map[string]*Tab),
	}
}

// Get returns the tab for userID/sessionID, creating it on first use.
func (r *Registry) Get(ctx context.Context, userID, sessionID string) *Tab {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessions, ok := r.tabs[userID]; ok {
		if tab, ok := sessions[sessionID]; ok {
			tab.lastSeen = r.now()
			return tab
		}
	}

	tracker := r.trackerLocked(ctx, userID)
	nav := navigation.New()
	machine := call.NewMachine(r.logger.With("user_id", userID, "session_id", sessionID))
	tab := &Tab{
		UserID:     userID,
		SessionID:  sessionID,
		Progress:   tracker,
		Navigation: nav,
		Call:       machine,
		Screen:     screen.NewController(r.catalog, tracker, nav, machine, r.logger),
		lastSeen:   r.now(),
	}

	if _, ok := r.tabs[userID]; !ok {
		r.tabs[userID] = make(map[string]*Tab)
	}
	r.tabs[userID][sessionID] = tab
	r.logger.Info("Tab session created", "user_id", userID, "session_id", sessionID)
	return tab
}

// Tracker returns the shared progress tracker of userID.
func (r *Registry) Tracker(ctx context.Context, userID string) *progress.Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackerLocked(ctx, userID)
}

func (r *Registry) trackerLocked(ctx context.Context, userID string) *progress.Tracker {
	if entry, ok := r.trackers[userID]; ok {
		entry.lastSeen = r.now()
		return entry.tracker
	}
	var storage progress.Storage
	if r.repo != nil {
		storage = progress.NewRepositoryStorage(r.repo, userID)
	} else {
		storage = progress.NewMemoryStorage(nil)
	}
	t := progress.NewTracker(ctx, storage, r.catalog.Last(), r.logger.With("user_id", userID))
	r.trackers[userID] = &trackerEntry{tracker: t, lastSeen: r.now()}
	return t
}

// ResetProgress wipes userID's progress and sends every open tab of that
// user back to the welcome screen.
func (r *Registry) ResetProgress(ctx context.Context, userID string) *progress.Tracker {
	r.mu.Lock()
	tracker := r.trackerLocked(ctx, userID)
	tabs := make([]*Tab, 0, len(r.tabs[userID]))
	for _, tab := range r.tabs[userID] {
		tabs = append(tabs, tab)
	}
	r.mu.Unlock()

	tracker.Reset(ctx)
	for _, tab := range tabs {
		tab.Screen.Restart()
	}
	r.logger.Info("Progress reset", "user_id", userID, "tabs", len(tabs))
	return tracker
}

// BindRelay attaches relay as the tab's real-time client. An existing relay
// connection for the same tab is closed.
func (r *Registry) BindRelay(tab *Tab, conn *websocket.Conn, relay *call.RelayClient) {
	r.mu.Lock()
	previous := tab.conn
	tab.conn = conn
	tab.relay = relay
	tab.lastSeen = r.now()
	r.mu.Unlock()

	if previous != nil && previous != conn {
		_ = previous.Close(websocket.StatusNormalClosure, "session replaced")
	}
	tab.Call.Attach(relay)
	r.logger.Info("Call relay registered", "user_id", tab.UserID, "session_id", tab.SessionID)
}

// UnbindRelay detaches relay if it is still the tab's current one.
func (r *Registry) UnbindRelay(tab *Tab, conn *websocket.Conn, relay *call.RelayClient) {
	r.mu.Lock()
	current := tab.conn == conn
	if current {
		tab.conn = nil
		tab.relay = nil
		tab.lastSeen = r.now()
	}
	r.mu.Unlock()

	tab.Call.Detach(relay)
	if current {
		r.logger.Info("Call relay unregistered", "user_id", tab.UserID, "session_id", tab.SessionID)
	}
}

// Sweep evicts tabs without a live relay that have been idle longer than ttl
// and returns how many were removed. Progress trackers are dropped once their
// user has no tabs left and the tracker itself has been idle longer than ttl.
func (r *Registry) Sweep(ttl time.Duration) int {
	now := r.now()
	var expired []*Tab

	r.mu.Lock()
	for userID, sessions := range r.tabs {
		for sid, tab := range sessions {
			if tab.conn != nil || now.Sub(tab.lastSeen) <= ttl {
				continue
			}
			expired = append(expired, tab)
			delete(sessions, sid)
		}
		if len(sessions) == 0 {
			delete(r.tabs, userID)
		}
	}
	for userID, entry := range r.trackers {
		if _, hasTabs := r.tabs[userID]; hasTabs || now.Sub(entry.lastSeen) <= ttl {
			continue
		}
		delete(r.trackers, userID)
	}
	r.mu.Unlock()

	for _, tab := range expired {
		r.closeTab(tab, "session expired")
	}
	return len(expired)
}

// Trackers returns the number of cached progress trackers.
func (r *Registry) Trackers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}

// Len returns the number of live tabs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, sessions := range r.tabs {
		n += len(sessions)
	}
	return n
}

func (r *Registry) closeTab(tab *Tab, reason string) {
	r.mu.Lock()
	conn, relay := tab.conn, tab.relay
	tab.conn, tab.relay = nil, nil
	r.mu.Unlock()

	if relay != nil {
		tab.Call.Detach(relay)
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, reason)
	}
	tab.Screen.Close()
	r.logger.Info("Tab session closed", "user_id", tab.UserID, "session_id", tab.SessionID, "reason", reason)
}
