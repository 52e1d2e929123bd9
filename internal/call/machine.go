package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/voicelab/internal/domain"
	"github.com/google/uuid"
)

// ErrNoClient is returned when a call action runs before a real-time client is attached.
var ErrNoClient = errors.New("real-time client not initialized")

// serverMessage is the envelope of a custom message pushed by the agent.
type serverMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Machine is the call state of one browser tab. Transitions are driven by the
// attached client's transport events; the machine itself only originates
// StartCall, EndCall, ToggleMic and ResetChallengeState.
type Machine struct {
	mu     sync.Mutex
	state  domain.CallSession
	client Client
	unsubs []func()

	// Watchers run with no locks held and may be delivered out of order
	// under concurrent updates; call Snapshot for the latest state.
	watchMu     sync.Mutex
	watchers    map[int]func(domain.CallSession)
	nextWatcher int

	newCallID func() string
	logger    *slog.Logger
}

// NewMachine returns an idle machine with no client attached.
func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		state:     domain.NewCallSession(),
		watchers:  make(map[int]func(domain.CallSession)),
		newCallID: uuid.NewString,
		logger:    logger,
	}
}

// Attach binds c as the machine's real-time client, replacing any previous one.
func (m *Machine) Attach(c Client) {
	m.mu.Lock()
	m.unsubscribeLocked()
	m.client = c
	m.unsubs = []func(){
		c.OnTransportState(m.handleTransportState),
		c.Subscribe(EventServerMessage, m.handleServerMessage),
	}
	m.mu.Unlock()
	m.logger.Debug("Real-time client attached")
}

// Detach unbinds c if it is the current client. The call is treated as disconnected.
func (m *Machine) Detach(c Client) {
	m.mu.Lock()
	if m.client != c {
		m.mu.Unlock()
		return
	}
	m.unsubscribeLocked()
	m.client = nil
	m.mu.Unlock()

	m.logger.Debug("Real-time client detached")
	m.handleTransportState(TransportDisconnected)
}

func (m *Machine) unsubscribeLocked() {
	for _, unsub := range m.unsubs {
		if unsub != nil {
			unsub()
		}
	}
	m.unsubs = nil
}

// StartCall clears any previous challenge signal and asks the client to connect.
func (m *Machine) StartCall(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	if client == nil {
		m.state.Status = domain.CallError
		m.state.Error = ErrNoClient.Error()
		m.unlockAndNotify()
		m.logger.Error("Cannot start call", "error", ErrNoClient)
		return ErrNoClient
	}
	m.state.ChallengeCompleted = false
	m.state.ChallengeData = nil
	m.state.Error = ""
	m.state.CallID = m.newCallID()
	callID := m.state.CallID
	m.unlockAndNotify()

	m.logger.Info("Starting call", "call_id", callID)
	if err := client.Connect(ctx); err != nil {
		m.fail(err)
		m.logger.Error("Failed to connect call", "call_id", callID, "error", err)
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// EndCall asks the client to disconnect.
func (m *Machine) EndCall(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	callID := m.state.CallID
	m.mu.Unlock()

	if client == nil {
		m.fail(ErrNoClient)
		return ErrNoClient
	}

	m.logger.Info("Ending call", "call_id", callID)
	if err := client.Disconnect(ctx); err != nil {
		m.fail(err)
		m.logger.Error("Failed to disconnect call", "call_id", callID, "error", err)
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// ToggleMic flips the local microphone flag. The device itself is not touched.
func (m *Machine) ToggleMic() {
	m.mu.Lock()
	m.state.IsMicEnabled = !m.state.IsMicEnabled
	m.unlockAndNotify()
}

// ResetChallengeState clears the challenge signal without touching the transport status.
func (m *Machine) ResetChallengeState() {
	m.mu.Lock()
	m.state.ChallengeCompleted = false
	m.state.ChallengeData = nil
	m.unlockAndNotify()
}

// Snapshot returns a copy of the current call state.
func (m *Machine) Snapshot() domain.CallSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// HasClient reports whether a real-time client is attached.
func (m *Machine) HasClient() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil
}

// Watch registers fn to receive a snapshot after every change and returns a
// function that removes it.
func (m *Machine) Watch(fn func(domain.CallSession)) (cancel func()) {
	m.watchMu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = fn
	m.watchMu.Unlock()

	return func() {
		m.watchMu.Lock()
		delete(m.watchers, id)
		m.watchMu.Unlock()
	}
}

func (m *Machine) handleTransportState(ts TransportState) {
	status, active, ok := MapTransportState(ts)
	if !ok {
		m.logger.Warn("Ignoring unknown transport state", "state", string(ts))
		return
	}

	m.mu.Lock()
	m.state.TransportState = string(ts)
	m.state.Status = status
	m.state.IsActive = active
	switch ts {
	case TransportConnecting, TransportConnected, TransportReady:
		m.state.Error = ""
	}
	callID := m.state.CallID
	m.unlockAndNotify()

	m.logger.Debug("Transport state changed", "call_id", callID, "state", string(ts), "status", string(status))
}

func (m *Machine) handleServerMessage(data json.RawMessage) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Warn("Ignoring malformed server message", "error", err)
		return
	}
	if msg.Type != MessageChallengeCompleted {
		return
	}

	var payload domain.ChallengeData
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		m.logger.Warn("Ignoring challenge completion with malformed payload", "error", err)
		return
	}

	m.mu.Lock()
	if m.state.ChallengeCompleted {
		callID := m.state.CallID
		m.mu.Unlock()
		m.logger.Debug("Challenge completion already latched for this call", "call_id", callID)
		return
	}
	m.state.ChallengeCompleted = true
	m.state.ChallengeData = &payload
	callID := m.state.CallID
	m.unlockAndNotify()

	m.logger.Info("Challenge completed",
		"call_id", callID,
		"level", int(payload.Level),
		"tool", payload.Tool,
		"trace_url", payload.TraceURL,
	)
}

func (m *Machine) fail(err error) {
	m.mu.Lock()
	m.state.Status = domain.CallError
	m.state.Error = err.Error()
	m.unlockAndNotify()
}

func (m *Machine) snapshotLocked() domain.CallSession {
	snap := m.state
	if m.state.ChallengeData != nil {
		data := *m.state.ChallengeData
		snap.ChallengeData = &data
	}
	return snap
}

// unlockAndNotify releases m.mu and delivers the new snapshot to watchers.
// Must be called with m.mu held.
func (m *Machine) unlockAndNotify() {
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.watchMu.Lock()
	fns := make([]func(domain.CallSession), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.watchMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
