// Package call adapts an external real-time voice client into the
// application's call status and relays the agent's challenge signal.
package call

import (
	"context"
	"encoding/json"

	"github.com/ashureev/voicelab/internal/domain"
)

// TransportState is the connection lifecycle state reported by the real-time client.
type TransportState string

const (
	TransportConnecting    TransportState = "connecting"
	TransportConnected     TransportState = "connected"
	TransportReady         TransportState = "ready"
	TransportDisconnecting TransportState = "disconnecting"
	TransportDisconnected  TransportState = "disconnected"
	TransportError         TransportState = "error"
)

// EventServerMessage is the generic channel the agent pushes custom messages on.
const EventServerMessage = "server-message"

// MessageChallengeCompleted is the server message type that advances the game.
const MessageChallengeCompleted = "challenge_completed"

// Client is the capability the machine needs from a real-time client.
// Implementations own the transport; the machine only observes it.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	// Subscribe registers handler for event and returns a function that removes it.
	Subscribe(event string, handler func(data json.RawMessage)) (unsubscribe func())
	// OnTransportState registers fn for transport state changes.
	OnTransportState(fn func(TransportState)) (unsubscribe func())
}

type mappedStatus struct {
	status domain.CallStatus
	active bool
}

var transportStatus = map[TransportState]mappedStatus{
	TransportConnecting:    {domain.CallConnecting, false},
	TransportConnected:     {domain.CallWaitingForAgent, false},
	TransportReady:         {domain.CallConnected, true},
	TransportDisconnecting: {domain.CallDisconnecting, false},
	TransportDisconnected:  {domain.CallIdle, false},
	TransportError:         {domain.CallError, false},
}

// MapTransportState returns the call status and active flag for ts.
// ok is false for states the machine does not know.
func MapTransportState(ts TransportState) (status domain.CallStatus, active bool, ok bool) {
	m, ok := transportStatus[ts]
	if !ok {
		return "", false, false
	}
	return m.status, m.active, true
}
