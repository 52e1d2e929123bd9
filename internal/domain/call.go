package domain

// CallStatus is the application-level status of a voice call.
type CallStatus string

const (
	CallIdle            CallStatus = "idle"
	CallConnecting      CallStatus = "connecting"
	CallWaitingForAgent CallStatus = "waiting_for_agent"
	CallConnected       CallStatus = "connected"
	CallDisconnecting   CallStatus = "disconnecting"
	CallError           CallStatus = "error"
)

// ChallengeData is the payload pushed by the agent when a level is beaten.
type ChallengeData struct {
	Level    LevelID `json:"level"`
	Tool     string  `json:"tool"`
	TraceURL string  `json:"weaveTraceUrl,omitempty"`
}

// CallSession is a snapshot of the call state for one browser tab.
type CallSession struct {
	CallID             string         `json:"call_id,omitempty"`
	Status             CallStatus     `json:"status"`
	TransportState     string         `json:"transport_state,omitempty"`
	IsActive           bool           `json:"is_call_active"`
	IsMicEnabled       bool           `json:"is_mic_enabled"`
	Error              string         `json:"error,omitempty"`
	ChallengeCompleted bool           `json:"challenge_completed"`
	ChallengeData      *ChallengeData `json:"challenge_data,omitempty"`
}

// NewCallSession returns the idle state a tab starts in.
func NewCallSession() CallSession {
	return CallSession{
		Status:       CallIdle,
		IsMicEnabled: true,
	}
}
