package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ashureev/voicelab/internal/call"
	"github.com/ashureev/voicelab/internal/domain"
	"github.com/ashureev/voicelab/internal/identity"
	"github.com/ashureev/voicelab/internal/screen"
	"github.com/ashureev/voicelab/internal/session"
	"github.com/coder/websocket"
)

// CallSocketHandler upgrades GET /ws/call into the relay between the browser's
// real-time SDK and the tab's call machine.
type CallSocketHandler struct {
	registry       *session.Registry
	commandTimeout time.Duration
	originPatterns []string
}

// NewCallSocketHandler creates the relay endpoint. allowedOrigins uses the
// same values as the CORS middleware.
func NewCallSocketHandler(registry *session.Registry, commandTimeout time.Duration, allowedOrigins []string) *CallSocketHandler {
	return &CallSocketHandler{
		registry:       registry,
		commandTimeout: commandTimeout,
		originPatterns: originPatterns(allowedOrigins),
	}
}

// originPatterns converts origins to the host patterns websocket.Accept expects.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *CallSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	logger := slog.Default().With("user_id", userID, "session_id", sessionID)
	logger.Info("Call relay connection request", "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	tab := h.registry.Get(ctx, userID, sessionID)
	relay := call.NewRelayClient(ws, h.commandTimeout, logger)

	push := func(f call.Frame) {
		if err := relay.Send(ctx, f); err != nil {
			logger.Debug("Failed to push relay frame", "type", f.Type, "error", err)
		}
	}
	stopCall := tab.Call.Watch(func(s domain.CallSession) {
		push(call.Frame{Type: call.FrameCallState, Call: &s})
	})
	defer stopCall()
	stopView := tab.Screen.Watch(func(v screen.View) {
		push(call.Frame{Type: call.FrameView, View: v})
	})
	defer stopView()

	h.registry.BindRelay(tab, ws, relay)
	defer h.registry.UnbindRelay(tab, ws, relay)

	snap := tab.Call.Snapshot()
	push(call.Frame{Type: call.FrameCallState, Call: &snap})
	push(call.Frame{Type: call.FrameView, View: tab.Screen.View()})

	if err := relay.Run(ctx); err != nil {
		logger.Warn("Call relay ended with error", "error", err)
		return
	}
	logger.Info("Call relay closed")
}
