// Package pipecat starts voice-agent sessions on Pipecat Cloud.
package pipecat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNotConfigured is returned when the agent name or API key is missing.
	ErrNotConfigured = errors.New("pipecat credentials not configured")
	// ErrUpstreamStatus is returned for any non-2xx answer from the provider.
	ErrUpstreamStatus = errors.New("pipecat API error")
)

// maxErrorBody bounds how much of an upstream error body is kept for logs.
const maxErrorBody = 512

// Session is the room a browser joins to talk to the agent.
type Session struct {
	RoomURL string `json:"room_url"`
	Token   string `json:"token"`
}

type startRequest struct {
	CreateDailyRoom     bool           `json:"createDailyRoom"`
	DailyRoomProperties roomProperties `json:"dailyRoomProperties"`
	Body                startBody      `json:"body"`
}

type roomProperties struct {
	StartVideoOff bool `json:"start_video_off"`
}

type startBody struct {
	CustomData json.RawMessage `json:"customData,omitempty"`
}

type startResponse struct {
	DailyRoom  string `json:"dailyRoom"`
	DailyToken string `json:"dailyToken"`
}

// Client calls the public session-start endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	agentName  string
	apiKey     string
}

// NewClient creates a client. A zero timeout leaves only the request context.
func NewClient(baseURL, agentName, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		agentName:  agentName,
		apiKey:     apiKey,
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.agentName != "" && c.apiKey != ""
}

// StartSession asks the provider to create a room with the agent in it.
// customData is forwarded verbatim to the agent.
func (c *Client) StartSession(ctx context.Context, customData json.RawMessage) (*Session, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	raw, err := json.Marshal(startRequest{
		CreateDailyRoom:     true,
		DailyRoomProperties: roomProperties{StartVideoOff: true},
		Body:                startBody{CustomData: customData},
	})
	if err != nil {
		return nil, fmt.Errorf("encode start request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.agentName+"/start", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build start request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstreamStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload startResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode start response: %w", err)
	}
	return &Session{RoomURL: payload.DailyRoom, Token: payload.DailyToken}, nil
}
