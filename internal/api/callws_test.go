package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/voicelab/internal/call"
	"github.com/ashureev/voicelab/internal/domain"
	"github.com/ashureev/voicelab/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"https://play.example", "http://localhost:3000"})
	if len(got) != 2 || got[0] != "play.example" || got[1] != "localhost:3000" {
		t.Fatalf("unexpected patterns %v", got)
	}
	if got := originPatterns([]string{"https://a.example", "*"}); len(got) != 1 || got[0] != "*" {
		t.Fatalf("wildcard must allow everything, got %v", got)
	}
}

func TestCallSocketRelaysStateAndCommands(t *testing.T) {
	h, registry := newTestRouter(t, &fakeStarter{}, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set(identity.SessionHeaderName, "tab-1")
	browser, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/call", &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer browser.CloseNow()

	// Initial state push.
	var f call.Frame
	if err := wsjson.Read(ctx, browser, &f); err != nil || f.Type != call.FrameCallState {
		t.Fatalf("expected call_state frame, got %+v (%v)", f, err)
	}
	if err := wsjson.Read(ctx, browser, &f); err != nil || f.Type != call.FrameView {
		t.Fatalf("expected view frame, got %+v (%v)", f, err)
	}

	tab := registry.Get(ctx, testUserID, "tab-1")
	if !tab.Call.HasClient() {
		t.Fatal("expected relay attached to the tab's call machine")
	}

	// Start the call through the HTTP action while the browser answers the command.
	result := make(chan int, 1)
	go func() {
		rec := do(t, h, http.MethodPost, "/api/view/start-call", "")
		result <- rec.Code
	}()

	for {
		var cmd call.Frame
		if err := wsjson.Read(ctx, browser, &cmd); err != nil {
			t.Fatalf("read: %v", err)
		}
		if cmd.Type != call.FrameCommand {
			continue
		}
		if cmd.Command != "connect" {
			t.Fatalf("expected connect command, got %q", cmd.Command)
		}
		if err := wsjson.Write(ctx, browser, call.Frame{Type: call.FrameTransportState, State: call.TransportReady}); err != nil {
			t.Fatalf("write state: %v", err)
		}
		if err := wsjson.Write(ctx, browser, call.Frame{Type: call.FrameResult, ID: cmd.ID}); err != nil {
			t.Fatalf("write result: %v", err)
		}
		break
	}

	select {
	case code := <-result:
		if code != http.StatusOK {
			t.Fatalf("start-call returned %d", code)
		}
	case <-ctx.Done():
		t.Fatal("start-call did not complete")
	}

	snap := tab.Call.Snapshot()
	if snap.Status != domain.CallConnected || !snap.IsActive {
		t.Fatalf("expected connected call, got %+v", snap)
	}

	browser.Close(websocket.StatusNormalClosure, "tab closed")
	deadline := time.Now().Add(5 * time.Second)
	for tab.Call.HasClient() {
		if time.Now().After(deadline) {
			t.Fatal("relay was not detached after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if snap := tab.Call.Snapshot(); snap.Status != domain.CallIdle {
		t.Fatalf("expected idle after relay closed, got %s", snap.Status)
	}
}
