package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/voicelab/internal/domain"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrRelayClosed is returned for commands issued after the browser went away.
var ErrRelayClosed = errors.New("call relay closed")

const relayWriteTimeout = 5 * time.Second

// Frame types exchanged with the browser.
const (
	FrameTransportState = "transport_state"
	FrameServerMessage  = "server_message"
	FrameResult         = "result"
	FrameCommand        = "command"
	FrameCallState      = "call_state"
	FrameView           = "view"
)

// Frame is one JSON message on the relay websocket.
type Frame struct {
	Type    string              `json:"type"`
	ID      int64               `json:"id,omitempty"`
	Command string              `json:"command,omitempty"`
	State   TransportState      `json:"state,omitempty"`
	Data    json.RawMessage     `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`
	Call    *domain.CallSession `json:"call,omitempty"`
	View    any                 `json:"view,omitempty"`
}

// RelayClient implements Client over a websocket to the browser, which hosts
// the actual real-time SDK. Commands are forwarded to the browser; transport
// states and server messages flow back.
type RelayClient struct {
	conn           *websocket.Conn
	commandTimeout time.Duration
	logger         *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	nextID    int64
	pending   map[int64]chan error
	nextSub   int
	subs      map[string]map[int]func(json.RawMessage)
	stateSubs map[int]func(TransportState)
	done      chan struct{}
	closeOnce sync.Once
}

// NewRelayClient wraps an accepted websocket. commandTimeout bounds how long
// Connect and Disconnect wait for the browser; zero means only ctx applies.
func NewRelayClient(conn *websocket.Conn, commandTimeout time.Duration, logger *slog.Logger) *RelayClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayClient{
		conn:           conn,
		commandTimeout: commandTimeout,
		logger:         logger,
		pending:        make(map[int64]chan error),
		subs:           make(map[string]map[int]func(json.RawMessage)),
		stateSubs:      make(map[int]func(TransportState)),
		done:           make(chan struct{}),
	}
}

// Connect asks the browser to join the call.
func (r *RelayClient) Connect(ctx context.Context) error {
	return r.command(ctx, "connect")
}

// Disconnect asks the browser to leave the call.
func (r *RelayClient) Disconnect(ctx context.Context) error {
	return r.command(ctx, "disconnect")
}

// Subscribe registers handler for server events of the given type.
func (r *RelayClient) Subscribe(event string, handler func(json.RawMessage)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	if r.subs[event] == nil {
		r.subs[event] = make(map[int]func(json.RawMessage))
	}
	r.subs[event][id] = handler
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs[event], id)
	}
}

// OnTransportState registers fn for transport state changes.
func (r *RelayClient) OnTransportState(fn func(TransportState)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.stateSubs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.stateSubs, id)
	}
}

// Send writes a frame to the browser.
func (r *RelayClient) Send(ctx context.Context, f Frame) error {
	select {
	case <-r.done:
		return ErrRelayClosed
	default:
	}
	ctx, cancel := context.WithTimeout(ctx, relayWriteTimeout)
	defer cancel()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := wsjson.Write(ctx, r.conn, f); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	return nil
}

// Done is closed once the read loop has stopped.
func (r *RelayClient) Done() <-chan struct{} {
	return r.done
}

// Run reads frames until the connection closes or ctx is cancelled.
func (r *RelayClient) Run(ctx context.Context) error {
	for {
		var f Frame
		if err := wsjson.Read(ctx, r.conn, &f); err != nil {
			r.shutdown(err)
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read relay frame: %w", err)
		}
		r.dispatch(f)
	}
}

func (r *RelayClient) dispatch(f Frame) {
	switch f.Type {
	case FrameTransportState:
		r.mu.Lock()
		fns := make([]func(TransportState), 0, len(r.stateSubs))
		for _, fn := range r.stateSubs {
			fns = append(fns, fn)
		}
		r.mu.Unlock()
		for _, fn := range fns {
			fn(f.State)
		}

	case FrameServerMessage:
		r.mu.Lock()
		fns := make([]func(json.RawMessage), 0, len(r.subs[EventServerMessage]))
		for _, fn := range r.subs[EventServerMessage] {
			fns = append(fns, fn)
		}
		r.mu.Unlock()
		for _, fn := range fns {
			fn(f.Data)
		}

	case FrameResult:
		r.mu.Lock()
		ch, ok := r.pending[f.ID]
		delete(r.pending, f.ID)
		r.mu.Unlock()
		if !ok {
			r.logger.Debug("Result for unknown command", "id", f.ID)
			return
		}
		if f.Error != "" {
			ch <- errors.New(f.Error)
		} else {
			ch <- nil
		}

	default:
		r.logger.Warn("Ignoring unknown relay frame", "type", f.Type)
	}
}

func (r *RelayClient) command(ctx context.Context, name string) error {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return ErrRelayClosed
	default:
	}
	r.nextID++
	id := r.nextID
	ch := make(chan error, 1)
	r.pending[id] = ch
	r.mu.Unlock()

	if r.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.commandTimeout)
		defer cancel()
	}

	if err := r.Send(ctx, Frame{Type: FrameCommand, ID: id, Command: name}); err != nil {
		r.forget(id)
		return err
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		r.forget(id)
		return fmt.Errorf("%s command: %w", name, ctx.Err())
	case <-r.done:
		return ErrRelayClosed
	}
}

func (r *RelayClient) forget(id int64) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

func (r *RelayClient) shutdown(cause error) {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		close(r.done)
		for id, ch := range r.pending {
			ch <- ErrRelayClosed
			delete(r.pending, id)
		}
		r.mu.Unlock()
		r.logger.Debug("Call relay stopped", "cause", cause)
	})
}
