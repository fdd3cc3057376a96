// ABOUTME: WebSocket transport for Resonate Protocol communication
// ABOUTME: Owns one duplex connection and reports events through typed callbacks
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned when sending without an open connection
var ErrNotConnected = errors.New("not connected")

const closeWriteTimeout = time.Second

// Handlers receives transport events. Any slot may be nil.
//
// OnOpen runs before the read loop starts, so anything sent from it goes out
// before the first inbound message is delivered.
type Handlers struct {
	OnOpen   func()
	OnText   func(data []byte)
	OnBinary func(data []byte)
	OnError  func(err error)
	OnClose  func(requested bool)
}

// Option configures a Transport
type Option func(*Transport)

// WithLogger sets the transport logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithDialer replaces the websocket dialer
func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) {
		t.dialer = d
	}
}

// session is a single websocket connection and its read loop
type session struct {
	conn      *websocket.Conn
	requested atomic.Bool // Disconnect was called
	replaced  atomic.Bool // a later Connect took over
}

// Transport maintains one logical duplex connection to a server
type Transport struct {
	handlers Handlers
	dialer   *websocket.Dialer
	logger   *slog.Logger

	mu      sync.RWMutex
	current *session

	writeMu sync.Mutex
}

// NewTransport creates a transport delivering events to h
func NewTransport(h Handlers, opts ...Option) *Transport {
	t := &Transport{
		handlers: h,
		dialer:   websocket.DefaultDialer,
		logger:   slog.Default().With("component", "transport"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect dials url, replacing any previous connection
func (t *Transport) Connect(ctx context.Context, url string) error {
	t.mu.Lock()
	if old := t.current; old != nil {
		old.replaced.Store(true)
		t.current = nil
		t.closeConn(old.conn)
	}
	t.mu.Unlock()

	t.logger.Info("connecting", "url", url)
	conn, _, err := t.dialer.DialContext(ctx, url, nil)
	if err != nil {
		err = fmt.Errorf("dial failed: %w", err)
		t.logger.Error("connect failed", "url", url, "error", err)
		if t.handlers.OnError != nil {
			t.handlers.OnError(err)
		}
		return err
	}

	s := &session{conn: conn}
	t.mu.Lock()
	t.current = s
	t.mu.Unlock()

	if t.handlers.OnOpen != nil {
		t.handlers.OnOpen()
	}

	go t.readLoop(s)
	return nil
}

// Disconnect closes the connection; the close event reports requested=true
func (t *Transport) Disconnect() {
	t.mu.Lock()
	s := t.current
	t.current = nil
	t.mu.Unlock()

	if s == nil {
		return
	}
	s.requested.Store(true)
	t.closeConn(s.conn)
}

// closeConn sends a close frame and closes the socket
func (t *Transport) closeConn(conn *websocket.Conn) {
	t.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	t.writeMu.Unlock()
	_ = conn.Close()
}

// IsConnected reports whether a connection is open
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current != nil
}

// Send marshals msg as JSON and writes it as a text frame
func (t *Transport) Send(msg Message) error {
	t.mu.RLock()
	s := t.current
	t.mu.RUnlock()

	if s == nil {
		t.logger.Warn("send on closed connection", "type", msg.Type)
		return fmt.Errorf("send %s: %w", msg.Type, ErrNotConnected)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	t.writeMu.Lock()
	err = s.conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		t.logger.Error("send failed", "type", msg.Type, "error", err)
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}

	t.logger.Debug("sent message", "type", msg.Type)
	return nil
}

// readLoop reads and routes incoming frames until the connection closes
func (t *Transport) readLoop(s *session) {
	var readErr error
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}

		switch messageType {
		case websocket.BinaryMessage:
			if t.handlers.OnBinary != nil {
				t.handlers.OnBinary(data)
			}
		case websocket.TextMessage:
			if t.handlers.OnText != nil {
				t.handlers.OnText(data)
			}
		default:
			t.logger.Debug("ignoring websocket frame", "type", messageType)
		}
	}

	if s.replaced.Load() {
		return
	}

	t.mu.Lock()
	if t.current == s {
		t.current = nil
	}
	t.mu.Unlock()
	_ = s.conn.Close()

	requested := s.requested.Load()
	if !requested {
		t.logger.Warn("connection lost", "error", readErr)
		if t.handlers.OnError != nil {
			t.handlers.OnError(readErr)
		}
	} else {
		t.logger.Info("connection closed")
	}

	if t.handlers.OnClose != nil {
		t.handlers.OnClose(requested)
	}
}
