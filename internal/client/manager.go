// Package client implements the browser-facing side of the chat transport:
// a reconnecting socket manager, session id correlation, and the stream
// assembler that folds agent_response fragments into whole replies.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/kipackjeong/Demo-sub001/internal/protocol"
)

// Status is the connection lifecycle state exposed to the presentation layer.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

var (
	ErrNotConnected     = errors.New("chat client: not connected")
	ErrClientClosed     = errors.New("chat client: closed")
	ErrRetriesExhausted = errors.New("chat client: reconnect attempts exhausted")
)

const (
	defaultMaxAttempts   = 5
	defaultRetryDelay    = time.Second
	defaultMaxRetryDelay = 5 * time.Second
	defaultDialTimeout   = 10 * time.Second
)

// Config configures a Manager. Callbacks are invoked from the manager's
// internal goroutines; they must not block.
type Config struct {
	// URL is the ws:// or wss:// endpoint.
	URL string
	// MaxAttempts bounds automatic reconnects after an abnormal closure.
	// Defaults to five. Only an explicit Connect resets the budget once it
	// is exhausted.
	MaxAttempts int
	// RetryDelay is the base reconnect delay; the effective delay grows
	// linearly with the attempt number. Defaults to one second.
	RetryDelay time.Duration
	// MaxRetryDelay caps the linear growth. Defaults to five seconds.
	MaxRetryDelay time.Duration
	// DialTimeout bounds a single dial. Defaults to ten seconds.
	DialTimeout time.Duration

	// OnStatus observes lifecycle transitions.
	OnStatus func(Status)
	// OnError observes terminal errors, notably retry-budget exhaustion.
	OnError func(error)
	// OnFrame receives every valid inbound frame in arrival order.
	OnFrame func(protocol.Frame)
}

// Manager owns one physical socket and its reconnection policy. A normal
// closure (code 1000, an explicit Close) never reconnects; any other closure
// schedules a bounded, linearly backed-off retry.
type Manager struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	status     Status
	conn       *websocket.Conn
	attempts   int
	retryTimer *time.Timer
	closed     bool
}

// NewManager creates a manager in the disconnected state. Call Connect to
// open the socket.
func NewManager(cfg Config) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = defaultMaxRetryDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		status: StatusDisconnected,
	}
}

// Connect opens the socket, resetting the retry budget. It returns
// immediately; observe OnStatus for the outcome.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClientClosed
	}
	m.attempts = 0
	m.stopRetryLocked()
	m.mu.Unlock()

	go m.dial()
	return nil
}

// Send writes one frame. Frames are never buffered: unless the manager is
// connected, Send fails with ErrNotConnected and the caller must re-send
// after observing StatusConnected again.
func (m *Manager) Send(ctx context.Context, frame protocol.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	ws := m.conn
	m.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	data, err := frame.Encode()
	if err != nil {
		return err
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Close tears the connection down with a normal closure. No reconnect is
// scheduled, any pending retry is cancelled, and the manager cannot be
// reused afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.stopRetryLocked()
	ws := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.cancel()
	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "client closed")
	}
	m.setStatus(StatusDisconnected)
	return nil
}

func (m *Manager) dial() {
	m.setStatus(StatusConnecting)

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.DialTimeout)
	ws, _, err := websocket.Dial(ctx, m.cfg.URL, nil)
	cancel()
	if err != nil {
		slog.Warn("Chat dial failed", "url", m.cfg.URL, "error", err)
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "client closed")
		return
	}
	m.conn = ws
	m.attempts = 0
	m.mu.Unlock()

	m.setStatus(StatusConnected)
	go m.readPump(ws)
}

func (m *Manager) readPump(ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(m.ctx)
		if err != nil {
			m.mu.Lock()
			if m.conn == ws {
				m.conn = nil
			}
			intentional := m.closed
			m.mu.Unlock()

			if intentional || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				m.setStatus(StatusDisconnected)
				return
			}
			slog.Warn("Chat socket lost", "error", err)
			m.scheduleReconnect()
			return
		}

		// Malformed frames are dropped, never fatal to the connection.
		frame, err := protocol.Decode(data)
		if err != nil {
			slog.Warn("Dropping malformed frame", "error", err)
			continue
		}
		if m.cfg.OnFrame != nil {
			m.cfg.OnFrame(frame)
		}
	}
}

// scheduleReconnect arms a cancellable retry timer, or settles in the
// disconnected state once the budget is spent.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.cfg.MaxAttempts {
		m.mu.Unlock()
		m.setStatus(StatusDisconnected)
		m.emitError(fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, m.cfg.MaxAttempts))
		return
	}
	m.attempts++
	delay := min(time.Duration(m.attempts)*m.cfg.RetryDelay, m.cfg.MaxRetryDelay)
	m.retryTimer = time.AfterFunc(delay, m.dial)
	attempt := m.attempts
	m.mu.Unlock()

	m.setStatus(StatusConnecting)
	slog.Info("Chat reconnect scheduled", "attempt", attempt, "delay", delay)
}

func (m *Manager) stopRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	m.mu.Unlock()

	if m.cfg.OnStatus != nil {
		m.cfg.OnStatus(s)
	}
}

func (m *Manager) emitError(err error) {
	if m.cfg.OnError != nil {
		m.cfg.OnError(err)
	}
}
