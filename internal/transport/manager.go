// Package transport owns the single persistent socket connection to the
// HostHub realtime channel and fans inbound events out to subscribers.
package transport

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hosthub/hubchat/internal/dispatch"
	"github.com/hosthub/hubchat/internal/status"
	"github.com/hosthub/hubchat/internal/wire"
)

const (
	// Time allowed to write a frame.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong.
	pongWait = 60 * time.Second

	// Ping period, must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound buffer; emits are fire-and-forget and dropped when full.
	sendBuffer = 64
)

// CredentialSource yields the current bearer token, or "" when logged out.
type CredentialSource interface {
	Token() string
}

// Manager maintains at most one socket connection per authenticated session.
// Raw event subscription goes through On/Off; outbound frames through Emit.
// Connection failures never propagate as errors to callers: they are logged
// and reflected in the state machine, and reconnect policy stays with the
// caller.
type Manager struct {
	socketURL string
	creds     CredentialSource
	dialer    *websocket.Dialer
	machine   *status.Machine
	disp      *dispatch.Dispatcher
	logger    *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	userID string
	sendCh chan []byte
	done   chan struct{}

	// onState has its own lock: transitions fire while mu is held.
	stateMu sync.Mutex
	onState func(status.Change)
}

// New creates a manager for the given socket endpoint. No connection is made
// until Connect.
func New(socketURL string, creds CredentialSource, logger *zap.Logger) *Manager {
	m := &Manager{
		socketURL: socketURL,
		creds:     creds,
		dialer:    websocket.DefaultDialer,
		disp:      dispatch.New(),
		logger:    logger,
	}
	m.machine = status.NewMachine(m.stateChanged)
	return m
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// OnStateChange registers an observer for connection state transitions.
// Only one observer is kept; passing nil clears it.
func (m *Manager) OnStateChange(fn func(status.Change)) {
	m.stateMu.Lock()
	m.onState = fn
	m.stateMu.Unlock()
}

// On registers a raw listener for a named server event.
func (m *Manager) On(event string, fn dispatch.Handler) {
	m.disp.On(event, fn)
}

// Off unregisters listeners. With no handler argument it removes every
// listener for the event; see dispatch.Dispatcher.Off.
func (m *Manager) Off(event string, fns ...dispatch.Handler) {
	m.disp.Off(event, fns...)
}

// Connect establishes the socket for userID. Idempotent: already connected
// for the same user is a no-op; connected for a different identity forces a
// disconnect first. Without an auth token it logs and returns. Handshake
// failures are logged, the state reverts to Disconnected and no retry is
// scheduled.
func (m *Manager) Connect(ctx context.Context, userID string) {
	m.mu.Lock()
	if m.conn != nil && m.userID == userID {
		m.mu.Unlock()
		m.logger.Debug("connect: already connected", zap.String("user_id", userID))
		return
	}
	if m.conn != nil {
		m.logger.Info("connect: identity changed, dropping previous socket",
			zap.String("old_user_id", m.userID), zap.String("user_id", userID))
		m.closeLocked()
	}
	token := m.creds.Token()
	if token == "" {
		m.mu.Unlock()
		m.logger.Warn("connect skipped: no auth token")
		return
	}
	if err := m.machine.Transition(status.Connecting); err != nil {
		// A concurrent connect attempt is already in flight.
		m.mu.Unlock()
		m.logger.Debug("connect: attempt already in progress")
		return
	}
	m.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := m.dialer.DialContext(ctx, endpointFor(m.socketURL, userID), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		m.logger.Error("socket handshake failed", zap.Error(err))
		_ = m.machine.Transition(status.Error)
		_ = m.machine.Transition(status.Disconnected)
		return
	}

	m.mu.Lock()
	m.conn = conn
	m.userID = userID
	m.sendCh = make(chan []byte, sendBuffer)
	m.done = make(chan struct{})
	sendCh, done := m.sendCh, m.done
	m.mu.Unlock()

	_ = m.machine.Transition(status.Connected)
	m.logger.Info("socket connected", zap.String("user_id", userID))

	go m.readPump(conn)
	go m.writePump(conn, sendCh, done)
}

// Disconnect releases the socket. Safe to call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return
	}
	m.logger.Info("socket disconnecting", zap.String("user_id", m.userID))
	m.closeLocked()
}

// Emit sends a named frame, fire-and-forget. A no-op when not connected; a
// full outbound buffer drops the frame rather than blocking.
func (m *Manager) Emit(event string, payload any) {
	m.mu.Lock()
	ch := m.sendCh
	connected := m.conn != nil
	m.mu.Unlock()

	if !connected {
		m.logger.Debug("emit dropped: not connected", zap.String("event", event))
		return
	}

	buf, err := wire.Encode(event, payload)
	if err != nil {
		m.logger.Error("emit dropped: encode failed", zap.String("event", event), zap.Error(err))
		return
	}

	select {
	case ch <- buf:
	default:
		m.logger.Warn("emit dropped: outbound buffer full", zap.String("event", event))
	}
}

// closeLocked tears the current connection down. Caller holds m.mu.
func (m *Manager) closeLocked() {
	_ = m.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	close(m.done)
	_ = m.conn.Close()
	m.conn = nil
	m.userID = ""
	m.sendCh = nil
	m.done = nil
	_ = m.machine.Transition(status.Disconnected)
}

func (m *Manager) readPump(conn *websocket.Conn) {
	defer m.readClosed(conn)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Warn("socket closed unexpectedly", zap.Error(err))
			} else {
				m.logger.Info("socket closed")
			}
			return
		}

		event, payload, err := wire.Decode(raw)
		if err != nil {
			m.logger.Warn("dropping inbound frame", zap.String("event", event), zap.Error(err))
			continue
		}
		m.disp.Dispatch(event, payload)
	}
}

// readClosed handles a transport-level disconnect noticed by the read pump.
func (m *Manager) readClosed(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != conn {
		// Already torn down by Disconnect or an identity change.
		return
	}
	close(m.done)
	_ = m.conn.Close()
	m.conn = nil
	m.userID = ""
	m.sendCh = nil
	m.done = nil
	_ = m.machine.Transition(status.Disconnected)
}

func (m *Manager) writePump(conn *websocket.Conn, sendCh <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case buf := <-sendCh:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
				m.logger.Warn("socket write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func (m *Manager) stateChanged(c status.Change) {
	m.logger.Info("connection state changed",
		zap.String("from", string(c.From)), zap.String("to", string(c.To)))
	m.stateMu.Lock()
	fn := m.onState
	m.stateMu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// endpointFor appends the connecting user id to the socket URL.
func endpointFor(socketURL, userID string) string {
	u, err := url.Parse(socketURL)
	if err != nil {
		return socketURL
	}
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()
	return u.String()
}
