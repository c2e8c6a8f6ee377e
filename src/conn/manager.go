// Package conn owns the single realtime connection: its lifecycle state,
// the reconnection backoff, and the routing of inbound events into the
// derived state store and the handler registry.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/taskhive/realtime/config"
	"github.com/taskhive/realtime/src/registry"
	"github.com/taskhive/realtime/src/store"
	"github.com/taskhive/realtime/src/transport"
	"github.com/taskhive/realtime/src/types"
)

var (
	// ErrNotConnected is returned for actions issued while the
	// connection is not open.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrGivenUp is returned by EnsureConnected after the retry budget
	// is exhausted; only an explicit Reconnect clears it.
	ErrGivenUp = errors.New("realtime: gave up reconnecting, call Reconnect")
)

// Manager drives the one process-wide transport binding. All state
// transitions go through the pure Next function; the mutex serializes the
// logically-concurrent call sites (facade actions, read loop, retry timer).
type Manager struct {
	cfg    *config.RealtimeConfig
	dialer transport.Dialer
	reg    *registry.Registry
	store  *store.Store
	logger zerolog.Logger

	mu    sync.Mutex
	state State
	retry RetryState
	conn  types.Conn
	token string
	timer *time.Timer

	// gen is bumped on teardown so stale read loops, dial results, and
	// retry timers recognize they outlived their connection.
	gen int
}

// New creates a manager in the Disconnected state.
func New(cfg *config.RealtimeConfig, dialer transport.Dialer, reg *registry.Registry, st *store.Store, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		dialer: dialer,
		reg:    reg,
		store:  st,
		logger: logger.With().Str("component", "conn").Logger(),
	}
}

// EnsureConnected opens the connection if it is not already open or
// opening. Calls made while a connect or backoff is in flight coalesce into
// that attempt. After the manager has given up it refuses until Reconnect.
func (m *Manager) EnsureConnected(token string) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected, StateConnecting, StateBackoffWait:
		m.mu.Unlock()
		return nil
	case StateGivenUp:
		m.mu.Unlock()
		return ErrGivenUp
	}
	m.token = token
	m.state = Next(m.state, InputConnectRequested)
	gen := m.gen
	m.mu.Unlock()

	go m.connect(gen)
	return nil
}

// Reconnect resets the retry state and attempts a fresh connect. It is the
// explicit escape from GivenUp, and also skips a pending backoff wait.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	m.retry.Reset()
	m.state = Next(m.state, InputReconnectRequested)
	gen := m.gen
	m.mu.Unlock()

	go m.connect(gen)
}

// Teardown forcibly closes the binding and resets all state. Called only
// when the authenticated session ends.
func (m *Manager) Teardown() {
	m.mu.Lock()
	m.gen++
	m.stopTimerLocked()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = Next(m.state, InputTeardown)
	m.retry.Reset()
	m.token = ""
	m.mu.Unlock()

	m.store.Reset()
	m.reg.Reset()
	m.logger.Info().Msg("torn down")
}

// Send writes a named event to the server. Actions are not queued: if the
// connection is not open the caller gets ErrNotConnected and must re-issue
// after reconnection if still relevant.
func (m *Manager) Send(event types.Kind, data any) error {
	m.mu.Lock()
	c := m.conn
	st := m.state
	m.mu.Unlock()

	if st != StateConnected || c == nil {
		return ErrNotConnected
	}
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	if err := c.WriteJSON(env); err != nil {
		// The read loop observes the broken connection and drives the
		// retry; here we only report the failed send.
		m.logger.Warn().Err(err).Str("event", string(event)).Msg("send failed")
		return err
	}
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the binding is open.
func (m *Manager) IsConnected() bool { return m.State() == StateConnected }

// GaveUp reports whether the retry budget is exhausted.
func (m *Manager) GaveUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retry.GaveUp
}

// Retry returns a snapshot of the retry state.
func (m *Manager) Retry() RetryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retry
}

func (m *Manager) connect(gen int) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	c, err := m.dialer.Dial(ctx, m.cfg.URL, token)
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if err == nil {
			c.Close()
		}
		return
	}
	if err != nil {
		m.failLocked(err)
		m.mu.Unlock()
		return
	}
	m.conn = c
	m.retry.Reset()
	m.state = Next(m.state, InputOpened)
	m.mu.Unlock()

	m.logger.Info().Str("url", m.cfg.URL).Msg("connected")
	go m.readLoop(c, gen)
}

func (m *Manager) readLoop(c types.Conn, gen int) {
	for {
		var env types.Envelope
		if err := c.ReadJSON(&env); err != nil {
			m.mu.Lock()
			if gen != m.gen || m.conn != c {
				// Torn down or superseded; nothing to drive.
				m.mu.Unlock()
				return
			}
			m.conn = nil
			c.Close()
			if transport.IsServerClose(err) {
				m.state = Next(m.state, InputServerClosed)
				m.mu.Unlock()
				m.logger.Info().Err(err).Msg("server ended session")
				return
			}
			m.failLocked(err)
			m.mu.Unlock()
			return
		}
		m.dispatch(env)
	}
}

// failLocked records a transport failure and schedules the next attempt or
// gives up. Caller holds the mutex.
func (m *Manager) failLocked(err error) {
	m.retry.Attempts++
	m.retry.LastAttemptAt = time.Now()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}

	if m.retry.Attempts >= m.cfg.MaxAttempts {
		m.retry.GaveUp = true
		m.state = Next(m.state, InputAttemptsExhausted)
		m.logger.Warn().Err(err).
			Int("attempts", m.retry.Attempts).
			Msg("giving up until manual reconnect")
		return
	}

	m.state = Next(m.state, InputNetworkError)
	delay := Delay(m.cfg, m.retry.Attempts)
	gen := m.gen
	m.timer = time.AfterFunc(delay, func() { m.retryAfterBackoff(gen) })
	m.logger.Warn().Err(err).
		Int("attempt", m.retry.Attempts).
		Dur("delay", delay).
		Msg("connection failed, retrying")
}

func (m *Manager) retryAfterBackoff(gen int) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateBackoffWait {
		m.mu.Unlock()
		return
	}
	m.state = Next(m.state, InputBackoffElapsed)
	m.mu.Unlock()
	m.connect(gen)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// dispatch routes one inbound event: chat, typing, and presence kinds
// update the derived state store; business kinds go to the registry.
func (m *Manager) dispatch(env types.Envelope) {
	switch env.Event {
	case types.KindMessageNew:
		var msg types.ChatMessage
		if !m.decode(env, &msg) {
			return
		}
		m.store.AppendMessage(msg)
	case types.KindHistory:
		var p types.HistoryPayload
		if !m.decode(env, &p) {
			return
		}
		m.store.SetHistory(p.Messages)
	case types.KindMessageRead:
		var p types.ReadReceipt
		if !m.decode(env, &p) {
			return
		}
		m.store.MarkRead(p.MessageID, p.ReadAt)
	case types.KindMessageUpdated:
		var p types.MessageUpdate
		if !m.decode(env, &p) {
			return
		}
		m.store.MergeMessageUpdate(p)
	case types.KindTypingUpdate:
		var p types.TypingStatus
		if !m.decode(env, &p) {
			return
		}
		m.store.SetTyping(p)
	case types.KindUserStatus:
		var p types.UserStatus
		if !m.decode(env, &p) {
			return
		}
		m.store.SetPresence(p.UserID, p.Online)
	default:
		if types.IsBusiness(env.Event) {
			m.reg.Dispatch(env.Event, env.Data)
			return
		}
		m.logger.Debug().Str("event", string(env.Event)).Msg("unhandled event")
	}
}

func (m *Manager) decode(env types.Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		m.logger.Error().Err(err).Str("event", string(env.Event)).Msg("bad payload")
		return false
	}
	return true
}
