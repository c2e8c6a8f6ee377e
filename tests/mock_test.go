package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/taskhive/realtime/config"
	"github.com/taskhive/realtime/src/types"
)

// mockConn implements types.Conn without a real websocket. Reads block
// until an envelope or an error is injected, or the conn is closed.
type mockConn struct {
	mu       sync.Mutex
	written  []types.Envelope
	readCh   chan types.Envelope
	errCh    chan error
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan types.Envelope, 16),
		errCh:    make(chan error, 1),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) WriteJSON(v any) error {
	env, ok := v.(types.Envelope)
	if !ok {
		if p, isPtr := v.(*types.Envelope); isPtr {
			env = *p
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("write on closed connection")
	}
	m.written = append(m.written, env)
	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	select {
	case env := <-m.readCh:
		if ptr, ok := v.(*types.Envelope); ok {
			*ptr = env
		}
		return nil
	case err := <-m.errCh:
		return err
	case <-m.closedCh:
		return errors.New("use of closed connection")
	}
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

// push delivers a server event to the client under test.
func (m *mockConn) push(t *testing.T, kind types.Kind, data any) {
	t.Helper()
	env, err := types.NewEnvelope(kind, data)
	if err != nil {
		t.Fatalf("encode %s: %v", kind, err)
	}
	m.readCh <- env
}

// fail injects a read error, simulating a broken or closed connection.
func (m *mockConn) fail(err error) {
	m.errCh <- err
}

func (m *mockConn) getWritten() []types.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]types.Envelope, len(m.written))
	copy(cp, m.written)
	return cp
}

func (m *mockConn) writtenKinds() []types.Kind {
	var kinds []types.Kind
	for _, env := range m.getWritten() {
		kinds = append(kinds, env.Event)
	}
	return kinds
}

// mockDialer hands out scripted connections. An empty queue refuses the
// dial, simulating a network failure.
type mockDialer struct {
	mu        sync.Mutex
	dials     int
	lastToken string
	queue     []*mockConn
}

func (d *mockDialer) Dial(_ context.Context, _, token string) (types.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.lastToken = token
	if len(d.queue) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.queue[0]
	d.queue = d.queue[1:]
	return c, nil
}

func (d *mockDialer) enqueue(conns ...*mockConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, conns...)
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *mockDialer) token() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastToken
}

// testConfig shrinks the backoff so retry tests settle in milliseconds.
func testConfig() *config.RealtimeConfig {
	cfg := config.DefaultConfig()
	cfg.URL = "ws://test.invalid/ws"
	cfg.InitialDelay = 2 * time.Millisecond
	cfg.MaxDelay = 20 * time.Millisecond
	cfg.HandshakeTimeout = time.Second
	return cfg
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
