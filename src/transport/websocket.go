// Package transport binds the realtime client to its websocket endpoint.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/taskhive/realtime/config"
	"github.com/taskhive/realtime/src/types"
)

// Dialer opens an authenticated connection to the realtime endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint, token string) (types.Conn, error)
}

// WebsocketDialer dials the endpoint over websocket, presenting the bearer
// token as a query parameter (browser clients cannot set headers on the
// upgrade request, so the server expects it there).
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// PingInterval and PongWait drive the heartbeat: a ping every
	// PingInterval, and a read deadline of PongWait refreshed on each
	// pong. PongWait must exceed PingInterval; zero disables the
	// heartbeat and a half-open connection then goes undetected.
	PingInterval time.Duration
	PongWait     time.Duration
}

// NewDialer builds the production dialer from the client configuration.
func NewDialer(cfg *config.RealtimeConfig) *WebsocketDialer {
	return &WebsocketDialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		PingInterval:     cfg.PingInterval,
		PongWait:         cfg.PongWait,
	}
}

// Dial connects and returns the live binding.
func (d *WebsocketDialer) Dial(ctx context.Context, endpoint, token string) (types.Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &wsConn{
		conn:         conn,
		writeTimeout: d.WriteTimeout,
		done:         make(chan struct{}),
	}
	if d.PingInterval > 0 && d.PongWait > 0 {
		conn.SetReadDeadline(time.Now().Add(d.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(d.PongWait))
		})
		go c.pinger(d.PingInterval)
	}
	return c, nil
}

// wsConn adapts *websocket.Conn to types.Conn with serialized, bounded
// writes and the client side of the heartbeat. Without the heartbeat a
// half-open connection would leave ReadJSON blocked forever and the stale
// binding would never feed the retry path.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	done         chan struct{}
	closeOnce    sync.Once
}

func (c *wsConn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ReadJSON(v any) error { return c.conn.ReadJSON(v) }

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

// pinger keeps the connection verified. A dead peer stops answering, the
// read deadline expires, and the blocked read returns an error.
func (c *wsConn) pinger(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(interval)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// IsServerClose reports whether a read error is the server deliberately
// ending the session (normal closure or policy violation, e.g. an invalid
// token). Such closes are authoritative and must not be retried.
func IsServerClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.ClosePolicyViolation,
	)
}
