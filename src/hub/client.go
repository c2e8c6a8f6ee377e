package hub

import (
	"sync"
	"time"

	"github.com/taskhive/realtime/src/types"
)

// Client wraps one websocket connection of an authenticated user.
type Client struct {
	ID          string
	User        types.Sender
	conn        types.Conn
	hub         *Hub
	Send        chan types.Envelope
	connectedAt time.Time
	mu          sync.Mutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a client wrapper for a freshly upgraded connection.
func NewClient(id string, user types.Sender, conn types.Conn, h *Hub) *Client {
	return &Client{
		ID:          id,
		User:        user,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.Envelope, 256),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// ReadPump reads envelopes from the websocket and routes them to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		var env types.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		c.hub.incoming <- inboundMsg{client: c, env: env}
	}
}

// WritePump writes queued envelopes to the websocket.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case env, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.Send)
	}
}
