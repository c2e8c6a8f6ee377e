// Package hub is the reference realtime server used in development and
// integration tests. It keeps conversation membership, a bounded message
// history per conversation, and user presence, and fans inbound events out
// to the connected clients of each conversation. Business events from the
// marketplace services are injected through Publish.
package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/taskhive/realtime/src/types"
)

// historyLimit bounds the per-conversation replay buffer.
const historyLimit = 100

// EventBridge relays envelopes to other server instances.
// Defined here to avoid a circular import with the bridge package.
type EventBridge interface {
	Publish(ev BridgeEvent) error
	Available() bool
}

// BridgeEvent is an envelope relayed between instances, optionally scoped
// to one conversation's members.
type BridgeEvent struct {
	ConversationID string         `json:"conversationId,omitempty"`
	Env            types.Envelope `json:"env"`
}

// Hub manages the connected clients, conversation rooms, and presence.
type Hub struct {
	clients       map[string]*Client
	conversations map[string]map[string]bool // conversationID -> set of clientIDs
	history       map[string][]types.ChatMessage

	register   chan *Client
	unregister chan *Client
	incoming   chan inboundMsg
	broadcast  chan castMsg
	localCast  chan castMsg // events from the bridge, no re-publish

	bridge EventBridge
	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
}

type inboundMsg struct {
	client *Client
	env    types.Envelope
}

type castMsg struct {
	conversationID string // "" means all clients
	excludeID      string // client to skip, normally the sender
	env            types.Envelope
}

// New creates a hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		conversations: make(map[string]map[string]bool),
		history:       make(map[string][]types.ChatMessage),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		incoming:      make(chan inboundMsg, 256),
		broadcast:     make(chan castMsg, 256),
		localCast:     make(chan castMsg, 256),
		logger:        logger.With().Str("component", "hub").Logger(),
		done:          make(chan struct{}),
	}
}

// SetBridge attaches a cross-instance event bridge. When set, fanned-out
// events are also forwarded to other instances.
func (h *Hub) SetBridge(b EventBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// CastLocal delivers an event from the bridge to local clients only. It
// does not re-publish to Redis, preventing infinite loops.
func (h *Hub) CastLocal(ev BridgeEvent) {
	h.localCast <- castMsg{conversationID: ev.ConversationID, env: ev.Env}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case in := <-h.incoming:
			h.handleInbound(in.client, in.env)
		case cm := <-h.broadcast:
			h.publishToBridge(cm)
			h.deliver(cm)
		case cm := <-h.localCast:
			h.deliver(cm)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop.
func (h *Hub) Stop() {
	close(h.done)
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	firstConn := !h.userOnlineLocked(c.User.ID)
	h.clients[c.ID] = c
	online := h.onlineUsersLocked(c.User.ID)
	h.mu.Unlock()

	h.logger.Info().
		Str("client_id", c.ID).
		Str("user_id", c.User.ID).
		Msg("client connected")

	// Re-announce current presence to the newcomer; a fresh client holds
	// an empty set until it hears these.
	for _, userID := range online {
		h.sendTo(c, types.KindUserStatus, types.UserStatus{UserID: userID, Online: true})
	}
	if firstConn {
		h.castAll(types.KindUserStatus, types.UserStatus{UserID: c.User.ID, Online: true})
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	for convID, members := range h.conversations {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.conversations, convID)
		}
	}
	lastConn := !h.userOnlineLocked(c.User.ID)
	h.mu.Unlock()

	c.Close()
	h.logger.Info().
		Str("client_id", c.ID).
		Str("user_id", c.User.ID).
		Msg("client disconnected")

	if lastConn {
		h.castAll(types.KindUserStatus, types.UserStatus{UserID: c.User.ID, Online: false})
	}
}

// userOnlineLocked reports whether any client of the user remains. Caller
// holds the mutex.
func (h *Hub) userOnlineLocked(userID string) bool {
	for _, c := range h.clients {
		if c.User.ID == userID {
			return true
		}
	}
	return false
}

// onlineUsersLocked lists distinct online users, excluding one user id.
// Caller holds the mutex.
func (h *Hub) onlineUsersLocked(exclude string) []string {
	seen := make(map[string]bool)
	for _, c := range h.clients {
		if c.User.ID != exclude {
			seen[c.User.ID] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Conversations returns conversation ids with their member counts.
func (h *Hub) Conversations() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make(map[string]int, len(h.conversations))
	for id, members := range h.conversations {
		result[id] = len(members)
	}
	return result
}

// OnlineUsers returns the distinct ids of connected users.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineUsersLocked("")
}

// ClientInfo describes one connected client for the info endpoint.
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Clients returns a snapshot of the connected clients.
func (h *Hub) Clients() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ClientInfo, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, ClientInfo{
			ID:          c.ID,
			UserID:      c.User.ID,
			ConnectedAt: c.connectedAt,
		})
	}
	return out
}
