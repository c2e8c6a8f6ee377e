package hub

import (
	"github.com/taskhive/realtime/src/types"
)

// Publish injects a business event from the marketplace services and fans
// it out to every connected client on every instance. Safe to call from
// any goroutine.
func (h *Hub) Publish(kind types.Kind, data any) error {
	env, err := types.NewEnvelope(kind, data)
	if err != nil {
		return err
	}
	h.broadcast <- castMsg{env: env}
	return nil
}

// PublishToConversation injects an event scoped to one conversation's
// members. Safe to call from any goroutine.
func (h *Hub) PublishToConversation(conversationID string, kind types.Kind, data any) error {
	env, err := types.NewEnvelope(kind, data)
	if err != nil {
		return err
	}
	h.broadcast <- castMsg{conversationID: conversationID, env: env}
	return nil
}

// deliver fans an envelope out to the local recipients of cm.
func (h *Hub) deliver(cm castMsg) {
	h.mu.RLock()
	var ids []string
	if cm.conversationID == "" {
		ids = make([]string, 0, len(h.clients))
		for id := range h.clients {
			ids = append(ids, id)
		}
	} else {
		members, ok := h.conversations[cm.conversationID]
		if !ok {
			h.mu.RUnlock()
			return
		}
		ids = make([]string, 0, len(members))
		for id := range members {
			ids = append(ids, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range ids {
		if id == cm.excludeID {
			continue
		}
		h.mu.RLock()
		client, exists := h.clients[id]
		h.mu.RUnlock()
		if !exists {
			continue
		}
		h.enqueue(client, cm.env)
	}
}

// castConversation builds and delivers an event to a conversation's local
// members and relays it over the bridge. Runs on the hub loop goroutine.
func (h *Hub) castConversation(conversationID, excludeID string, kind types.Kind, data any) {
	env, err := types.NewEnvelope(kind, data)
	if err != nil {
		h.logger.Error().Err(err).Str("kind", string(kind)).Msg("encode failed")
		return
	}
	cm := castMsg{conversationID: conversationID, excludeID: excludeID, env: env}
	h.publishToBridge(cm)
	h.deliver(cm)
}

// castAll builds and delivers an event to every local client and relays it
// over the bridge. Runs on the hub loop goroutine.
func (h *Hub) castAll(kind types.Kind, data any) {
	env, err := types.NewEnvelope(kind, data)
	if err != nil {
		h.logger.Error().Err(err).Str("kind", string(kind)).Msg("encode failed")
		return
	}
	cm := castMsg{env: env}
	h.publishToBridge(cm)
	h.deliver(cm)
}

// sendTo delivers an event to a single client.
func (h *Hub) sendTo(c *Client, kind types.Kind, data any) {
	env, err := types.NewEnvelope(kind, data)
	if err != nil {
		h.logger.Error().Err(err).Str("kind", string(kind)).Msg("encode failed")
		return
	}
	h.enqueue(c, env)
}

func (h *Hub) enqueue(c *Client, env types.Envelope) {
	select {
	case c.Send <- env:
	default:
		h.logger.Warn().Str("client_id", c.ID).Msg("send buffer full, dropping")
	}
}

// publishToBridge forwards an event to the bridge if one is attached.
func (h *Hub) publishToBridge(cm castMsg) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(BridgeEvent{ConversationID: cm.conversationID, Env: cm.env}); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
	}
}
