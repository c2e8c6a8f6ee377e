package hub

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/taskhive/realtime/src/types"
)

// handleInbound processes one client action. Runs on the hub loop goroutine.
func (h *Hub) handleInbound(c *Client, env types.Envelope) {
	switch env.Event {
	case types.KindJoinConversation:
		var ref types.ConversationRef
		if !h.decode(env, &ref) {
			return
		}
		h.joinConversation(c, ref.ConversationID)
	case types.KindLeaveConversation:
		var ref types.ConversationRef
		if !h.decode(env, &ref) {
			return
		}
		h.leaveConversation(c, ref.ConversationID)
	case types.KindMessageSend:
		var msg types.SendMessage
		if !h.decode(env, &msg) {
			return
		}
		h.sendMessage(c, msg)
	case types.KindTypingStart, types.KindTypingStop:
		var ref types.ConversationRef
		if !h.decode(env, &ref) {
			return
		}
		h.castConversation(ref.ConversationID, c.ID, types.KindTypingUpdate, types.TypingStatus{
			ConversationID: ref.ConversationID,
			UserID:         c.User.ID,
			UserName:       c.User.Name,
			IsTyping:       env.Event == types.KindTypingStart,
		})
	case types.KindMessageRead:
		var ref types.MessageRef
		if !h.decode(env, &ref) {
			return
		}
		h.markRead(c, ref.ConversationID, ref.MessageID)
	case types.KindConversationMarkRead:
		var ref types.ConversationRef
		if !h.decode(env, &ref) {
			return
		}
		h.markConversationRead(c, ref.ConversationID)
	default:
		h.logger.Debug().
			Str("event", string(env.Event)).
			Str("client_id", c.ID).
			Msg("unknown action")
	}
}

func (h *Hub) joinConversation(c *Client, conversationID string) {
	if conversationID == "" {
		return
	}
	h.mu.Lock()
	if h.conversations[conversationID] == nil {
		h.conversations[conversationID] = make(map[string]bool)
	}
	h.conversations[conversationID][c.ID] = true
	replay := append([]types.ChatMessage(nil), h.history[conversationID]...)
	h.mu.Unlock()

	h.sendTo(c, types.KindHistory, types.HistoryPayload{
		ConversationID: conversationID,
		Messages:       replay,
	})
}

func (h *Hub) leaveConversation(c *Client, conversationID string) {
	h.mu.Lock()
	members, ok := h.conversations[conversationID]
	if ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.conversations, conversationID)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) sendMessage(c *Client, in types.SendMessage) {
	if in.ConversationID == "" {
		return
	}
	kind := in.Kind
	if kind == "" {
		kind = types.MessageText
	}
	msg := types.ChatMessage{
		ID:             uuid.New().String(),
		ConversationID: in.ConversationID,
		Sender:         c.User,
		Body:           in.Body,
		Kind:           kind,
		FileMeta:       in.FileMeta,
		CreatedAt:      time.Now().UTC(),
	}

	h.mu.Lock()
	log := append(h.history[in.ConversationID], msg)
	if len(log) > historyLimit {
		log = log[len(log)-historyLimit:]
	}
	h.history[in.ConversationID] = log
	h.mu.Unlock()

	h.castConversation(in.ConversationID, "", types.KindMessageNew, msg)
}

func (h *Hub) markRead(c *Client, conversationID, messageID string) {
	now := time.Now().UTC()

	h.mu.Lock()
	log := h.history[conversationID]
	found := false
	for i := range log {
		if log[i].ID == messageID {
			log[i].Read = true
			at := now
			log[i].ReadAt = &at
			found = true
			break
		}
	}
	h.mu.Unlock()

	if !found {
		return
	}
	h.castConversation(conversationID, c.ID, types.KindMessageRead, types.ReadReceipt{
		ConversationID: conversationID,
		MessageID:      messageID,
		ReadAt:         now,
	})
}

func (h *Hub) markConversationRead(c *Client, conversationID string) {
	now := time.Now().UTC()

	h.mu.Lock()
	log := h.history[conversationID]
	var marked []string
	for i := range log {
		if log[i].Read || log[i].Sender.ID == c.User.ID {
			continue
		}
		log[i].Read = true
		at := now
		log[i].ReadAt = &at
		marked = append(marked, log[i].ID)
	}
	h.mu.Unlock()

	for _, id := range marked {
		h.castConversation(conversationID, c.ID, types.KindMessageRead, types.ReadReceipt{
			ConversationID: conversationID,
			MessageID:      id,
			ReadAt:         now,
		})
	}
}

func (h *Hub) decode(env types.Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		h.logger.Error().Err(err).Str("event", string(env.Event)).Msg("bad payload")
		return false
	}
	return true
}
