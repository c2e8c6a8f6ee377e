// Package store keeps the client-side state derived from the event stream:
// the active conversation's message log, who is typing where, and which
// users are online. It performs no reordering and no deduplication; the log
// reflects transport delivery order.
package store

import (
	"sync"
	"time"

	"github.com/taskhive/realtime/src/types"
)

type typingKey struct {
	conversationID string
	userID         string
}

// Store is the derived state kept consistent from inbound events.
type Store struct {
	mu       sync.RWMutex
	activeID string
	log      []types.ChatMessage
	typing   map[typingKey]string // value is the typist's display name
	online   map[string]bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		typing: make(map[typingKey]string),
		online: make(map[string]bool),
	}
}

// JoinConversation makes id the active conversation. The message log is
// cleared unconditionally; it stays empty until history arrives.
func (s *Store) JoinConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = id
	s.log = nil
}

// LeaveConversation clears the active conversation and its log.
func (s *Store) LeaveConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == id {
		s.activeID = ""
	}
	s.log = nil
}

// ActiveConversation returns the id of the active conversation, or "".
func (s *Store) ActiveConversation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// AppendMessage pushes msg to the tail of the log. There is no dedup by id
// and no check against the active conversation; a late event for a
// conversation the user left is appended like any other (the log reset on
// join/leave is the only gate).
func (s *Store) AppendMessage(msg types.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, msg)
}

// SetHistory replaces the log with a conversation's replayed messages.
func (s *Store) SetHistory(msgs []types.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append([]types.ChatMessage(nil), msgs...)
}

// MarkRead flags the message with the given id as read. A miss is a no-op:
// the message may have been evicted by a conversation switch.
func (s *Store) MarkRead(messageID string, readAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.log {
		if s.log[i].ID == messageID {
			s.log[i].Read = true
			at := readAt
			s.log[i].ReadAt = &at
			return
		}
	}
}

// MergeMessageUpdate shallow-merges an edit into the matching log entry.
// The target id may arrive under either of the two historical field names;
// a miss is a no-op.
func (s *Store) MergeMessageUpdate(update types.MessageUpdate) {
	target := update.TargetID()
	if target == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.log {
		if s.log[i].ID != target {
			continue
		}
		if update.Body != nil {
			s.log[i].Body = *update.Body
		}
		if update.Kind != nil {
			s.log[i].Kind = *update.Kind
		}
		if update.FileMeta != nil {
			s.log[i].FileMeta = update.FileMeta
		}
		if update.Read != nil {
			s.log[i].Read = *update.Read
		}
		if update.ReadAt != nil {
			s.log[i].ReadAt = update.ReadAt
		}
		return
	}
}

// Messages returns a copy of the current log.
func (s *Store) Messages() []types.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.ChatMessage(nil), s.log...)
}

// SetTyping upserts a typist when IsTyping is true and removes the entry
// when false. Entries are deleted, not flagged, so the typists of a
// conversation are exactly the keys that remain.
func (s *Store) SetTyping(status types.TypingStatus) {
	key := typingKey{conversationID: status.ConversationID, userID: status.UserID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if status.IsTyping {
		s.typing[key] = status.UserName
	} else {
		delete(s.typing, key)
	}
}

// TypingUsers returns the users currently typing in a conversation.
func (s *Store) TypingUsers(conversationID string) []types.TypingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.TypingStatus
	for key, name := range s.typing {
		if key.conversationID != conversationID {
			continue
		}
		out = append(out, types.TypingStatus{
			ConversationID: key.conversationID,
			UserID:         key.userID,
			UserName:       name,
			IsTyping:       true,
		})
	}
	return out
}

// SetPresence adds or removes a user from the online set.
func (s *Store) SetPresence(userID string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if online {
		s.online[userID] = true
	} else {
		delete(s.online, userID)
	}
}

// IsOnline reports whether a user is known to be online. The set is built
// purely from pushed events, so it is empty right after a fresh connect
// until the server re-announces presence.
func (s *Store) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online[userID]
}

// OnlineUsers returns the ids of all users known to be online.
func (s *Store) OnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.online))
	for id := range s.online {
		ids = append(ids, id)
	}
	return ids
}

// Reset clears all derived state. Called on teardown.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = ""
	s.log = nil
	s.typing = make(map[typingKey]string)
	s.online = make(map[string]bool)
}
