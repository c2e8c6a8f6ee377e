package types

import (
	"encoding/json"
	"time"
)

// Envelope is the wire format for every event on the realtime connection.
type Envelope struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an Envelope for sending.
func NewEnvelope(event Kind, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// MessageKind classifies the body of a chat message.
type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageImage  MessageKind = "image"
	MessageFile   MessageKind = "file"
	MessageSystem MessageKind = "system"
)

// Sender identifies the author of a chat message.
type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// FileMeta describes the attachment of an image or file message.
type FileMeta struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
	Mime string `json:"mime,omitempty"`
}

// ChatMessage is one entry in a conversation's message log.
type ChatMessage struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	Sender         Sender      `json:"sender"`
	Body           string      `json:"body"`
	Kind           MessageKind `json:"kind"`
	FileMeta       *FileMeta   `json:"fileMeta,omitempty"`
	Read           bool        `json:"read"`
	ReadAt         *time.Time  `json:"readAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// HistoryPayload replays the recent messages of a conversation after a join.
type HistoryPayload struct {
	ConversationID string        `json:"conversationId"`
	Messages       []ChatMessage `json:"messages"`
}

// ReadReceipt marks a single message as read.
type ReadReceipt struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	ReadAt         time.Time `json:"readAt"`
}

// MessageUpdate carries an edit to an already-delivered message. The server
// has historically used both "id" and "messageId" for the target; they name
// the same logical identifier and either may be set.
type MessageUpdate struct {
	ID        string       `json:"id,omitempty"`
	MessageID string       `json:"messageId,omitempty"`
	Body      *string      `json:"body,omitempty"`
	Kind      *MessageKind `json:"kind,omitempty"`
	FileMeta  *FileMeta    `json:"fileMeta,omitempty"`
	Read      *bool        `json:"read,omitempty"`
	ReadAt    *time.Time   `json:"readAt,omitempty"`
}

// TargetID resolves the updated message's identifier.
func (u MessageUpdate) TargetID() string {
	if u.ID != "" {
		return u.ID
	}
	return u.MessageID
}

// TypingStatus reports that a user started or stopped typing in a conversation.
type TypingStatus struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

// UserStatus announces a user going online or offline.
type UserStatus struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// SendMessage is the outbound payload for message:send.
type SendMessage struct {
	ConversationID string      `json:"conversationId"`
	Body           string      `json:"body"`
	Kind           MessageKind `json:"kind"`
	FileMeta       *FileMeta   `json:"fileMeta,omitempty"`
}

// ConversationRef addresses a conversation in join/leave/typing/mark-read actions.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// MessageRef addresses one message for a read action.
type MessageRef struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// Handler is a consumer callback for a business event kind. It receives the
// raw event payload.
type Handler func(data json.RawMessage)

// Conn abstracts the underlying websocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}
