// Package service is the surface the rest of the application uses: the
// imperative chat actions, connection status, derived-state queries, and
// the handler registration functions for business events.
package service

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/taskhive/realtime/src/conn"
	"github.com/taskhive/realtime/src/registry"
	"github.com/taskhive/realtime/src/session"
	"github.com/taskhive/realtime/src/store"
	"github.com/taskhive/realtime/src/types"
)

// Service is the consumer facade over the connection manager, the derived
// state store, and the handler registry.
type Service struct {
	manager *conn.Manager
	store   *store.Store
	reg     *registry.Registry
	tokens  session.TokenSource
	logger  zerolog.Logger
}

// New creates the facade.
func New(manager *conn.Manager, st *store.Store, reg *registry.Registry, tokens session.TokenSource, logger zerolog.Logger) *Service {
	return &Service{
		manager: manager,
		store:   st,
		reg:     reg,
		tokens:  tokens,
		logger:  logger.With().Str("component", "service").Logger(),
	}
}

// Connect reads the current bearer token and ensures the connection is
// open. Safe to call from any number of components; concurrent calls
// coalesce into one attempt.
func (s *Service) Connect() error {
	token, err := s.tokens.Token()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	return s.manager.EnsureConnected(token)
}

// Disconnect tears the connection down and resets all realtime state.
// Called when the authenticated session ends.
func (s *Service) Disconnect() {
	s.manager.Teardown()
}

// Reconnect is the manual retry after the client has given up.
func (s *Service) Reconnect() {
	s.manager.Reconnect()
}

// IsConnected reports whether the connection is open.
func (s *Service) IsConnected() bool { return s.manager.IsConnected() }

// ConnectionGaveUp reports whether automatic reconnection has stopped and
// a manual Reconnect is required.
func (s *Service) ConnectionGaveUp() bool { return s.manager.GaveUp() }

// JoinConversation switches the active conversation. The message log is
// cleared immediately; it repopulates when the history event arrives, which
// is not synchronous with this call.
func (s *Service) JoinConversation(conversationID string) {
	if !s.manager.IsConnected() {
		s.drop(types.KindJoinConversation)
		return
	}
	s.store.JoinConversation(conversationID)
	s.send(types.KindJoinConversation, types.ConversationRef{ConversationID: conversationID})
}

// LeaveConversation leaves the conversation and clears the log.
func (s *Service) LeaveConversation(conversationID string) {
	if !s.manager.IsConnected() {
		s.drop(types.KindLeaveConversation)
		return
	}
	s.store.LeaveConversation(conversationID)
	s.send(types.KindLeaveConversation, types.ConversationRef{ConversationID: conversationID})
}

// SendMessage sends a chat message to a conversation.
func (s *Service) SendMessage(msg types.SendMessage) {
	s.send(types.KindMessageSend, msg)
}

// StartTyping announces that the current user is typing.
func (s *Service) StartTyping(conversationID string) {
	s.send(types.KindTypingStart, types.ConversationRef{ConversationID: conversationID})
}

// StopTyping announces that the current user stopped typing.
func (s *Service) StopTyping(conversationID string) {
	s.send(types.KindTypingStop, types.ConversationRef{ConversationID: conversationID})
}

// MarkAsRead marks one message as read.
func (s *Service) MarkAsRead(conversationID, messageID string) {
	s.send(types.KindMessageRead, types.MessageRef{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
}

// MarkConversationAsRead marks every message in a conversation as read.
func (s *Service) MarkConversationAsRead(conversationID string) {
	s.send(types.KindConversationMarkRead, types.ConversationRef{ConversationID: conversationID})
}

// Messages returns the active conversation's message log.
func (s *Service) Messages() []types.ChatMessage { return s.store.Messages() }

// IsUserOnline reports whether a user is known to be online.
func (s *Service) IsUserOnline(userID string) bool { return s.store.IsOnline(userID) }

// GetTypingUsers returns who is currently typing in a conversation.
func (s *Service) GetTypingUsers(conversationID string) []types.TypingStatus {
	return s.store.TypingUsers(conversationID)
}

// RegisterHandler stores h as the sole callback for kind; a later
// registration for the same kind replaces it.
func (s *Service) RegisterHandler(kind types.Kind, h types.Handler) {
	s.reg.Register(kind, h)
	s.logger.Debug().Str("kind", string(kind)).Msg("handler registered")
}

// UnregisterHandler removes the callback for kind.
func (s *Service) UnregisterHandler(kind types.Kind) {
	s.reg.Unregister(kind)
}

// Typed registration helpers, one per business event kind.

func (s *Service) RegisterContractUpdatedHandler(h types.Handler) {
	s.RegisterHandler(types.KindContractUpdated, h)
}

func (s *Service) RegisterJobUpdatedHandler(h types.Handler) {
	s.RegisterHandler(types.KindJobUpdated, h)
}

func (s *Service) RegisterJobsRefreshHandler(h types.Handler) {
	s.RegisterHandler(types.KindJobsRefresh, h)
}

func (s *Service) RegisterProposalUpdatedHandler(h types.Handler) {
	s.RegisterHandler(types.KindProposalUpdated, h)
}

func (s *Service) RegisterProposalNewHandler(h types.Handler) {
	s.RegisterHandler(types.KindProposalNew, h)
}

func (s *Service) RegisterDashboardRefreshHandler(h types.Handler) {
	s.RegisterHandler(types.KindDashboardRefresh, h)
}

func (s *Service) RegisterUnreadUpdatedHandler(h types.Handler) {
	s.RegisterHandler(types.KindUnreadUpdated, h)
}

func (s *Service) RegisterContractsRefreshHandler(h types.Handler) {
	s.RegisterHandler(types.KindContractsRefresh, h)
}

func (s *Service) RegisterMyJobsRefreshHandler(h types.Handler) {
	s.RegisterHandler(types.KindMyJobsRefresh, h)
}

func (s *Service) RegisterNotificationNewHandler(h types.Handler) {
	s.RegisterHandler(types.KindNotificationNew, h)
}

func (s *Service) RegisterAdminJobCreatedHandler(h types.Handler) {
	s.RegisterHandler(types.KindAdminJobCreated, h)
}

func (s *Service) RegisterAdminJobUpdatedHandler(h types.Handler) {
	s.RegisterHandler(types.KindAdminJobUpdated, h)
}

func (s *Service) RegisterAdminProposalCreatedHandler(h types.Handler) {
	s.RegisterHandler(types.KindAdminProposalCreated, h)
}

func (s *Service) RegisterAdminContractCreatedHandler(h types.Handler) {
	s.RegisterHandler(types.KindAdminContractCreated, h)
}

func (s *Service) RegisterAdminContractUpdatedHandler(h types.Handler) {
	s.RegisterHandler(types.KindAdminContractUpdated, h)
}

func (s *Service) RegisterAdminPaymentCreatedHandler(h types.Handler) {
	s.RegisterHandler(types.KindAdminPaymentCreated, h)
}

func (s *Service) RegisterAdminPaymentUpdatedHandler(h types.Handler) {
	s.RegisterHandler(types.KindAdminPaymentUpdated, h)
}

func (s *Service) RegisterAdminUserCreatedHandler(h types.Handler) {
	s.RegisterHandler(types.KindAdminUserCreated, h)
}

// send performs one outbound action. Actions while disconnected are
// dropped, not queued; the caller re-issues after reconnection if still
// relevant.
func (s *Service) send(event types.Kind, data any) {
	if err := s.manager.Send(event, data); err != nil {
		s.drop(event)
	}
}

func (s *Service) drop(event types.Kind) {
	s.logger.Debug().Str("event", string(event)).Msg("dropped, not connected")
}
