package types

// Kind names a wire event on the realtime connection.
type Kind string

// Inbound chat and presence events.
const (
	KindMessageNew     Kind = "message:new"
	KindHistory        Kind = "conversation:history"
	KindMessageRead    Kind = "message:read"
	KindMessageUpdated Kind = "message:updated"
	KindTypingUpdate   Kind = "typing:update"
	KindUserStatus     Kind = "user:status"
)

// Inbound business events. These are fanned out to whichever consumer
// callback is currently registered for the kind.
const (
	KindContractUpdated      Kind = "contract:updated"
	KindJobUpdated           Kind = "job:updated"
	KindJobsRefresh          Kind = "jobs:refresh"
	KindProposalUpdated      Kind = "proposal:updated"
	KindProposalNew          Kind = "proposal:new"
	KindDashboardRefresh     Kind = "dashboard:refresh"
	KindUnreadUpdated        Kind = "unread:updated"
	KindContractsRefresh     Kind = "contracts:refresh"
	KindMyJobsRefresh        Kind = "myjobs:refresh"
	KindNotificationNew      Kind = "notification:new"
	KindAdminJobCreated      Kind = "admin:job-created"
	KindAdminJobUpdated      Kind = "admin:job-updated"
	KindAdminProposalCreated Kind = "admin:proposal-created"
	KindAdminContractCreated Kind = "admin:contract-created"
	KindAdminContractUpdated Kind = "admin:contract-updated"
	KindAdminPaymentCreated  Kind = "admin:payment-created"
	KindAdminPaymentUpdated  Kind = "admin:payment-updated"
	KindAdminUserCreated     Kind = "admin:user-created"
)

// Outbound actions (client to server).
const (
	KindJoinConversation     Kind = "join:conversation"
	KindLeaveConversation    Kind = "leave:conversation"
	KindMessageSend          Kind = "message:send"
	KindTypingStart          Kind = "typing:start"
	KindTypingStop           Kind = "typing:stop"
	KindConversationMarkRead Kind = "conversation:mark-read"
)

// BusinessKinds is the closed set of kinds routed through the handler
// registry rather than the derived state store.
var BusinessKinds = []Kind{
	KindContractUpdated,
	KindJobUpdated,
	KindJobsRefresh,
	KindProposalUpdated,
	KindProposalNew,
	KindDashboardRefresh,
	KindUnreadUpdated,
	KindContractsRefresh,
	KindMyJobsRefresh,
	KindNotificationNew,
	KindAdminJobCreated,
	KindAdminJobUpdated,
	KindAdminProposalCreated,
	KindAdminContractCreated,
	KindAdminContractUpdated,
	KindAdminPaymentCreated,
	KindAdminPaymentUpdated,
	KindAdminUserCreated,
}

var businessSet = func() map[Kind]bool {
	m := make(map[Kind]bool, len(BusinessKinds))
	for _, k := range BusinessKinds {
		m[k] = true
	}
	return m
}()

// IsBusiness reports whether k is a business event kind.
func IsBusiness(k Kind) bool { return businessSet[k] }
