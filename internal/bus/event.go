package bus

import "time"

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Prefixes group them for subscribers.
const (
	SessionStatusChanged = "session.status_changed"

	ConversationUpserted   = "conversation.upserted"
	ConversationSelected   = "conversation.selected"
	ConversationConnection = "conversation.connection"
	ConversationView       = "conversation.view_changed"

	MessageAppended   = "message.appended"
	MessageReconciled = "message.reconciled"
	MessageSendFailed = "message.send_failed"
	MessageMalformed  = "message.malformed"
)

// SendFailure is the payload of MessageSendFailed.
type SendFailure struct {
	ConversationID string
	ClientID       string
	Err            string
}
