package chat

import (
	"strings"
	"time"
)

// DeliveryState tracks an outbound message through confirmation.
type DeliveryState string

const (
	Pending   DeliveryState = "PENDING"
	Confirmed DeliveryState = "CONFIRMED"
	Failed    DeliveryState = "FAILED"
)

// ConnectionState is the per-conversation stream state.
type ConnectionState string

const (
	Disconnected ConnectionState = "DISCONNECTED"
	Connecting   ConnectionState = "CONNECTING"
	Open         ConnectionState = "OPEN"
	Reconnecting ConnectionState = "RECONNECTING"
)

// ProvisionalPrefix namespaces locally generated message ids.
const ProvisionalPrefix = "local-"

// IsProvisional reports whether id was issued locally rather than by the server.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// Message is a single entry of a conversation history.
type Message struct {
	ID        string
	ClientID  string // provisional id echoed back by the server, if any
	SenderID  string
	Body      string
	Timestamp time.Time
	State     DeliveryState
	Outgoing  bool
}

// Conversation holds the metadata of a conversation. Its messages live in the store.
type Conversation struct {
	ID              ConversationID
	ParticipantID   string
	ParticipantName string
	ConnectionState ConnectionState
	ConnectionError string
	Unread          int
	LastMessage     *Message
}

// DisplayName returns the participant name, falling back to the id.
func (c Conversation) DisplayName() string {
	if c.ParticipantName != "" {
		return c.ParticipantName
	}
	if c.ParticipantID != "" {
		return c.ParticipantID
	}
	return string(c.ID)
}

// CurrentUser is the authenticated portal user.
type CurrentUser struct {
	ID   string
	Name string
}
