package rpc

// Message is a conversation message as seen by local clients.
type Message struct {
	ID              string `json:"id"`
	ClientID        string `json:"clientId,omitempty"`
	SenderID        string `json:"senderId"`
	Body            string `json:"body"`
	TimestampUnixMs int64  `json:"timestampUnixMs"`
	State           string `json:"state"`
	Outgoing        bool   `json:"outgoing"`
}

// Conversation is a conversation summary.
type Conversation struct {
	ID              string   `json:"id"`
	ParticipantID   string   `json:"participantId,omitempty"`
	Name            string   `json:"name"`
	ConnectionState string   `json:"connectionState"`
	ConnectionError string   `json:"connectionError,omitempty"`
	Unread          int      `json:"unread"`
	LastMessage     *Message `json:"lastMessage,omitempty"`
}

type StatusRequest struct{}

type StatusResponse struct {
	Session           string `json:"session"`
	Status            string `json:"status"`
	StatusMessage     string `json:"statusMessage,omitempty"`
	UserID            string `json:"userId,omitempty"`
	UserName          string `json:"userName,omitempty"`
	ActiveID          string `json:"activeId,omitempty"`
	ViewState         string `json:"viewState"`
	ConversationCount int    `json:"conversationCount"`
	InFlight          int    `json:"inFlight"`
	Archived          uint64 `json:"archived"`
	DroppedEvents     uint64 `json:"droppedEvents"`
	UptimeMs          int64  `json:"uptimeMs"`
}

type LoginRequest struct {
	Token string `json:"token"`
}

type LoginResponse struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

type LogoutRequest struct{}

type LogoutResponse struct{}

type ListConversationsRequest struct{}

type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type SelectRequest struct {
	ConversationID string `json:"conversationId"`
}

type SelectResponse struct {
	Conversation Conversation `json:"conversation"`
}

type DeselectRequest struct{}

type DeselectResponse struct{}

// MessagesRequest reads a conversation. An empty ConversationID means the
// active one; a non-zero BeforeUnixMs pages back through the archive.
type MessagesRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	BeforeUnixMs   int64  `json:"beforeUnixMs,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type MessagesResponse struct {
	ConversationID string    `json:"conversationId"`
	Messages       []Message `json:"messages"`
}

type WatchRequest struct{}

// WatchEvent is a snapshot of the active conversation.
type WatchEvent struct {
	EventID          string       `json:"eventId"`
	OccurredAtUnixMs int64        `json:"occurredAtUnixMs"`
	Revision         uint64       `json:"revision"`
	Conversation     Conversation `json:"conversation"`
	Messages         []Message    `json:"messages"`
}

type SendRequest struct {
	Text string `json:"text"`
}

// SendResponse carries the inserted message. When the stream could not take
// it, Message.State is FAILED and Error explains why.
type SendResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

type RetryRequest struct {
	MessageID string `json:"messageId"`
}

type RetryResponse = SendResponse

type SearchRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversationId,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type SearchHit struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
	Snippet        string  `json:"snippet"`
}

type SearchResponse struct {
	Hits []SearchHit `json:"hits"`
}
