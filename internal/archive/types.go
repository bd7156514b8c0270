package archive

import "github.com/matheus3301/precinct/internal/chat"

// Hit is a search result.
type Hit struct {
	ConversationID chat.ConversationID
	Message        chat.Message
	Snippet        string
}
