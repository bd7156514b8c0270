package chat

import (
	"fmt"
	"net/url"
	"strings"
)

// ConversationID identifies a conversation. It is opaque to callers and
// immutable once built.
type ConversationID string

const (
	directPrefix = "dm:"
	roomPrefix   = "room:"
)

// Direct returns the id of the direct conversation with peerID.
func Direct(peerID string) ConversationID {
	return ConversationID(directPrefix + peerID)
}

// Room returns the id of a team or room conversation.
func Room(roomID string) ConversationID {
	return ConversationID(roomPrefix + roomID)
}

// Parse validates a serialized conversation id.
func Parse(s string) (ConversationID, error) {
	id := ConversationID(s)
	if id.Peer() == "" && id.RoomID() == "" {
		return "", fmt.Errorf("invalid conversation id %q: want dm:<peer> or room:<room>", s)
	}
	return id, nil
}

// Peer returns the peer id of a direct conversation, or "".
func (id ConversationID) Peer() string {
	if after, ok := strings.CutPrefix(string(id), directPrefix); ok {
		return after
	}
	return ""
}

// RoomID returns the room id of a room conversation, or "".
func (id ConversationID) RoomID() string {
	if after, ok := strings.CutPrefix(string(id), roomPrefix); ok {
		return after
	}
	return ""
}

// Address returns the stream path for this conversation as seen by selfID.
func (id ConversationID) Address(selfID string) (string, error) {
	if peer := id.Peer(); peer != "" {
		if selfID == "" {
			return "", ErrNoIdentity
		}
		return "/ws/dm/" + url.PathEscape(peer) + "/" + url.PathEscape(selfID) + "/", nil
	}
	if room := id.RoomID(); room != "" {
		return "/ws/room/" + url.PathEscape(room) + "/", nil
	}
	return "", fmt.Errorf("invalid conversation id %q", string(id))
}
