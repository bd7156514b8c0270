package api

import (
	"errors"

	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/portal"
	"github.com/matheus3301/precinct/internal/rpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func messageToRPC(m chat.Message) rpc.Message {
	return rpc.Message{
		ID:              m.ID,
		ClientID:        m.ClientID,
		SenderID:        m.SenderID,
		Body:            m.Body,
		TimestampUnixMs: m.Timestamp.UnixMilli(),
		State:           string(m.State),
		Outgoing:        m.Outgoing,
	}
}

func messagesToRPC(msgs []chat.Message) []rpc.Message {
	out := make([]rpc.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToRPC(m))
	}
	return out
}

func conversationToRPC(c chat.Conversation) rpc.Conversation {
	out := rpc.Conversation{
		ID:              string(c.ID),
		ParticipantID:   c.ParticipantID,
		Name:            c.DisplayName(),
		ConnectionState: string(c.ConnectionState),
		ConnectionError: c.ConnectionError,
		Unread:          c.Unread,
	}
	if c.LastMessage != nil {
		m := messageToRPC(*c.LastMessage)
		out.LastMessage = &m
	}
	return out
}

// toStatus maps domain errors to gRPC codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, chat.ErrNoActiveConversation), errors.Is(err, chat.ErrNoIdentity),
		errors.Is(err, chat.ErrAlreadyDelivered):
		code = codes.FailedPrecondition
	case errors.Is(err, chat.ErrNotConnected), errors.Is(err, chat.ErrConnectionFailed):
		code = codes.Unavailable
	case errors.Is(err, chat.ErrUnknownMessage):
		code = codes.NotFound
	case errors.Is(err, portal.ErrUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, chat.ErrMalformedPayload):
		code = codes.DataLoss
	default:
		code = codes.Internal
	}
	return grpcstatus.Error(code, err.Error())
}
