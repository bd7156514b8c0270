package chat

import "errors"

var (
	// ErrConnectionFailed is reported once reconnection attempts are exhausted.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrNotConnected is returned by sends attempted without an open stream.
	ErrNotConnected = errors.New("not connected")
	// ErrDeliveryTimeout marks a send that was never echoed back.
	ErrDeliveryTimeout = errors.New("delivery timeout")
	// ErrMalformedPayload is returned for frames that are neither history nor message.
	ErrMalformedPayload = errors.New("malformed payload")

	ErrNoActiveConversation = errors.New("no active conversation")
	ErrUnknownMessage       = errors.New("unknown message")
	// ErrAlreadyDelivered is returned when a retried message was confirmed
	// by a late echo before it could be resent.
	ErrAlreadyDelivered = errors.New("message already delivered")
	ErrNoIdentity           = errors.New("current user unknown")
)
