// Package wire is the JSON codec for frames exchanged on a conversation stream.
//
// Inbound frames carry an explicit kind tag:
//
//	{"kind":"history","history":[{...}, ...]}
//	{"kind":"message","id":55,"clientId":"local-1","senderId":7,"text":"hi","timestamp":"..."}
//
// Untagged frames from older servers are still accepted: an object with a
// "history" field is a snapshot, an object with a "senderId" is a message.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"time"

	"github.com/matheus3301/precinct/internal/chat"
)

// Kind discriminates inbound frames.
type Kind string

const (
	KindHistory Kind = "history"
	KindMessage Kind = "message"
)

// Payload is a decoded inbound frame. Messages are Confirmed and in wire order.
type Payload struct {
	Kind     Kind
	Messages []chat.Message
	// Skipped has one error per history entry left out of Messages.
	Skipped []error
}

type wireMessage struct {
	ID        flexString      `json:"id"`
	ClientID  string          `json:"clientId,omitempty"`
	SenderID  flexString      `json:"senderId"`
	Text      string          `json:"text"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

type envelope struct {
	Kind    Kind            `json:"kind,omitempty"`
	History json.RawMessage `json:"history,omitempty"`
	wireMessage
}

// Decode parses an inbound frame. Messages without a timestamp are stamped
// with receivedAt. Any frame that is neither a history snapshot nor a
// message yields an error wrapping chat.ErrMalformedPayload.
func Decode(data []byte, receivedAt time.Time) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", chat.ErrMalformedPayload, err)
	}

	kind := env.Kind
	if kind == "" {
		switch {
		case env.History != nil:
			kind = KindHistory
		case env.SenderID.set:
			kind = KindMessage
		default:
			return Payload{}, fmt.Errorf("%w: no kind, history or senderId", chat.ErrMalformedPayload)
		}
	}

	switch kind {
	case KindHistory:
		if env.History == nil || bytes.Equal(env.History, []byte("null")) {
			return Payload{}, fmt.Errorf("%w: history frame without history", chat.ErrMalformedPayload)
		}
		msgs, skipped, err := DecodeMessages(env.History, receivedAt)
		if err != nil {
			return Payload{}, fmt.Errorf("history: %w", err)
		}
		return Payload{Kind: KindHistory, Messages: msgs, Skipped: skipped}, nil
	case KindMessage:
		m, err := env.wireMessage.toMessage(receivedAt)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %v", chat.ErrMalformedPayload, err)
		}
		return Payload{Kind: KindMessage, Messages: []chat.Message{m}}, nil
	default:
		return Payload{}, fmt.Errorf("%w: unknown kind %q", chat.ErrMalformedPayload, kind)
	}
}

// DecodeMessages parses a JSON array of messages in the stream's message
// shape. The portal's REST endpoints embed the same shape. Entries that do
// not decode are left out and reported in skipped. err is set only when
// the array itself is unreadable or no entry survives.
func DecodeMessages(data []byte, receivedAt time.Time) (msgs []chat.Message, skipped []error, err error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", chat.ErrMalformedPayload, err)
	}
	msgs = make([]chat.Message, 0, len(entries))
	for i, raw := range entries {
		var e wireMessage
		if err := json.Unmarshal(raw, &e); err != nil {
			skipped = append(skipped, fmt.Errorf("%w: [%d]: %v", chat.ErrMalformedPayload, i, err))
			continue
		}
		m, err := e.toMessage(receivedAt)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("%w: [%d]: %v", chat.ErrMalformedPayload, i, err))
			continue
		}
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 && len(skipped) > 0 {
		return nil, skipped, fmt.Errorf("all %d entries rejected, first: %w", len(skipped), skipped[0])
	}
	return msgs, skipped, nil
}

func (w wireMessage) toMessage(receivedAt time.Time) (chat.Message, error) {
	if !w.SenderID.set || w.SenderID.value == "" {
		return chat.Message{}, fmt.Errorf("missing senderId")
	}
	ts, err := parseTimestamp(w.Timestamp, receivedAt)
	if err != nil {
		return chat.Message{}, err
	}
	id := w.ID.value
	if id == "" {
		id = contentID(w.SenderID.value, ts, w.Text)
	}
	if chat.IsProvisional(id) {
		return chat.Message{}, fmt.Errorf("server id %q uses the provisional namespace", id)
	}
	return chat.Message{
		ID:        id,
		ClientID:  w.ClientID,
		SenderID:  w.SenderID.value,
		Body:      w.Text,
		Timestamp: ts,
		State:     chat.Confirmed,
	}, nil
}

// contentID derives a stable id for messages the server sent without one,
// so replays of the same message stay idempotent.
func contentID(sender string, ts time.Time, text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sender))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.FormatInt(ts.UnixNano(), 10)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(text))
	return "h-" + strconv.FormatUint(h.Sum64(), 16)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(raw json.RawMessage, receivedAt time.Time) (time.Time, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return receivedAt.UTC(), nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("timestamp: %v", err)
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %v", err)
	}
	// Values past 1e11 are milliseconds, below are seconds.
	if v, err := n.Int64(); err == nil {
		if v > 1e11 {
			return time.UnixMilli(v).UTC(), nil
		}
		return time.Unix(v, 0).UTC(), nil
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return time.Time{}, fmt.Errorf("timestamp %q: not a number", n)
	}
	if f > 1e11 {
		f /= 1e3
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
}

// Outbound is a message written to the stream by the local user.
type Outbound struct {
	ClientID  string
	SenderID  string
	Text      string
	Timestamp time.Time
}

// NewOutbound builds the wire form of a provisional message.
func NewOutbound(m chat.Message) Outbound {
	return Outbound{
		ClientID:  m.ID,
		SenderID:  m.SenderID,
		Text:      m.Body,
		Timestamp: m.Timestamp,
	}
}

func (o Outbound) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind      Kind       `json:"kind"`
		ClientID  string     `json:"clientId"`
		SenderID  flexString `json:"senderId"`
		Text      string     `json:"text"`
		Timestamp string     `json:"timestamp"`
	}{
		Kind:      KindMessage,
		ClientID:  o.ClientID,
		SenderID:  flexString{value: o.SenderID, set: true},
		Text:      o.Text,
		Timestamp: o.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// Encode serializes an outbound message.
func Encode(o Outbound) ([]byte, error) {
	return json.Marshal(o)
}

// flexString accepts ids sent either as JSON strings or JSON numbers.
type flexString struct {
	value string
	set   bool
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f.value, f.set = s, true
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	f.value, f.set = n.String(), true
	return nil
}

// MarshalJSON writes canonical decimal ids as numbers, anything else as a string.
func (f flexString) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseUint(f.value, 10, 64); err == nil && strconv.FormatUint(n, 10) == f.value {
		return []byte(f.value), nil
	}
	return json.Marshal(f.value)
}
