package wire

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/precinct/internal/chat"
)

var received = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDecodeTaggedHistory(t *testing.T) {
	frame := `{"kind":"history","history":[
		{"id":1,"senderId":3,"text":"hello","timestamp":"2025-03-01T10:00:00Z"},
		{"id":"2","senderId":"7","text":"hi","timestamp":"2025-03-01T10:00:01.250Z"}
	]}`
	p, err := Decode([]byte(frame), received)
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindHistory {
		t.Errorf("Kind = %q, want history", p.Kind)
	}
	if len(p.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(p.Messages))
	}
	if p.Messages[0].ID != "1" || p.Messages[0].SenderID != "3" {
		t.Errorf("numeric ids not normalised: %+v", p.Messages[0])
	}
	if p.Messages[1].Timestamp.Nanosecond() != 250_000_000 {
		t.Errorf("fractional seconds lost: %v", p.Messages[1].Timestamp)
	}
	for _, m := range p.Messages {
		if m.State != chat.Confirmed {
			t.Errorf("State = %s, want CONFIRMED", m.State)
		}
	}
}

func TestDecodeLegacyShapes(t *testing.T) {
	p, err := Decode([]byte(`{"history":[]}`), received)
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindHistory || len(p.Messages) != 0 {
		t.Errorf("empty legacy history decoded as %+v", p)
	}

	p, err = Decode([]byte(`{"id":55,"senderId":7,"text":"on my way","timestamp":"2025-03-01T10:00:00Z"}`), received)
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != KindMessage || p.Messages[0].ID != "55" || p.Messages[0].Body != "on my way" {
		t.Errorf("bare message decoded as %+v", p)
	}
}

func TestDecodeClientIDEcho(t *testing.T) {
	p, err := Decode([]byte(`{"kind":"message","id":55,"clientId":"local-1","senderId":7,"text":"x"}`), received)
	if err != nil {
		t.Fatal(err)
	}
	m := p.Messages[0]
	if m.ClientID != "local-1" {
		t.Errorf("ClientID = %q, want local-1", m.ClientID)
	}
	if !m.Timestamp.Equal(received) {
		t.Errorf("missing timestamp should default to receive time, got %v", m.Timestamp)
	}
}

func TestDecodeTimestampForms(t *testing.T) {
	want := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ts   string
		skew time.Duration
	}{
		{"rfc3339", `"2025-03-01T10:00:00Z"`, 0},
		{"offset", `"2025-03-01T07:00:00-03:00"`, 0},
		{"naive", `"2025-03-01T10:00:00.000000"`, 0},
		{"space", `"2025-03-01 10:00:00"`, 0},
		{"millis", `1740823200000`, 0},
		{"seconds", `1740823200`, 0},
		{"fractional seconds", `1740823200.5`, 500 * time.Millisecond},
		{"fractional millis", `1740823200250.0`, 250 * time.Millisecond},
		{"exponent", `1.7408232e9`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := `{"kind":"message","id":1,"senderId":1,"text":"x","timestamp":` + tt.ts + `}`
			p, err := Decode([]byte(frame), received)
			if err != nil {
				t.Fatal(err)
			}
			if got := p.Messages[0].Timestamp; !got.Equal(want.Add(tt.skew)) {
				t.Errorf("Timestamp = %v, want %v", got, want.Add(tt.skew))
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	frames := []string{
		`not json`,
		`[]`,
		`{}`,
		`{"text":"no sender"}`,
		`{"kind":"typing"}`,
		`{"kind":"history"}`,
		`{"kind":"history","history":{"id":1}}`,
		`{"kind":"message","senderId":1,"text":"x","timestamp":"yesterday"}`,
		`{"kind":"message","senderId":{"a":1},"text":"x"}`,
		`{"kind":"message","id":"local-9","senderId":1,"text":"x"}`,
		`{"history":[{"id":1,"text":"missing sender"}]}`,
	}
	for _, f := range frames {
		if _, err := Decode([]byte(f), received); !errors.Is(err, chat.ErrMalformedPayload) {
			t.Errorf("Decode(%s) error = %v, want ErrMalformedPayload", f, err)
		}
	}
}

func TestDecodeHistorySkipsBadEntries(t *testing.T) {
	frame := `{"kind":"history","history":[
		{"id":1,"senderId":3,"text":"a","timestamp":"2025-03-01T10:00:00Z"},
		{"id":2,"text":"no sender"},
		"not an object",
		{"id":4,"senderId":3,"text":"d","timestamp":1740819720.5}
	]}`
	p, err := Decode([]byte(frame), received)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Messages) != 2 || p.Messages[0].ID != "1" || p.Messages[1].ID != "4" {
		t.Fatalf("messages = %+v", p.Messages)
	}
	if len(p.Skipped) != 2 {
		t.Fatalf("skipped = %v, want 2 errors", p.Skipped)
	}
	for _, err := range p.Skipped {
		if !errors.Is(err, chat.ErrMalformedPayload) {
			t.Errorf("skipped error %v does not wrap ErrMalformedPayload", err)
		}
	}
	if got := p.Messages[1].Timestamp; got.Nanosecond() != 500_000_000 {
		t.Errorf("fractional timestamp = %v", got)
	}
}

func TestDecodeMissingIDIsStable(t *testing.T) {
	frame := []byte(`{"senderId":3,"text":"hello","timestamp":"2025-03-01T10:00:00Z"}`)
	a, err := Decode(frame, received)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Decode(frame, received.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if a.Messages[0].ID == "" || a.Messages[0].ID != b.Messages[0].ID {
		t.Errorf("derived ids differ: %q vs %q", a.Messages[0].ID, b.Messages[0].ID)
	}
}

func TestEncodeOutbound(t *testing.T) {
	out := NewOutbound(chat.Message{
		ID:        "local-1",
		SenderID:  "7",
		Body:      "Need backup",
		Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	data, err := Encode(out)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["kind"] != "message" || got["clientId"] != "local-1" || got["text"] != "Need backup" {
		t.Errorf("unexpected frame %s", data)
	}
	if got["senderId"] != float64(7) {
		t.Errorf("senderId = %#v, want number 7", got["senderId"])
	}
	if got["timestamp"] != "2025-03-01T10:00:00Z" {
		t.Errorf("timestamp = %v", got["timestamp"])
	}
}

func TestEncodeNonNumericSender(t *testing.T) {
	data, err := Encode(Outbound{ClientID: "local-2", SenderID: "officer-12", Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["senderId"] != "officer-12" {
		t.Errorf("senderId = %#v", got["senderId"])
	}
}
