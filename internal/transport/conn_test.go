package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/precinct/internal/bus"
	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/retry"
	"github.com/matheus3301/precinct/internal/wire"
	"go.uber.org/zap"
)

func TestStreamURL(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		want string
	}{
		{
			name: "direct over http",
			p:    Params{BaseURL: "http://portal.local", Conversation: chat.Direct("3"), UserID: "7", Token: "abc"},
			want: "ws://portal.local/ws/dm/3/7/?token=abc",
		},
		{
			name: "https base with path",
			p:    Params{BaseURL: "https://portal.local/api/", Conversation: chat.Direct("3"), UserID: "7"},
			want: "wss://portal.local/api/ws/dm/3/7/",
		},
		{
			name: "room",
			p:    Params{BaseURL: "ws://portal.local", Conversation: chat.Room("desk"), Token: "a b"},
			want: "ws://portal.local/ws/room/desk/?token=a+b",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StreamURL(tt.p)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("StreamURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStreamURLErrors(t *testing.T) {
	if _, err := StreamURL(Params{BaseURL: "http://x", Conversation: chat.Direct("3")}); !errors.Is(err, chat.ErrNoIdentity) {
		t.Errorf("missing user id error = %v, want ErrNoIdentity", err)
	}
	if _, err := StreamURL(Params{BaseURL: "ftp://x", Conversation: chat.Direct("3"), UserID: "7"}); err == nil {
		t.Error("ftp scheme should be rejected")
	}
}

type recorder struct {
	frames chan string
	states chan stateChange
}

type stateChange struct {
	state chat.ConnectionState
	err   error
}

func newRecorder() *recorder {
	return &recorder{
		frames: make(chan string, 16),
		states: make(chan stateChange, 64),
	}
}

func (r *recorder) handler() Handler {
	return Handler{
		OnPayload:     func(data []byte) { r.frames <- string(data) },
		OnStateChange: func(s chat.ConnectionState, err error) { r.states <- stateChange{s, err} },
	}
}

func (r *recorder) waitState(t *testing.T, want chat.ConnectionState) stateChange {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case sc := <-r.states:
			if sc.state == want {
				return sc
			}
		case <-deadline:
			t.Fatalf("timeout waiting for state %s", want)
		}
	}
}

func (r *recorder) waitFrame(t *testing.T) string {
	t.Helper()
	select {
	case f := <-r.frames:
		return f
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for frame")
	}
	return ""
}

func testServer(t *testing.T, handle func(ctx context.Context, c *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = c.CloseNow() }()
		handle(r.Context(), c, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testDialer(attempts int) *Dialer {
	return NewDialer(Options{
		Backoff:      retry.Config{MaxAttempts: attempts, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2},
		WriteTimeout: time.Second,
		ReadLimit:    1 << 20,
	}, bus.New(), zap.NewNop())
}

// drain keeps reading so pings and close frames are answered.
func drain(ctx context.Context, c *websocket.Conn) {
	for {
		if _, _, err := c.Read(ctx); err != nil {
			return
		}
	}
}

func TestOpenDeliversPushedHistory(t *testing.T) {
	tokens := make(chan string, 1)
	paths := make(chan string, 1)
	srv := testServer(t, func(ctx context.Context, c *websocket.Conn, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		paths <- r.URL.Path
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"kind":"history","history":[]}`))
		drain(ctx, c)
	})

	rec := newRecorder()
	conn, err := testDialer(3).Open(context.Background(), Params{
		BaseURL: srv.URL, Conversation: chat.Direct("3"), UserID: "7", Token: "secret",
	}, rec.handler())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	rec.waitState(t, chat.Open)
	if got := rec.waitFrame(t); got != `{"kind":"history","history":[]}` {
		t.Errorf("frame = %s", got)
	}
	if got := <-tokens; got != "secret" {
		t.Errorf("token = %q, want secret", got)
	}
	if got := <-paths; got != "/ws/dm/3/7/" {
		t.Errorf("path = %q", got)
	}
	if conn.State() != chat.Open {
		t.Errorf("State() = %s, want OPEN", conn.State())
	}
}

func TestSendWritesOutbound(t *testing.T) {
	received := make(chan []byte, 1)
	srv := testServer(t, func(ctx context.Context, c *websocket.Conn, _ *http.Request) {
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		received <- data
		drain(ctx, c)
	})

	rec := newRecorder()
	conn, err := testDialer(3).Open(context.Background(), Params{
		BaseURL: srv.URL, Conversation: chat.Direct("3"), UserID: "7",
	}, rec.handler())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	rec.waitState(t, chat.Open)

	out := wire.Outbound{ClientID: "local-1", SenderID: "7", Text: "Need backup", Timestamp: time.Now()}
	if err := conn.Send(context.Background(), out); err != nil {
		t.Fatal(err)
	}

	select {
	case data := <-received:
		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if got["clientId"] != "local-1" || got["text"] != "Need backup" {
			t.Errorf("server got %s", data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the message")
	}
}

func TestSendAfterCloseFailsFast(t *testing.T) {
	srv := testServer(t, func(ctx context.Context, c *websocket.Conn, _ *http.Request) {
		drain(ctx, c)
	})

	rec := newRecorder()
	conn, err := testDialer(3).Open(context.Background(), Params{
		BaseURL: srv.URL, Conversation: chat.Direct("3"), UserID: "7",
	}, rec.handler())
	if err != nil {
		t.Fatal(err)
	}
	rec.waitState(t, chat.Open)

	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := conn.Send(context.Background(), wire.Outbound{ClientID: "local-1"}); !errors.Is(err, chat.ErrNotConnected) {
		t.Errorf("Send after Close error = %v, want ErrNotConnected", err)
	}
	if conn.State() != chat.Disconnected {
		t.Errorf("State() = %s, want DISCONNECTED", conn.State())
	}
	select {
	case <-conn.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("connection goroutine did not exit")
	}
}

func TestSendBeforeOpenFailsFast(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	conn, err := testDialer(3).Open(context.Background(), Params{
		BaseURL: srv.URL, Conversation: chat.Direct("3"), UserID: "7",
	}, Handler{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Send(context.Background(), wire.Outbound{ClientID: "local-1"}); !errors.Is(err, chat.ErrNotConnected) {
		t.Errorf("Send while connecting error = %v, want ErrNotConnected", err)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	var conns atomic.Int32
	srv := testServer(t, func(ctx context.Context, c *websocket.Conn, _ *http.Request) {
		if conns.Add(1) == 1 {
			_ = c.Close(websocket.StatusGoingAway, "restart")
			return
		}
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"history":[]}`))
		drain(ctx, c)
	})

	rec := newRecorder()
	conn, err := testDialer(5).Open(context.Background(), Params{
		BaseURL: srv.URL, Conversation: chat.Direct("3"), UserID: "7",
	}, rec.handler())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	rec.waitState(t, chat.Open)
	if sc := rec.waitState(t, chat.Disconnected); sc.err == nil {
		t.Error("drop should report its cause")
	}
	rec.waitState(t, chat.Reconnecting)
	rec.waitState(t, chat.Open)
	if got := rec.waitFrame(t); got != `{"history":[]}` {
		t.Errorf("frame after reconnect = %s", got)
	}
	if conns.Load() != 2 {
		t.Errorf("connections = %d, want 2", conns.Load())
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := newRecorder()
	conn, err := testDialer(2).Open(context.Background(), Params{
		BaseURL: srv.URL, Conversation: chat.Direct("3"), UserID: "7",
	}, rec.handler())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	select {
	case <-conn.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("connection kept retrying")
	}
	var last stateChange
drain:
	for {
		select {
		case sc := <-rec.states:
			last = sc
		default:
			break drain
		}
	}
	if last.state != chat.Disconnected || !errors.Is(last.err, chat.ErrConnectionFailed) {
		t.Errorf("final state = %s (%v), want DISCONNECTED with ErrConnectionFailed", last.state, last.err)
	}
}

func TestHeartbeatKeepsHealthyStreamOpen(t *testing.T) {
	srv := testServer(t, func(ctx context.Context, c *websocket.Conn, _ *http.Request) {
		drain(ctx, c)
	})

	d := testDialer(1)
	d.opts.HeartbeatInterval = 20 * time.Millisecond
	rec := newRecorder()
	conn, err := d.Open(context.Background(), Params{
		BaseURL: srv.URL, Conversation: chat.Direct("3"), UserID: "7",
	}, rec.handler())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	rec.waitState(t, chat.Open)

	time.Sleep(150 * time.Millisecond)
	if conn.State() != chat.Open {
		t.Errorf("State() = %s after heartbeats, want OPEN", conn.State())
	}
}
