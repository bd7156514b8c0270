// Package transport owns the WebSocket stream of a single conversation. It
// moves bytes and reports connection state; it never interprets payloads.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/precinct/internal/bus"
	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/retry"
	"github.com/matheus3301/precinct/internal/status"
	"github.com/matheus3301/precinct/internal/wire"
	"go.uber.org/zap"
)

// Params scope a stream to one conversation and one authenticated user.
type Params struct {
	BaseURL      string
	Conversation chat.ConversationID
	UserID       string
	Token        string
}

// Handler receives stream callbacks. Both run on the connection's goroutine,
// frames in arrival order.
type Handler struct {
	OnPayload     func(data []byte)
	OnStateChange func(state chat.ConnectionState, err error)
}

// Options tune dialing and liveness.
type Options struct {
	Backoff           retry.Config
	HeartbeatInterval time.Duration // zero disables pings
	WriteTimeout      time.Duration
	ReadLimit         int64
	HTTPClient        *http.Client
}

// DefaultOptions returns the transport defaults.
func DefaultOptions() Options {
	return Options{
		Backoff:           retry.Default(),
		HeartbeatInterval: 25 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadLimit:         4 << 20,
	}
}

// Dialer opens conversation streams.
type Dialer struct {
	opts   Options
	bus    *bus.Bus
	logger *zap.Logger
}

// NewDialer creates a dialer.
func NewDialer(opts Options, b *bus.Bus, logger *zap.Logger) *Dialer {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Dialer{opts: opts, bus: b, logger: logger}
}

// Open starts connecting in the background and returns immediately. The
// connection keeps reconnecting with backoff after unexpected drops until
// Close is called or the attempts run out, at which point it settles in
// Disconnected with chat.ErrConnectionFailed.
func (d *Dialer) Open(ctx context.Context, p Params, h Handler) (*Conn, error) {
	target, err := StreamURL(p)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		target:  target,
		conv:    p.Conversation,
		opts:    d.opts,
		logger:  d.logger.With(zap.String("conversation", string(p.Conversation))),
		machine: status.NewConnection(d.bus, p.Conversation),
		handler: h,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.run(ctx)
	return c, nil
}

// StreamURL builds the stream address for p. http and https base URLs are
// mapped to ws and wss; the token travels as the "token" query parameter.
func StreamURL(p Params) (string, error) {
	path, err := p.Conversation.Address(p.UserID)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return "", fmt.Errorf("stream base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("stream base url %q: unsupported scheme %q", p.BaseURL, u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	q := u.Query()
	if p.Token != "" {
		q.Set("token", p.Token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Conn is one conversation stream.
type Conn struct {
	target  string
	conv    chat.ConversationID
	opts    Options
	logger  *zap.Logger
	machine *status.Machine[chat.ConnectionState]

	mu      sync.Mutex
	ws      *websocket.Conn
	handler Handler
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Conversation returns the conversation this stream serves.
func (c *Conn) Conversation() chat.ConversationID { return c.conv }

// State returns the current connection state.
func (c *Conn) State() chat.ConnectionState { return c.machine.Current() }

// Done is closed once the connection goroutine has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send writes a message without waiting for any acknowledgement. It fails
// fast with chat.ErrNotConnected when the stream is not open; nothing is
// queued.
func (c *Conn) Send(ctx context.Context, out wire.Outbound) error {
	c.mu.Lock()
	ws, closed := c.ws, c.closed
	c.mu.Unlock()
	if closed || ws == nil || c.State() != chat.Open {
		return chat.ErrNotConnected
	}
	data, err := wire.Encode(out)
	if err != nil {
		return fmt.Errorf("encode outbound: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: %v", chat.ErrNotConnected, err)
	}
	return nil
}

// Close detaches the handler and closes the stream. No callback starts
// after Close returns. It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handler = Handler{}
	ws := c.ws
	_ = c.machine.Transition(chat.Disconnected)
	c.mu.Unlock()

	if ws != nil {
		if err := ws.Close(websocket.StatusNormalClosure, "conversation closed"); err != nil {
			c.logger.Debug("close handshake", zap.Error(err))
		}
	}
	c.cancel()
	c.logger.Debug("stream closed")
	return nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.done)
	for attempt := 0; ; {
		c.transition(chat.Connecting, nil)
		ws, err := c.dial(ctx)
		if err == nil {
			attempt = 0
			err = c.serve(ctx, ws)
			if c.isClosed() || ctx.Err() != nil {
				return
			}
			c.logger.Warn("stream dropped", zap.Error(err))
			c.transition(chat.Disconnected, err)
		} else {
			if c.isClosed() || ctx.Err() != nil {
				return
			}
			c.logger.Warn("stream dial failed", zap.Int("attempt", attempt+1), zap.Error(err))
		}

		if c.opts.Backoff.Exhausted(attempt) {
			c.transition(chat.Disconnected, fmt.Errorf("%w: %d attempts: %v", chat.ErrConnectionFailed, attempt+1, err))
			return
		}
		c.transition(chat.Reconnecting, err)
		if c.opts.Backoff.Wait(ctx, attempt) != nil {
			return
		}
		attempt++
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := websocket.Dial(ctx, c.target, &websocket.DialOptions{
		HTTPClient: c.opts.HTTPClient,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	if c.opts.ReadLimit > 0 {
		ws.SetReadLimit(c.opts.ReadLimit)
	}
	return ws, nil
}

// serve runs the read loop until the stream fails or is closed.
func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.CloseNow()
		return nil
	}
	c.ws = ws
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = ws.CloseNow()
	}()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.transition(chat.Open, nil)
	if c.opts.HeartbeatInterval > 0 {
		go c.heartbeat(connCtx, ws)
	}

	for {
		_, data, err := ws.Read(connCtx)
		if err != nil {
			return err
		}
		c.mu.Lock()
		onPayload := c.handler.OnPayload
		c.mu.Unlock()
		if onPayload != nil {
			onPayload(data)
		}
	}
}

// heartbeat closes half-open sockets whose pongs stop arriving.
func (c *Conn) heartbeat(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.opts.HeartbeatInterval)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("heartbeat failed", zap.Error(err))
					_ = ws.CloseNow()
				}
				return
			}
		}
	}
}

func (c *Conn) transition(state chat.ConnectionState, cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err := c.machine.Transition(state); err != nil {
		c.logger.Error("connection state", zap.Error(err))
	}
	onState := c.handler.OnStateChange
	c.mu.Unlock()
	if onState != nil {
		onState(state, cause)
	}
}
