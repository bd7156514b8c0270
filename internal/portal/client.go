// Package portal is the REST client for the police portal API: the
// authenticated user, the conversation directory and per-conversation
// history.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/wire"
	"go.uber.org/zap"
)

var (
	ErrUnauthorized    = errors.New("portal: unauthorized")
	ErrHistoryDisabled = errors.New("portal: history endpoint not configured")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("portal: %s %s: %d %s", e.Method, e.Path, e.Code, e.Body)
}

// Options configure a Client.
type Options struct {
	BaseURL string
	Token   string
	// HistoryPath is a path template with {peer} or {room} placeholders,
	// e.g. "/api/chats/dms/{peer}/messages/". Empty disables FetchHistory.
	HistoryPath string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client talks to the portal API. It is safe for concurrent use.
type Client struct {
	base        *url.URL
	historyPath string
	http        *http.Client
	logger      *zap.Logger
	now         func() time.Time

	mu    sync.RWMutex
	token string
}

// New creates a client for opts.BaseURL.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("portal base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("portal base url %q: unsupported scheme %q", opts.BaseURL, base.Scheme)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		base:        base,
		historyPath: opts.HistoryPath,
		http:        hc,
		logger:      logger,
		now:         time.Now,
		token:       opts.Token,
	}, nil
}

// SetToken replaces the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// HistoryEnabled reports whether FetchHistory has an endpoint.
func (c *Client) HistoryEnabled() bool { return c.historyPath != "" }

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (chat.CurrentUser, error) {
	var body struct {
		ID   flexID `json:"id"`
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, "/api/me/", &body); err != nil {
		return chat.CurrentUser{}, err
	}
	if body.ID == "" {
		return chat.CurrentUser{}, fmt.Errorf("portal: /api/me/ returned no id")
	}
	return chat.CurrentUser{ID: string(body.ID), Name: body.Name}, nil
}

// Entry is one row of the conversation directory. Messages holds any
// history the portal embedded in the listing.
type Entry struct {
	Conversation chat.Conversation
	Messages     []chat.Message
}

type directoryRow struct {
	UserID          flexID          `json:"userId"`
	ParticipantID   flexID          `json:"participantId"`
	Name            string          `json:"name"`
	ParticipantName string          `json:"participantName"`
	Messages        json.RawMessage `json:"messages"`
}

// Conversations lists the user's direct conversations.
func (c *Client) Conversations(ctx context.Context) ([]Entry, error) {
	var rows []directoryRow
	if err := c.getJSON(ctx, "/api/chats/dms/", &rows); err != nil {
		return nil, err
	}
	now := c.now()
	out := make([]Entry, 0, len(rows))
	for i, r := range rows {
		peer := string(r.UserID)
		if peer == "" {
			peer = string(r.ParticipantID)
		}
		if peer == "" {
			c.logger.Warn("directory row without participant", zap.Int("index", i))
			continue
		}
		name := r.Name
		if name == "" {
			name = r.ParticipantName
		}
		e := Entry{Conversation: chat.Conversation{
			ID:              chat.Direct(peer),
			ParticipantID:   peer,
			ParticipantName: name,
			ConnectionState: chat.Disconnected,
		}}
		if len(r.Messages) > 0 && !bytes.Equal(r.Messages, []byte("null")) {
			msgs, err := c.decodeMessages(e.Conversation.ID, r.Messages, now)
			if err != nil {
				c.logger.Warn("skipping embedded messages", zap.String("conversation", string(e.Conversation.ID)), zap.Error(err))
			} else {
				e.Messages = msgs
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// FetchHistory loads the history of one conversation. The endpoint may
// answer with a bare array or with an object carrying "history" or
// "messages".
func (c *Client) FetchHistory(ctx context.Context, id chat.ConversationID) ([]chat.Message, error) {
	if c.historyPath == "" {
		return nil, ErrHistoryDisabled
	}
	path, err := c.expandHistoryPath(id)
	if err != nil {
		return nil, err
	}
	data, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	now := c.now()
	if len(data) > 0 && data[0] == '[' {
		return c.decodeMessages(id, data, now)
	}
	var obj struct {
		History  json.RawMessage `json:"history"`
		Messages json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrMalformedPayload, err)
	}
	switch {
	case obj.History != nil:
		return c.decodeMessages(id, obj.History, now)
	case obj.Messages != nil:
		return c.decodeMessages(id, obj.Messages, now)
	}
	return nil, fmt.Errorf("%w: history response has no messages", chat.ErrMalformedPayload)
}

// decodeMessages decodes a message array, logging entries that were skipped.
func (c *Client) decodeMessages(id chat.ConversationID, data []byte, now time.Time) ([]chat.Message, error) {
	msgs, skipped, err := wire.DecodeMessages(data, now)
	for _, skipErr := range skipped {
		c.logger.Warn("skipping history entry", zap.String("conversation", string(id)), zap.Error(skipErr))
	}
	return msgs, err
}

func (c *Client) expandHistoryPath(id chat.ConversationID) (string, error) {
	p := c.historyPath
	switch {
	case id.Peer() != "":
		if !strings.Contains(p, "{peer}") {
			return "", fmt.Errorf("history path %q has no {peer} placeholder", p)
		}
		p = strings.ReplaceAll(p, "{peer}", url.PathEscape(id.Peer()))
	case id.RoomID() != "":
		if !strings.Contains(p, "{room}") {
			return "", fmt.Errorf("history path %q has no {room} placeholder", p)
		}
		p = strings.ReplaceAll(p, "{room}", url.PathEscape(id.RoomID()))
	default:
		return "", fmt.Errorf("invalid conversation id %q", string(id))
	}
	return p, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	data, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("portal path %q: %w", path, err)
	}
	u := *c.base
	u.Path = strings.TrimSuffix(c.base.Path, "/") + ref.Path
	u.RawQuery = ref.RawQuery

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal: GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("portal: read %s: %w", path, err)
	}
	c.logger.Debug("portal request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", reqID),
		zap.Duration("took", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: GET %s: %d", ErrUnauthorized, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body := strings.TrimSpace(string(data))
		if len(body) > 200 {
			body = body[:200]
		}
		return nil, &StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode, Body: body}
	}
	return data, nil
}

// flexID accepts ids sent as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id %s: %w", b, err)
	}
	*f = flexID(n.String())
	return nil
}
