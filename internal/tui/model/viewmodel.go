package model

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/precinct/internal/rpc"
	"github.com/matheus3301/precinct/internal/tui/client"
)

// ViewModel caches daemon state for the views and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client        *client.Client
	status        *rpc.StatusResponse
	conversations []rpc.Conversation
	thread        *rpc.WatchEvent
	activeID      string

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{
		client:    c,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the current session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.Session.Status(ctx, &rpc.StatusRequest{})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadConversations fetches the conversation directory.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	resp, err := vm.client.Conversations.List(ctx, &rpc.ListConversationsRequest{})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = resp.Conversations
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Select makes id the daemon's active conversation.
func (vm *ViewModel) Select(ctx context.Context, id string) (rpc.Conversation, error) {
	resp, err := vm.client.Conversations.Select(ctx, &rpc.SelectRequest{ConversationID: id})
	if err != nil {
		return rpc.Conversation{}, err
	}
	vm.mu.Lock()
	vm.activeID = id
	if vm.thread != nil && vm.thread.Conversation.ID != id {
		vm.thread = nil
	}
	vm.mu.Unlock()
	vm.signalRefresh()
	return resp.Conversation, nil
}

// Deselect closes the active conversation.
func (vm *ViewModel) Deselect(ctx context.Context) error {
	if _, err := vm.client.Conversations.Deselect(ctx, &rpc.DeselectRequest{}); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.activeID, vm.thread = "", nil
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Send posts text to the active conversation. A message the stream could
// not take comes back Failed together with the reason.
func (vm *ViewModel) Send(ctx context.Context, text string) (rpc.Message, error) {
	resp, err := vm.client.Messages.Send(ctx, &rpc.SendRequest{Text: text})
	if err != nil {
		return rpc.Message{}, err
	}
	if resp.Error != "" {
		return resp.Message, errors.New(resp.Error)
	}
	return resp.Message, nil
}

// RetryLastFailed resends the newest failed message of the thread.
func (vm *ViewModel) RetryLastFailed(ctx context.Context) (rpc.Message, error) {
	id, ok := LastFailed(vm.Thread())
	if !ok {
		return rpc.Message{}, errors.New("no failed message to retry")
	}
	resp, err := vm.client.Messages.Retry(ctx, &rpc.RetryRequest{MessageID: id})
	if err != nil {
		return rpc.Message{}, err
	}
	if resp.Error != "" {
		return resp.Message, errors.New(resp.Error)
	}
	return resp.Message, nil
}

// Search queries the archive, within one conversation when conversationID
// is set.
func (vm *ViewModel) Search(ctx context.Context, query, conversationID string) ([]rpc.SearchHit, error) {
	resp, err := vm.client.Messages.Search(ctx, &rpc.SearchRequest{Query: query, ConversationID: conversationID, Limit: 50})
	if err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// Login hands a portal token to the daemon.
func (vm *ViewModel) Login(ctx context.Context, token string) (*rpc.LoginResponse, error) {
	return vm.client.Session.Login(ctx, &rpc.LoginRequest{Token: token})
}

// Logout forgets the daemon's token.
func (vm *ViewModel) Logout(ctx context.Context) error {
	_, err := vm.client.Session.Logout(ctx, &rpc.LogoutRequest{})
	return err
}

// Watch follows the active conversation until ctx ends, reopening the
// stream after errors. onEvent runs for every snapshot.
func (vm *ViewModel) Watch(ctx context.Context, onEvent func(*rpc.WatchEvent)) {
	for ctx.Err() == nil {
		stream, err := vm.client.Conversations.Watch(ctx, &rpc.WatchRequest{})
		if err == nil {
			for {
				evt, err := stream.Recv()
				if err != nil {
					if !errors.Is(err, io.EOF) && ctx.Err() == nil {
						time.Sleep(time.Second)
					}
					break
				}
				vm.apply(evt)
				onEvent(evt)
			}
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
}

func (vm *ViewModel) apply(evt *rpc.WatchEvent) {
	vm.mu.Lock()
	if evt.Conversation.ID == "" {
		vm.thread = nil
	} else if vm.thread == nil || vm.thread.Conversation.ID != evt.Conversation.ID || evt.Revision >= vm.thread.Revision {
		vm.thread = evt
	}
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Status returns the last status snapshot.
func (vm *ViewModel) Status() *rpc.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Conversations returns the last directory snapshot.
func (vm *ViewModel) Conversations() []rpc.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// Thread returns the active conversation snapshot, nil before the first one.
func (vm *ViewModel) Thread() *rpc.WatchEvent {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.thread
}

// ActiveID returns the conversation the TUI selected.
func (vm *ViewModel) ActiveID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeID
}

// Name returns the display name of a known conversation, or its id.
func (vm *ViewModel) Name(id string) string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.conversations {
		if c.ID == id && c.Name != "" {
			return c.Name
		}
	}
	return id
}

// Find resolves a conversation by id or case-insensitive name prefix.
func Find(convs []rpc.Conversation, query string) (rpc.Conversation, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return rpc.Conversation{}, false
	}
	for _, c := range convs {
		if strings.ToLower(c.ID) == q {
			return c, true
		}
	}
	for _, c := range convs {
		if strings.HasPrefix(strings.ToLower(c.Name), q) {
			return c, true
		}
	}
	return rpc.Conversation{}, false
}

// LastFailed returns the id of the newest failed message in the thread.
func LastFailed(thread *rpc.WatchEvent) (string, bool) {
	if thread == nil {
		return "", false
	}
	for i := len(thread.Messages) - 1; i >= 0; i-- {
		if thread.Messages[i].State == "FAILED" {
			return thread.Messages[i].ID, true
		}
	}
	return "", false
}
