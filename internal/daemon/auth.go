package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/precinct/internal/archive"
	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/portal"
	"github.com/matheus3301/precinct/internal/retry"
	"github.com/matheus3301/precinct/internal/selector"
	"github.com/matheus3301/precinct/internal/session"
	"github.com/matheus3301/precinct/internal/status"
	"github.com/matheus3301/precinct/internal/store"
	intsync "github.com/matheus3301/precinct/internal/sync"
	"go.uber.org/zap"
)

const directorySyncedKey = "directory.synced_at"

// Auth owns the portal login: it resolves the current user, seeds the
// conversation directory and hands the identity to the selector.
type Auth struct {
	sessionName string
	portal      *portal.Client
	store       *store.Store
	loader      *intsync.Loader
	selector    *selector.Selector
	archive     *archive.DB
	machine     *status.Machine[status.Session]
	backoff     retry.Config
	logger      *zap.Logger

	mu      sync.RWMutex
	user    chat.CurrentUser
	hasUser bool
	lastErr error
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewAuth creates the session authenticator. db may be nil.
func NewAuth(sessionName string, pc *portal.Client, st *store.Store, l *intsync.Loader, sel *selector.Selector, db *archive.DB, m *status.Machine[status.Session], backoff retry.Config, logger *zap.Logger) *Auth {
	return &Auth{
		sessionName: sessionName,
		portal:      pc,
		store:       st,
		loader:      l,
		selector:    sel,
		archive:     db,
		machine:     m,
		backoff:     backoff,
		logger:      logger,
	}
}

// Start bootstraps in the background from stored credentials, or moves the
// session to AuthRequired when there are none.
func (a *Auth) Start() {
	creds, err := session.LoadCredentials(a.sessionName)
	if err != nil {
		if !errors.Is(err, session.ErrNoCredentials) {
			a.logger.Warn("unreadable credentials", zap.Error(err))
		}
		a.logger.Info("no credentials found, auth required")
		a.transition(status.AuthRequired)
		return
	}
	a.portal.SetToken(creds.Token)

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		if _, err := a.bootstrap(ctx, creds.Token, true); err != nil && ctx.Err() == nil {
			a.logger.Error("bootstrap failed", zap.Error(err))
		}
	}()
}

// Stop cancels a background bootstrap and waits for it.
func (a *Auth) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
}

// Login validates token against the portal, bootstraps with it and stores
// it for the next start.
func (a *Auth) Login(ctx context.Context, token string) (chat.CurrentUser, error) {
	a.Stop()
	a.portal.SetToken(token)
	u, err := a.bootstrap(ctx, token, false)
	if err != nil {
		return chat.CurrentUser{}, err
	}
	if err := session.SaveCredentials(a.sessionName, session.Credentials{Token: token, UserID: u.ID}); err != nil {
		a.logger.Warn("could not store credentials", zap.Error(err))
	}
	a.logger.Info("logged in", zap.String("user_id", u.ID))
	return u, nil
}

// Logout closes the active stream and forgets the token.
func (a *Auth) Logout(_ context.Context) error {
	a.Stop()
	a.selector.Deselect()
	a.selector.SetIdentity(selector.Identity{})
	a.portal.SetToken("")
	a.mu.Lock()
	a.user, a.hasUser, a.lastErr = chat.CurrentUser{}, false, nil
	a.mu.Unlock()
	a.transition(status.AuthRequired)
	return session.ClearCredentials(a.sessionName)
}

// User returns the logged in user.
func (a *Auth) User() (chat.CurrentUser, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user, a.hasUser
}

// LastError returns why the session is degraded, if it is.
func (a *Auth) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

func (a *Auth) bootstrap(ctx context.Context, token string, retrying bool) (chat.CurrentUser, error) {
	a.transition(status.Bootstrapping)

	var me chat.CurrentUser
	fetchMe := func(ctx context.Context) error {
		u, err := a.portal.Me(ctx)
		if errors.Is(err, portal.ErrUnauthorized) {
			return retry.Permanent(err)
		}
		me = u
		return err
	}
	var err error
	if retrying {
		err = retry.Do(ctx, a.backoff, a.logger, fetchMe)
	} else {
		err = fetchMe(ctx)
	}
	if err != nil {
		a.setErr(err)
		switch {
		case errors.Is(err, portal.ErrUnauthorized):
			a.transition(status.AuthRequired)
		case ctx.Err() == nil:
			a.seedFromArchive(ctx)
			a.transition(status.Degraded)
		}
		return chat.CurrentUser{}, err
	}

	a.mu.Lock()
	a.user, a.hasUser = me, true
	a.mu.Unlock()
	a.selector.SetIdentity(selector.Identity{UserID: me.ID, Token: token})

	entries, err := a.portal.Conversations(ctx)
	if err != nil {
		a.logger.Warn("conversation directory unavailable", zap.Error(err))
		a.setErr(err)
		a.seedFromArchive(ctx)
		a.transition(status.Degraded)
		return me, nil
	}
	merged := 0
	for _, e := range entries {
		a.store.UpsertConversation(e.Conversation)
		if len(e.Messages) > 0 {
			merged += a.loader.MergeHistory(e.Conversation.ID, e.Messages)
		}
		if a.archive != nil {
			if err := a.archive.UpsertConversation(ctx, e.Conversation); err != nil {
				a.logger.Warn("archive conversation", zap.String("conversation", string(e.Conversation.ID)), zap.Error(err))
			}
		}
	}
	if a.archive != nil {
		_ = a.archive.SetCheckpoint(ctx, directorySyncedKey, time.Now().UTC().Format(time.RFC3339))
	}
	a.setErr(nil)
	a.logger.Info("directory loaded", zap.Int("conversations", len(entries)), zap.Int("messages", merged))
	a.transition(status.Ready)
	return me, nil
}

// seedFromArchive fills the directory from the last known state when the
// portal cannot be reached.
func (a *Auth) seedFromArchive(ctx context.Context) {
	if a.archive == nil {
		return
	}
	convs, err := a.archive.ListConversations(ctx)
	if err != nil {
		a.logger.Warn("archive directory", zap.Error(err))
		return
	}
	for _, c := range convs {
		a.store.UpsertConversation(c)
	}
	synced, _, _ := a.archive.Checkpoint(ctx, directorySyncedKey)
	a.logger.Info("directory seeded from archive", zap.Int("conversations", len(convs)), zap.String("synced_at", synced))
}

func (a *Auth) setErr(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}

func (a *Auth) transition(to status.Session) {
	if err := a.machine.Transition(to); err != nil {
		a.logger.Error("session state", zap.Error(err))
	}
}
