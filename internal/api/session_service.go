package api

import (
	"context"
	"strings"
	"time"

	"github.com/matheus3301/precinct/internal/archive"
	"github.com/matheus3301/precinct/internal/bus"
	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/outbox"
	"github.com/matheus3301/precinct/internal/rpc"
	"github.com/matheus3301/precinct/internal/selector"
	"github.com/matheus3301/precinct/internal/status"
	"github.com/matheus3301/precinct/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Authenticator owns the portal login of the session.
type Authenticator interface {
	Login(ctx context.Context, token string) (chat.CurrentUser, error)
	Logout(ctx context.Context) error
	User() (chat.CurrentUser, bool)
	LastError() error
}

// SessionService implements rpc.SessionServer.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	machine     *status.Machine[status.Session]
	auth        Authenticator
	selector    *selector.Selector
	store       *store.Store
	guard       *outbox.Guard
	writer      *archive.Writer
	bus         *bus.Bus
}

// NewSessionService creates a session service. writer may be nil.
func NewSessionService(sessionName string, machine *status.Machine[status.Session], auth Authenticator, sel *selector.Selector, st *store.Store, g *outbox.Guard, w *archive.Writer, b *bus.Bus) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		auth:        auth,
		selector:    sel,
		store:       st,
		guard:       g,
		writer:      w,
		bus:         b,
	}
}

func (s *SessionService) Status(_ context.Context, _ *rpc.StatusRequest) (*rpc.StatusResponse, error) {
	resp := &rpc.StatusResponse{
		Session:           s.sessionName,
		Status:            string(s.machine.Current()),
		ViewState:         string(s.selector.State()),
		ConversationCount: len(s.store.Conversations()),
		InFlight:          s.guard.InFlight(),
		DroppedEvents:     s.bus.Dropped(),
		UptimeMs:          time.Since(s.startedAt).Milliseconds(),
	}
	if u, ok := s.auth.User(); ok {
		resp.UserID, resp.UserName = u.ID, u.Name
	}
	if err := s.auth.LastError(); err != nil {
		resp.StatusMessage = err.Error()
	}
	if id, ok := s.selector.Active(); ok {
		resp.ActiveID = string(id)
	}
	if s.writer != nil {
		resp.Archived = s.writer.Written()
	}
	return resp, nil
}

func (s *SessionService) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.LoginResponse, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "token required")
	}
	u, err := s.auth.Login(ctx, token)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.LoginResponse{UserID: u.ID, Name: u.Name}, nil
}

func (s *SessionService) Logout(ctx context.Context, _ *rpc.LogoutRequest) (*rpc.LogoutResponse, error) {
	if err := s.auth.Logout(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.LogoutResponse{}, nil
}
