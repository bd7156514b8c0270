package api

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/precinct/internal/archive"
	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/rpc"
	"github.com/matheus3301/precinct/internal/selector"
	"github.com/matheus3301/precinct/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ConversationService implements rpc.ConversationServer.
type ConversationService struct {
	selector *selector.Selector
	store    *store.Store
	archive  *archive.DB
	logger   *zap.Logger
}

// NewConversationService creates a conversation service. db may be nil, in
// which case paging beyond the in-memory history returns nothing.
func NewConversationService(sel *selector.Selector, st *store.Store, db *archive.DB, logger *zap.Logger) *ConversationService {
	return &ConversationService{selector: sel, store: st, archive: db, logger: logger}
}

func (s *ConversationService) List(_ context.Context, _ *rpc.ListConversationsRequest) (*rpc.ListConversationsResponse, error) {
	convs := s.store.Conversations()
	out := make([]rpc.Conversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationToRPC(c))
	}
	return &rpc.ListConversationsResponse{Conversations: out}, nil
}

func (s *ConversationService) Select(ctx context.Context, req *rpc.SelectRequest) (*rpc.SelectResponse, error) {
	id, err := chat.Parse(req.ConversationID)
	if err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.selector.Select(ctx, id); err != nil {
		// The conversation is still selected; its banner carries the error.
		s.logger.Warn("select", zap.String("conversation", string(id)), zap.Error(err))
	}
	c, _ := s.store.Conversation(id)
	return &rpc.SelectResponse{Conversation: conversationToRPC(c)}, nil
}

func (s *ConversationService) Deselect(_ context.Context, _ *rpc.DeselectRequest) (*rpc.DeselectResponse, error) {
	s.selector.Deselect()
	return &rpc.DeselectResponse{}, nil
}

func (s *ConversationService) Messages(ctx context.Context, req *rpc.MessagesRequest) (*rpc.MessagesResponse, error) {
	var id chat.ConversationID
	if req.ConversationID == "" {
		active, ok := s.selector.Active()
		if !ok {
			return nil, toStatus(chat.ErrNoActiveConversation)
		}
		id = active
	} else {
		parsed, err := chat.Parse(req.ConversationID)
		if err != nil {
			return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
		}
		id = parsed
	}

	if req.BeforeUnixMs > 0 {
		if s.archive == nil {
			return &rpc.MessagesResponse{ConversationID: string(id)}, nil
		}
		msgs, err := s.archive.ListMessages(ctx, id, time.UnixMilli(req.BeforeUnixMs), req.Limit)
		if err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "archive: %v", err)
		}
		// Oldest first, like the live view.
		slices.Reverse(msgs)
		return &rpc.MessagesResponse{ConversationID: string(id), Messages: messagesToRPC(msgs)}, nil
	}

	msgs := s.store.GetOrdered(id)
	if req.Limit > 0 && len(msgs) > req.Limit {
		msgs = msgs[len(msgs)-req.Limit:]
	}
	return &rpc.MessagesResponse{ConversationID: string(id), Messages: messagesToRPC(msgs)}, nil
}

func (s *ConversationService) Watch(_ *rpc.WatchRequest, stream rpc.ConversationWatchServer) error {
	updates := s.selector.Watch(stream.Context())
	for u := range updates {
		evt := &rpc.WatchEvent{
			EventID:          uuid.NewString(),
			OccurredAtUnixMs: time.Now().UnixMilli(),
			Revision:         u.Revision,
			Conversation:     conversationToRPC(u.Conversation),
			Messages:         messagesToRPC(u.Messages),
		}
		if err := stream.Send(evt); err != nil {
			return err
		}
	}
	return nil
}
