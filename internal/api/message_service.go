package api

import (
	"context"
	"errors"
	"strings"

	"github.com/matheus3301/precinct/internal/archive"
	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/rpc"
	"github.com/matheus3301/precinct/internal/selector"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// MessageService implements rpc.MessageServer.
type MessageService struct {
	selector *selector.Selector
	archive  *archive.DB
}

// NewMessageService creates a message service. db may be nil, which
// disables search.
func NewMessageService(sel *selector.Selector, db *archive.DB) *MessageService {
	return &MessageService{selector: sel, archive: db}
}

func (s *MessageService) Send(ctx context.Context, req *rpc.SendRequest) (*rpc.SendResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "text required")
	}
	m, err := s.selector.Send(ctx, req.Text)
	return sendResult(m, err)
}

func (s *MessageService) Retry(ctx context.Context, req *rpc.RetryRequest) (*rpc.RetryResponse, error) {
	if req.MessageID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "message id required")
	}
	m, err := s.selector.Retry(ctx, req.MessageID)
	return sendResult(m, err)
}

// sendResult reports a message that reached the store as a normal response,
// even when it failed, so clients learn its id for a later retry.
func sendResult(m chat.Message, err error) (*rpc.SendResponse, error) {
	if err != nil && (m.ID == "" || !errors.Is(err, chat.ErrNotConnected)) {
		return nil, toStatus(err)
	}
	resp := &rpc.SendResponse{Message: messageToRPC(m)}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

func (s *MessageService) Search(ctx context.Context, req *rpc.SearchRequest) (*rpc.SearchResponse, error) {
	if s.archive == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "archive disabled")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query required")
	}
	var id chat.ConversationID
	if req.ConversationID != "" {
		parsed, err := chat.Parse(req.ConversationID)
		if err != nil {
			return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
		}
		id = parsed
	}
	hits, err := s.archive.Search(ctx, req.Query, id, req.Limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "search: %v", err)
	}
	out := make([]rpc.SearchHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, rpc.SearchHit{
			ConversationID: string(h.ConversationID),
			Message:        messageToRPC(h.Message),
			Snippet:        h.Snippet,
		})
	}
	return &rpc.SearchResponse{Hits: out}, nil
}
