package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	SessionServiceName      = "precinct.v1.SessionService"
	ConversationServiceName = "precinct.v1.ConversationService"
	MessageServiceName      = "precinct.v1.MessageService"
)

// SessionServer reports daemon state and manages the portal login.
type SessionServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
}

// ConversationServer lists and selects conversations.
type ConversationServer interface {
	List(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	Select(context.Context, *SelectRequest) (*SelectResponse, error)
	Deselect(context.Context, *DeselectRequest) (*DeselectResponse, error)
	Messages(context.Context, *MessagesRequest) (*MessagesResponse, error)
	Watch(*WatchRequest, ConversationWatchServer) error
}

// MessageServer sends and searches messages.
type MessageServer interface {
	Send(context.Context, *SendRequest) (*SendResponse, error)
	Retry(context.Context, *RetryRequest) (*RetryResponse, error)
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
}

// ConversationWatchServer is the server side of ConversationService.Watch.
type ConversationWatchServer interface {
	Send(*WatchEvent) error
	grpc.ServerStream
}

type watchServer struct {
	grpc.ServerStream
}

func (w *watchServer) Send(evt *WatchEvent) error { return w.ServerStream.SendMsg(evt) }

// unary builds a method descriptor for a request/response call on S.
func unary[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "Status", SessionServer.Status),
		unary(SessionServiceName, "Login", SessionServer.Login),
		unary(SessionServiceName, "Logout", SessionServer.Logout),
	},
	Metadata: "precinct/v1/session.json",
}

var ConversationServiceDesc = grpc.ServiceDesc{
	ServiceName: ConversationServiceName,
	HandlerType: (*ConversationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ConversationServiceName, "List", ConversationServer.List),
		unary(ConversationServiceName, "Select", ConversationServer.Select),
		unary(ConversationServiceName, "Deselect", ConversationServer.Deselect),
		unary(ConversationServiceName, "Messages", ConversationServer.Messages),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ConversationServer).Watch(in, &watchServer{stream})
			},
		},
	},
	Metadata: "precinct/v1/conversation.json",
}

var MessageServiceDesc = grpc.ServiceDesc{
	ServiceName: MessageServiceName,
	HandlerType: (*MessageServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MessageServiceName, "Send", MessageServer.Send),
		unary(MessageServiceName, "Retry", MessageServer.Retry),
		unary(MessageServiceName, "Search", MessageServer.Search),
	},
	Metadata: "precinct/v1/message.json",
}

func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

func RegisterConversationServer(s grpc.ServiceRegistrar, srv ConversationServer) {
	s.RegisterService(&ConversationServiceDesc, srv)
}

func RegisterMessageServer(s grpc.ServiceRegistrar, srv MessageServer) {
	s.RegisterService(&MessageServiceDesc, srv)
}
