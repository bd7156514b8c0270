package client

import (
	"github.com/matheus3301/precinct/internal/rpc"
	"google.golang.org/grpc"
)

// Client wraps gRPC connections to the daemon.
type Client struct {
	conn          *grpc.ClientConn
	Session       *rpc.SessionClient
	Conversations *rpc.ConversationClient
	Messages      *rpc.MessageClient
}

// New dials the daemon's Unix domain socket and returns typed service clients.
func New(socketPath string) (*Client, error) {
	conn, err := rpc.Dial(socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:          conn,
		Session:       rpc.NewSessionClient(conn),
		Conversations: rpc.NewConversationClient(conn),
		Messages:      rpc.NewMessageClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
