package api

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Conn wraps the gRPC connection to a running daemon.
type Conn struct {
	conn *grpc.ClientConn
	Chat *ChatServiceClient
}

// Dial connects to the daemon's Unix domain socket. The connection is lazy;
// errors surface on the first call.
func Dial(socketPath string) (*Conn, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Conn{conn: conn, Chat: NewChatServiceClient(conn)}, nil
}

// Close closes the gRPC connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
