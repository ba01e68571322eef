package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the admin service of a running daemon.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) GetStatus(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetStatus, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRetractions returns the pending deletes and the latest limit publications.
func (c *Client) ListRetractions(ctx context.Context, limit int) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodListRetractions, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CancelDraft discards a user's in-progress draft.
func (c *Client) CancelDraft(ctx context.Context, userID int64) (bool, error) {
	in, err := structpb.NewStruct(map[string]any{"user_id": userID})
	if err != nil {
		return false, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodCancelDraft, in, out); err != nil {
		return false, err
	}
	return out.GetFields()["cancelled"].GetBoolValue(), nil
}
