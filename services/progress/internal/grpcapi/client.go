package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Client calls ProgressService with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithUser attaches the caller identity the server reads from metadata.
func WithUser(ctx context.Context, userID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "user_id", userID)
}

func (c *Client) UpsertLessonProgress(ctx context.Context, in *UpsertLessonProgressRequest, opts ...grpc.CallOption) (*UpsertLessonProgressResponse, error) {
	out := new(UpsertLessonProgressResponse)
	if err := c.invoke(ctx, "UpsertLessonProgress", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetLessonProgress(ctx context.Context, in *GetLessonProgressRequest, opts ...grpc.CallOption) (*GetLessonProgressResponse, error) {
	out := new(GetLessonProgressResponse)
	if err := c.invoke(ctx, "GetLessonProgress", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) BatchGetLessonProgress(ctx context.Context, in *BatchGetLessonProgressRequest, opts ...grpc.CallOption) (*BatchGetLessonProgressResponse, error) {
	out := new(BatchGetLessonProgressResponse)
	if err := c.invoke(ctx, "BatchGetLessonProgress", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}
