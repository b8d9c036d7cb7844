package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a remote fusion service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Fuse sends req and decodes the reply.
func (c *Client) Fuse(ctx context.Context, req FuseRequest, opts ...grpc.CallOption) (FuseResponse, error) {
	in, err := req.encode()
	if err != nil {
		return FuseResponse{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FuseMethod, in, out, opts...); err != nil {
		return FuseResponse{}, err
	}
	return decodeFuseResponse(out)
}
