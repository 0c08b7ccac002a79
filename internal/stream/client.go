package stream

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
)

// Client consumes stateest.StateStream.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Latest fetches the most recent estimate.
func (c *Client) Latest(ctx context.Context, opts ...grpc.CallOption) (imu.Estimate, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, latestMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return imu.Estimate{}, err
	}
	return StructToEstimate(out)
}

// Subscribe calls fn for each streamed estimate until the stream ends, ctx
// is cancelled, or fn returns an error. A server-side end of stream
// returns nil.
func (c *Client) Subscribe(ctx context.Context, fn func(imu.Estimate) error, opts ...grpc.CallOption) error {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], subscribeMethod, opts...)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		est, err := StructToEstimate(msg)
		if err != nil {
			return err
		}
		if err := fn(est); err != nil {
			return err
		}
	}
}
