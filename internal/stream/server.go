// Package stream publishes live estimates over gRPC. Messages are
// google.protobuf.Struct values so consumers need no generated stubs.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/monitoring"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/pipeline"
)

var logf = monitoring.Prefixed("grpc")

const (
	ServiceName      = "stateest.StateStream"
	latestMethod     = "/" + ServiceName + "/Latest"
	subscribeMethod  = "/" + ServiceName + "/Subscribe"
	defaultClientBuf = 256
)

// StateStreamServer is the server API of stateest.StateStream.
type StateStreamServer interface {
	Latest(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Subscribe(*emptypb.Empty, grpc.ServerStream) error
}

func latestHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StateStreamServer).Latest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: latestMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StateStreamServer).Latest(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(StateStreamServer).Subscribe(in, stream)
}

// ServiceDesc describes stateest.StateStream for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StateStreamServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Latest", Handler: latestHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "stateest/stream.proto",
}

// LatestSource provides the most recent estimate.
type LatestSource interface {
	Latest() (imu.Estimate, bool)
}

// Ensure Server implements the gRPC interface.
var _ StateStreamServer = (*Server)(nil)

// Server implements stateest.StateStream over a pipeline Publisher.
type Server struct {
	latest    LatestSource
	publisher *pipeline.Publisher
	clientBuf int
}

// NewServer creates a Server. clientBuf is the per-subscriber queue depth;
// zero selects a default.
func NewServer(latest LatestSource, publisher *pipeline.Publisher, clientBuf int) *Server {
	if clientBuf <= 0 {
		clientBuf = defaultClientBuf
	}
	return &Server{latest: latest, publisher: publisher, clientBuf: clientBuf}
}

// Latest returns the most recent estimate, or Unavailable before the
// filter has produced one.
func (s *Server) Latest(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	est, ok := s.latest.Latest()
	if !ok {
		return nil, status.Error(codes.Unavailable, "filter not initialized")
	}
	msg, err := EstimateToStruct(est)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode estimate: %v", err)
	}
	return msg, nil
}

// Subscribe streams every published estimate until the client goes away.
// Estimates a slow client cannot absorb are dropped.
func (s *Server) Subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	id, ch := s.publisher.Subscribe(s.clientBuf)
	defer s.publisher.Unsubscribe(id)
	logf("Subscribe started: client=%s", id)

	var sent uint64
	for {
		select {
		case <-ctx.Done():
			logf("Subscribe ended: client=%s sent=%d", id, sent)
			return nil
		case est, ok := <-ch:
			if !ok {
				return status.Error(codes.Unavailable, "publisher closed")
			}
			msg, err := EstimateToStruct(est)
			if err != nil {
				return status.Errorf(codes.Internal, "encode estimate: %v", err)
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
			sent++
		}
	}
}

// RegisterService registers the gRPC service with the server.
func RegisterService(grpcServer *grpc.Server, server *Server) {
	grpcServer.RegisterService(&ServiceDesc, server)
}

// Serve listens on addr and serves server until ctx is done.
func Serve(ctx context.Context, addr string, server *Server) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	RegisterService(grpcServer, server)

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logf("gRPC server listening on %s", lis.Addr())
	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}
