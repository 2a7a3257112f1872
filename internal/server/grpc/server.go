package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/audionotes/internal/logging"
	pb "github.com/dmitrijs2005/audionotes/internal/proto"
	"github.com/dmitrijs2005/audionotes/internal/server/upload"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Uploader runs one upload session over a transport.
type Uploader interface {
	Serve(ctx context.Context, t upload.Transport, noteID string) upload.State
}

type GRPCServer struct {
	address      string
	uploads      Uploader
	logger       logging.Logger
	maxRecvBytes int
	health       *health.Server
}

func NewGRPCServer(a string, l logging.Logger, uploads Uploader, maxFrameBytes int64) (*GRPCServer, error) {
	return &GRPCServer{
		address:      a,
		logger:       l.With("module", "grpc_server"),
		uploads:      uploads,
		maxRecvBytes: int(maxFrameBytes),
		health:       health.NewServer(),
	}, nil
}

func (s *GRPCServer) newServer() *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.loggingUnaryInterceptor),
		grpc.ChainStreamInterceptor(s.loggingStreamInterceptor),
	}
	if s.maxRecvBytes > 0 {
		// leave room for the Any envelope around a chunk
		opts = append(opts, grpc.MaxRecvMsgSize(s.maxRecvBytes+1024))
	}

	srv := grpc.NewServer(opts...)

	pb.RegisterUploadServiceServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(pb.UploadServiceName, healthpb.HealthCheckResponse_SERVING)

	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
