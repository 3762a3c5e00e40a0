package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcmiddleware "github.com/autopeer-io/crossway/internal/pkg/middleware/grpc"
	"github.com/autopeer-io/crossway/pkg/log"
	"github.com/autopeer-io/crossway/pkg/options"
)

// ServiceName is the health service name reported by the arbiter.
const ServiceName = "crossway.arbiter"

// Server serves the standard gRPC health protocol for the arbiter.
type Server struct {
	server  *grpc.Server
	health  *health.Server
	options *options.GrpcOptions
}

func NewServer(opts *options.GrpcOptions) *Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(grpcmiddleware.UnaryServerLogInterceptor(
		func(err error, method string, elapsed time.Duration) {
			log.Error(err, "gRPC call failed", "method", method, "elapsed", elapsed)
		})))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s) // Enable grpc_cli support

	return &Server{
		server:  s,
		health:  hs,
		options: opts,
	}
}

// SetReady flips the arbiter's health status.
func (s *Server) SetReady(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}

	log.Info("Starting gRPC Server", "addr", s.options.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		s.server.GracefulStop()
		return nil
	}
}
