package grpcapi

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the health-check service callers probe for worker
// readiness. The empty name reports overall server health.
const ServiceName = "devicesim.Orchestrator"

// Server exposes grpc.health.v1.Health. Both services start NOT_SERVING
// and flip to SERVING once recovery has finished.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

func NewServer(logger zerolog.Logger) *Server {
	s := &Server{
		health: health.NewServer(),
		logger: logger.With().Str("component", "grpc").Logger(),
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)

	s.setAll(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetServing flips both the overall and orchestrator status.
func (s *Server) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.setAll(st)
	s.logger.Info().Str("status", st.String()).Msg("health status updated")
}

func (s *Server) setAll(st grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve blocks until Stop or GracefulStop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health server listening")
	return s.grpc.Serve(lis)
}

// Stop drains in-flight RPCs, falling back to a hard stop after timeout.
func (s *Server) Stop(timeout time.Duration) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.grpc.Stop()
		<-done
	}
}

func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug().
		Str("method", info.FullMethod).
		Str("code", status.Code(err).String()).
		Dur("dur", time.Since(start)).
		Msg("grpc request")
	return resp, err
}
