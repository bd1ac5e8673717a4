package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/alfredjeanlab/msgbus/internal/bus"
)

// GRPCServiceName is the health-check service name reported for the bus.
const GRPCServiceName = "msgbus.v1.Bus"

// NewGRPCServer creates a gRPC server with the standard interceptors and
// registers the health service and reflection. The returned health server
// starts NOT_SERVING; SyncHealth or WatchHealth moves it.
func NewGRPCServer(authToken string) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(GRPCServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv, hs
}

// SyncHealth copies the bus's current health onto hs.
func (s *BusServer) SyncHealth(ctx context.Context, hs *health.Server) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if s.bus.Health(ctx).Status == bus.StatusHealthy {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", st)
	hs.SetServingStatus(GRPCServiceName, st)
}

// WatchHealth calls SyncHealth every interval until ctx is done, then marks
// every service NOT_SERVING.
func (s *BusServer) WatchHealth(ctx context.Context, hs *health.Server, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.SyncHealth(ctx, hs)
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			s.SyncHealth(checkCtx, hs)
			cancel()
		}
	}
}
