package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealth serves the standard gRPC health protocol so orchestrators and
// load balancers can probe the streaming service.
type GRPCHealth struct {
	server *grpc.Server
	health *health.Server
	logger zerolog.Logger

	mu   sync.Mutex
	lis  net.Listener
	done chan struct{}
}

// NewGRPCHealth creates a health server. Every service starts NOT_SERVING.
func NewGRPCHealth(services ...string) *GRPCHealth {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for _, s := range services {
		hs.SetServingStatus(s, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCHealth{
		server: srv,
		health: hs,
		logger: WithComponent("grpc_health"),
	}
}

// Listen binds addr and serves in the background
func (g *GRPCHealth) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc health listen %s: %w", addr, err)
	}
	return g.Serve(lis)
}

// Serve serves on an existing listener in the background
func (g *GRPCHealth) Serve(lis net.Listener) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lis != nil {
		return errors.New("grpc health server already serving")
	}
	g.lis = lis
	g.done = make(chan struct{})

	go func() {
		defer close(g.done)
		g.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
		if err := g.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			g.logger.Error().Err(err).Msg("gRPC health server failed")
		}
	}()
	return nil
}

// Addr returns the bound address, nil before Serve
func (g *GRPCHealth) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lis == nil {
		return nil
	}
	return g.lis.Addr()
}

// SetServing flips the overall and per-service status
func (g *GRPCHealth) SetServing(serving bool, services ...string) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	for _, s := range services {
		g.health.SetServingStatus(s, status)
	}
}

// Stop drains in-flight RPCs until ctx ends, then forces the server down
func (g *GRPCHealth) Stop(ctx context.Context) {
	g.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.server.Stop()
		<-stopped
	}

	g.mu.Lock()
	done := g.done
	g.mu.Unlock()
	if done != nil {
		<-done
	}
}
