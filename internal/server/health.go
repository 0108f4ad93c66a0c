// Package server exposes the daemon's gRPC health endpoint.
package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "invoice-ledger.pipeline"

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// HealthServer serves grpc.health.v1 plus reflection for grpcurl.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *slog.Logger
}

// Listen binds addr; the server starts NOT_SERVING until SetServing(true).
func Listen(addr string, logger *slog.Logger) (*HealthServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &HealthServer{grpc: gs, health: hs, lis: lis, logger: logger}
	s.SetServing(false)
	return s, nil
}

// Addr is the bound address, useful with ":0".
func (s *HealthServer) Addr() string { return s.lis.Addr().String() }

func (s *HealthServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Serve blocks until Stop.
func (s *HealthServer) Serve() error {
	s.logger.Info("grpc.health.serving", "addr", s.Addr())
	if err := s.grpc.Serve(s.lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Monitor runs probe every interval and flips the status accordingly, until ctx ends.
func (s *HealthServer) Monitor(ctx context.Context, interval time.Duration, probe Probe) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			err := probe(ctx)
			if ctx.Err() != nil {
				return
			}
			if ok := err == nil; ok != healthy {
				healthy = ok
				s.SetServing(ok)
				if ok {
					s.logger.Info("grpc.health.recovered")
				} else {
					s.logger.Warn("grpc.health.degraded", "error", err)
				}
			}
		}
	}
}

// Stop marks the server NOT_SERVING and drains in-flight RPCs.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
