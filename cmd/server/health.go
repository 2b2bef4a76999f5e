package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ashureev/cyberdesk/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// healthServer exposes the standard gRPC health service. The overall status
// follows periodic repository pings.
type healthServer struct {
	grpc   *grpc.Server
	health *health.Server
	done   chan struct{}
	once   sync.Once
}

func startHealthServer(ctx context.Context, addr string, repo api.Pinger, every time.Duration) (*healthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	hs := &healthServer{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		done:   make(chan struct{}),
	}
	healthpb.RegisterHealthServer(hs.grpc, hs.health)
	hs.check(ctx, repo)

	go func() {
		slog.Info("gRPC health server listening", "addr", lis.Addr().String())
		if err := hs.grpc.Serve(lis); err != nil {
			slog.Error("gRPC health server failed", "error", err)
		}
	}()
	go hs.watch(ctx, repo, every)
	return hs, nil
}

func (hs *healthServer) watch(ctx context.Context, repo api.Pinger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-hs.done:
			return
		case <-ticker.C:
			hs.check(ctx, repo)
		}
	}
}

func (hs *healthServer) check(ctx context.Context, repo api.Pinger) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	if err := repo.Ping(pingCtx); err != nil {
		slog.Warn("Repository ping failed, reporting NOT_SERVING", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.health.SetServingStatus("", status)
}

// Stop marks the service as shutting down and drains in-flight checks.
func (hs *healthServer) Stop() {
	hs.once.Do(func() {
		close(hs.done)
		hs.health.Shutdown()
		hs.grpc.GracefulStop()
	})
}
