package grpcx

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer is a gRPC server exposing only the standard health service.
// Status follows the same readiness checks as the HTTP /readyz endpoint.
type HealthServer struct {
	srv     *grpc.Server
	health  *health.Server
	service string
	checks  []func(context.Context) error
	logger  *slog.Logger
}

func NewHealthServer(logger *slog.Logger, service string, checks ...func(context.Context) error) *HealthServer {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthServer{srv: srv, health: hs, service: service, checks: checks, logger: logger}
}

// Refresh runs the readiness checks once and publishes the resulting status
// for both the named service and the server as a whole ("").
func (h *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for _, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", "service", h.service, "err", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(h.service, status)
	return status
}

// Start listens on addr and serves until ctx is done. Checks are re-run every interval.
func (h *HealthServer) Start(ctx context.Context, addr string, interval time.Duration) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	h.Refresh(ctx)

	go func() {
		h.logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := h.srv.Serve(lis); err != nil {
			h.logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		if interval <= 0 {
			interval = 10 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.health.Shutdown()
				h.srv.GracefulStop()
				return
			case <-ticker.C:
				h.Refresh(ctx)
			}
		}
	}()
	return nil
}

// CheckHealth asks addr for the status of service ("" for the whole server).
// It waits for the connection until ctx is done, or three seconds when ctx
// has no deadline.
func CheckHealth(ctx context.Context, addr, service string) (string, error) {
	conn, err := NewClient(addr, ClientOptions{})
	if err != nil {
		return "", fmt.Errorf("client %s: %w", addr, err)
	}
	defer conn.Close()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service}, grpc.WaitForReady(true))
	if err != nil {
		return "", err
	}
	return resp.GetStatus().String(), nil
}
