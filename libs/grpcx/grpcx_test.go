package grpcx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func TestServerInterceptorAssignsRequestID(t *testing.T) {
	interceptor := UnaryServerRequestIDInterceptor()
	var seen string
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x"}, func(ctx context.Context, req any) (any, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if seen == "" {
		t.Fatal("expected a generated request id")
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "rid-1"))
	_, _ = interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x"}, func(ctx context.Context, req any) (any, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	})
	if seen != "rid-1" {
		t.Fatalf("expected rid-1, got %q", seen)
	}
}

func TestHealthServerReflectsChecks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	failing := true
	hs := NewHealthServer(logger, "clinic-service", func(context.Context) error {
		if failing {
			return errors.New("db down")
		}
		return nil
	})

	if got := hs.Refresh(context.Background()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", got)
	}

	failing = false
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	if err := hs.Start(ctx, addr, time.Hour); err != nil {
		t.Fatalf("start: %v", err)
	}

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()
	status, err := CheckHealth(callCtx, addr, "clinic-service")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if status != healthpb.HealthCheckResponse_SERVING.String() {
		t.Fatalf("expected SERVING, got %s", status)
	}
}

func TestCheckHealthGivesUpOnUnreachableAddr(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := CheckHealth(ctx, addr, ""); err == nil {
		t.Fatal("expected an error for a closed port")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("expected the deadline to bound the check, took %s", elapsed)
	}
}
