package grpcx

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

type ClientOptions struct {
	// Plaintext when nil.
	Credentials credentials.TransportCredentials
}

// NewClient builds a lazily connecting client with tracing and request id
// propagation. Callers bound each call with their own context deadline.
func NewClient(addr string, opts ClientOptions, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	creds := opts.Credentials
	if creds == nil {
		creds = insecure.NewCredentials()
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(UnaryClientRequestIDInterceptor()),
	}, extra...)
	return grpc.NewClient(addr, dialOpts...)
}
