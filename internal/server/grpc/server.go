// Package grpcserver hosts the gRPC listener guarded by the rate-limit interceptors.
package grpcserver

import (
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Options configure New.
type Options struct {
	// Creds enables TLS when non-nil.
	Creds credentials.TransportCredentials
	// Reflection registers the reflection service (dev only).
	Reflection bool
	// TrustProxy lets x-forwarded-for metadata override the peer address.
	TrustProxy bool
}

// New builds a server with the recover, logging and rate-limit chain and the
// standard health service registered. The returned health server is used to
// flip the serving status on shutdown.
func New(guard RequestChecker, log *zap.Logger, opts Options) (*grpc.Server, *health.Server) {
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
			RateLimitUnary(guard, opts.TrustProxy),
		),
	}
	if opts.Creds != nil {
		serverOpts = append(serverOpts, grpc.Creds(opts.Creds))
	}

	s := grpc.NewServer(serverOpts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if opts.Reflection {
		reflection.Register(s)
	}
	return s, hs
}
