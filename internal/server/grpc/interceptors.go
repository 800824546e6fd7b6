package grpcserver

import (
	"context"
	"errors"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/riskguard/internal/errs"
)

// RequestChecker is the part of the guard service used by RateLimitUnary.
type RequestChecker interface {
	CheckRequest(ctx context.Context, ip, route string) error
}

// healthPrefix is exempt from rate limiting so probes keep working during a flood.
const healthPrefix = "/grpc.health.v1.Health/"

// LoggingUnary returns a unary server interceptor for structured logging.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		// metadata only, never payloads
		log.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		)
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

// RateLimitUnary applies the per-(ip, method) request policy. The full method
// name is the route. Denials map to codes.ResourceExhausted with a retry-after
// trailer in seconds.
func RateLimitUnary(guard RequestChecker, trustProxy bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		ip := clientIP(ctx, trustProxy)
		ctx = WithClientIP(ctx, ip)
		if strings.HasPrefix(info.FullMethod, healthPrefix) {
			return next(ctx, req)
		}

		err := guard.CheckRequest(ctx, ip, info.FullMethod)
		if err == nil {
			return next(ctx, req)
		}
		if after := errs.RetryAfter(err); after > 0 {
			secs := strconv.FormatInt(int64((after+time.Second-1)/time.Second), 10)
			_ = grpc.SetTrailer(ctx, metadata.Pairs("retry-after", secs))
		}
		switch {
		case errors.Is(err, errs.ErrLockedOut):
			return nil, status.Error(codes.ResourceExhausted, "locked out")
		case errors.Is(err, errs.ErrRateLimited):
			return nil, status.Error(codes.ResourceExhausted, "rate limited")
		default:
			return nil, status.Error(codes.Internal, "internal")
		}
	}
}
