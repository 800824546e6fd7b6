package grpcserver

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

type ctxKey string

const clientIPKey ctxKey = "rg.clientIP"

// WithClientIP stores the resolved client address in ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromCtx returns the address stored by RateLimitUnary.
func ClientIPFromCtx(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPKey).(string)
	return ip, ok && ip != ""
}

// clientIP prefers the first x-forwarded-for hop when trustProxy is set,
// then the peer address without its port.
func clientIP(ctx context.Context, trustProxy bool) string {
	if trustProxy {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			for _, v := range md.Get("x-forwarded-for") {
				first, _, _ := strings.Cut(v, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr := p.Addr.String()
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host
		}
		return addr
	}
	return "127.0.0.1"
}
