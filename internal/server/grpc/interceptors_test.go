package grpcserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/riskguard/internal/errs"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

func TestLoggingUnary_Passthrough(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := LoggingUnary(log)

	ctx := context.Background()

	ctx = peer.NewContext(ctx, &peer.Peer{Addr: fakeAddr{}})

	h := func(ctx context.Context, req any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: "/rg.Guard/Method"}

	resp, err := ic(ctx, "req", info, h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s, _ := resp.(string); s != "ok" {
		t.Fatalf("resp mismatch: %v", resp)
	}

	wantErr := errors.New("boom")
	hErr := func(ctx context.Context, req any) (any, error) { return nil, wantErr }
	_, err = ic(ctx, "req", info, hErr)
	if !errors.Is(err, wantErr) {
		t.Fatalf("want original error, got: %v", err)
	}
}

func TestRecoverUnary_CatchesPanic(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := RecoverUnary(log)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/rg.Guard/Panic"}

	panicH := func(ctx context.Context, req any) (any, error) {
		panic("oh no")
	}

	_, err := ic(ctx, "req", info, panicH)
	if err == nil {
		t.Fatalf("expected error from panic")
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Internal {
		t.Fatalf("want codes.Internal, got: %v", err)
	}
}

func TestRecoverUnary_NoPanicPassThrough(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := RecoverUnary(log)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/rg.Guard/Ok"}

	h := func(ctx context.Context, req any) (any, error) { return 42, nil }

	resp, err := ic(ctx, "req", info, h)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.(int) != 42 {
		t.Fatalf("resp mismatch: %v", resp)
	}
}

func TestLoggingUnary_DurationFieldDoesNotBlock(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ic := LoggingUnary(log)

	ctx := context.Background()
	info := &grpc.UnaryServerInfo{FullMethod: "/rg.Guard/Sleep"}
	h := func(ctx context.Context, req any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "done", nil
	}

	start := time.Now()
	resp, err := ic(ctx, "req", info, h)
	if err != nil || resp.(string) != "done" {
		t.Fatalf("unexpected result: %v, %v", resp, err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatalf("duration should reflect handler time")
	}
}

type fakeChecker struct {
	err       error
	lastIP    string
	lastRoute string
	calls     int
}

func (f *fakeChecker) CheckRequest(_ context.Context, ip, route string) error {
	f.calls++
	f.lastIP, f.lastRoute = ip, route
	return f.err
}

func TestRateLimitUnary_AllowsAndPassesIP(t *testing.T) {
	t.Parallel()

	chk := &fakeChecker{}
	ic := RateLimitUnary(chk, false)

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
	info := &grpc.UnaryServerInfo{FullMethod: "/rg.Guard/Screen"}

	var seenIP string
	h := func(ctx context.Context, req any) (any, error) {
		seenIP, _ = ClientIPFromCtx(ctx)
		return "ok", nil
	}
	resp, err := ic(ctx, "req", info, h)
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
	require.Equal(t, "127.0.0.1", chk.lastIP)
	require.Equal(t, "/rg.Guard/Screen", chk.lastRoute)
	require.Equal(t, "127.0.0.1", seenIP)
}

func TestRateLimitUnary_Denials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"window", errs.Retry(errs.ErrRateLimited, time.Minute), codes.ResourceExhausted},
		{"lockout", errs.Retry(errs.ErrLockedOut, 15*time.Minute), codes.ResourceExhausted},
		{"unexpected", errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ic := RateLimitUnary(&fakeChecker{err: tt.err}, false)
			called := false
			h := func(ctx context.Context, req any) (any, error) {
				called = true
				return nil, nil
			}
			_, err := ic(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/rg.Guard/Screen"}, h)
			require.Equal(t, tt.code, status.Code(err))
			require.False(t, called)
		})
	}
}

func TestRateLimitUnary_HealthExempt(t *testing.T) {
	t.Parallel()

	chk := &fakeChecker{err: errs.ErrRateLimited}
	ic := RateLimitUnary(chk, false)
	h := func(ctx context.Context, req any) (any, error) { return "serving", nil }

	resp, err := ic(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, h)
	require.NoError(t, err)
	require.Equal(t, "serving", resp)
	require.Zero(t, chk.calls)
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	withPeer := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
	require.Equal(t, "127.0.0.1", clientIP(withPeer, false))
	require.Equal(t, "127.0.0.1", clientIP(context.Background(), false))

	md := metadata.Pairs("x-forwarded-for", " 203.0.113.7 , 10.0.0.1")
	fwd := metadata.NewIncomingContext(withPeer, md)
	require.Equal(t, "203.0.113.7", clientIP(fwd, true))
	require.Equal(t, "127.0.0.1", clientIP(fwd, false), "forwarded header ignored without trust")
}
