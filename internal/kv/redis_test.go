package kv

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRedis_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}

	s := NewRedis(client, zaptest.NewLogger(t))
	defer s.Close()

	key := fmt.Sprintf("kv_it_%d", time.Now().UnixNano())

	_, ok := s.Get(ctx, key)
	require.False(t, ok)
	require.Equal(t, int64(1), s.Incr(ctx, key))
	require.Equal(t, int64(2), s.Incr(ctx, key))

	require.True(t, s.Set(ctx, key, "7", WithExpiry(time.Minute)))
	v, ok := s.Get(ctx, key)
	require.True(t, ok)
	n, _ := v.Int()
	require.Equal(t, int64(7), n)

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, 50*time.Second)

	require.Equal(t, int64(1), s.Delete(ctx, key))
	require.Equal(t, int64(0), s.Delete(ctx, key))
}

func TestRedis_UnreachableIsNeutral(t *testing.T) {
	t.Parallel()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	s := NewRedis(client, zaptest.NewLogger(t))
	defer s.Close()
	ctx := context.Background()

	_, ok := s.Get(ctx, "k")
	require.False(t, ok)
	require.False(t, s.Set(ctx, "k", "v"))
	require.Equal(t, int64(0), s.Incr(ctx, "k"))
	require.Equal(t, int64(0), s.Delete(ctx, "k"))
}
