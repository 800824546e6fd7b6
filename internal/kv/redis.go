package kv

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a Store backed by a Redis server through go-redis.
type Redis struct {
	client redis.UniversalClient
	log    *zap.Logger
}

// NewRedis wraps an existing go-redis client.
func NewRedis(client redis.UniversalClient, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{client: client, log: log}
}

func (r *Redis) warn(op, key string, err error) {
	r.log.Warn("kv redis call failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (Value, bool) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		r.warn("get", key, err)
		return "", false
	}
	return Value(v), true
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key, value string, opts ...SetOption) bool {
	o := applySetOptions(opts)
	if err := r.client.Set(ctx, key, value, o.expiry).Err(); err != nil {
		r.warn("set", key, err)
		return false
	}
	return true
}

// Incr implements Store.
func (r *Redis) Incr(ctx context.Context, key string) int64 {
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		r.warn("incr", key, err)
		return 0
	}
	return n
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, key string) int64 {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		r.warn("del", key, err)
		return 0
	}
	return n
}

// Close releases the underlying client.
func (r *Redis) Close() error { return r.client.Close() }
