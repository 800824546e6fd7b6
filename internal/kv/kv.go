// Package kv defines the key-value backend used by the limiter and the global toggle.
//
// Every implementation swallows backend failures: reads report "absent", Incr and
// Delete report 0 and Set reports false. Failures are logged, never returned, so
// the policy code above this package never has to handle transport errors.
package kv

import (
	"context"
	"strconv"
	"time"
)

// Store is the uniform get/set/incr/delete contract over every backend.
type Store interface {
	// Get returns the stored value, or false when the key is absent, expired or unreadable.
	Get(ctx context.Context, key string) (Value, bool)
	// Set stores value under key. It reports false when the write failed.
	Set(ctx context.Context, key, value string, opts ...SetOption) bool
	// Incr increments key, initialising absent or expired keys to 1. It returns 0 on failure.
	Incr(ctx context.Context, key string) int64
	// Delete removes key and returns the number of removed entries (0 or 1).
	Delete(ctx context.Context, key string) int64
}

// Value is a scalar read from the store.
type Value string

// String returns the raw value.
func (v Value) String() string { return string(v) }

// Int parses the value as a base-10 integer.
func (v Value) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetOption customises a Set call.
type SetOption func(*setOptions)

type setOptions struct {
	expiry time.Duration
}

// WithExpiry makes the entry unreadable once d has elapsed.
func WithExpiry(d time.Duration) SetOption {
	return func(o *setOptions) {
		if d > 0 {
			o.expiry = d
		}
	}
}

func applySetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// expirySeconds rounds d up to whole seconds; remote services only accept seconds.
func expirySeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
