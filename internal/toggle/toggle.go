// Package toggle persists the system-wide switch that enables rate limiting.
package toggle

import (
	"context"

	"github.com/and161185/riskguard/internal/kv"
)

// Key is the well-known key holding the switch. It never expires.
const Key = "settings:rate-limit-enabled"

const (
	on  = "1"
	off = "0"
)

// Toggle reads and writes the global rate-limit switch.
//
// Reads fail open: an absent key, an unknown value and a backend failure all mean
// "enabled". During a store outage limits are therefore not enforced, but the
// application keeps serving requests.
type Toggle struct {
	store kv.Store
}

// New constructs a Toggle over store.
func New(store kv.Store) *Toggle {
	return &Toggle{store: store}
}

// IsEnabled reports whether limits are enforced.
func (t *Toggle) IsEnabled(ctx context.Context) bool {
	v, ok := t.store.Get(ctx, Key)
	if !ok {
		return true
	}
	return v.String() != off
}

// SetEnabled persists the switch. It reports false when the write failed.
func (t *Toggle) SetEnabled(ctx context.Context, enabled bool) bool {
	v := off
	if enabled {
		v = on
	}
	return t.store.Set(ctx, Key, v)
}
