package cache

import (
	"context"
	"time"
)

// Store is the shared cache abstraction behind the session lookup cache and
// the login rate limiter. A missing key is a miss, never an error.
type Store interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// IncrementWithTTL bumps a fixed-window counter, starting the window on
	// the first hit, and reports the window time remaining.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
