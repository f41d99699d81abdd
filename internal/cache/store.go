// Package cache is the read-through cache for computed leaderboards.
//
// A Store is a raw key/value backend that reports its failures. Cache wraps a Store and
// absorbs those failures: a broken backend makes reads slower, never wrong or failing.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is a key/value backend with per-key TTL. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns ErrMiss when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A non-positive ttl keeps the key until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys. Absent keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeleteContaining removes every key containing substr and returns how many were removed.
	DeleteContaining(ctx context.Context, substr string) (int, error)
}
