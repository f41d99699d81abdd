package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quizrank",
	Subsystem: "cache",
	Name:      "operations_total",
	Help:      "Cache operations by kind and result.",
}, []string{"op", "result"})

// Cache is the failure-absorbing front of a Store. Every backend error is logged and
// turned into a miss (reads) or a no-op (writes and deletes). Safe for concurrent use.
type Cache struct {
	store Store
	group *singleflight.Group
}

type Option func(*Cache)

// WithCoalescing makes concurrent GetOrCompute misses on the same key within this
// process share one computation. Without it every concurrent miss computes on its own.
func WithCoalescing() Option {
	return func(c *Cache) {
		c.group = new(singleflight.Group)
	}
}

func New(store Store, opts ...Option) *Cache {
	c := &Cache{store: store}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value under key, or false on a miss or backend failure.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		operations.WithLabelValues("get", "hit").Inc()
		slog.DebugContext(ctx, "cache: hit", "key", key)
		return b, true
	case errors.Is(err, ErrMiss):
		operations.WithLabelValues("get", "miss").Inc()
		slog.DebugContext(ctx, "cache: miss", "key", key)
	default:
		operations.WithLabelValues("get", "error").Inc()
		slog.WarnContext(ctx, "cache: get failed", "key", key, "error", err)
	}

	return nil, false
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if err := c.store.Set(ctx, key, value, ttl); err != nil {
		operations.WithLabelValues("set", "error").Inc()
		slog.WarnContext(ctx, "cache: set failed", "key", key, "error", err)
		return false
	}

	operations.WithLabelValues("set", "ok").Inc()
	return true
}

func (c *Cache) Delete(ctx context.Context, key string) bool {
	return c.DeleteMany(ctx, []string{key})
}

// DeleteMany removes keys in one backend call. Deleting absent keys succeeds.
func (c *Cache) DeleteMany(ctx context.Context, keys []string) bool {
	if len(keys) == 0 {
		return true
	}

	if err := c.store.Delete(ctx, keys...); err != nil {
		operations.WithLabelValues("delete", "error").Inc()
		slog.ErrorContext(ctx, "cache: delete failed", "keys", keys, "error", err)
		return false
	}

	operations.WithLabelValues("delete", "ok").Inc()
	return true
}

// InvalidatePattern removes every key containing substr.
func (c *Cache) InvalidatePattern(ctx context.Context, substr string) bool {
	n, err := c.store.DeleteContaining(ctx, substr)
	if err != nil {
		operations.WithLabelValues("invalidate_pattern", "error").Inc()
		slog.ErrorContext(ctx, "cache: pattern invalidation failed", "pattern", substr, "error", err)
		return false
	}

	operations.WithLabelValues("invalidate_pattern", "ok").Inc()
	slog.InfoContext(ctx, "cache: invalidated pattern", "pattern", substr, "keys", n)
	return true
}

// GetJSON decodes the value under key into T. An undecodable value counts as a miss.
func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T

	b, ok := c.Get(ctx, key)
	if !ok {
		return v, false
	}

	if err := json.Unmarshal(b, &v); err != nil {
		slog.WarnContext(ctx, "cache: decode failed", "key", key, "error", err)
		var zero T
		return zero, false
	}

	return v, true
}

func SetJSON[T any](ctx context.Context, c *Cache, key string, v T, ttl time.Duration) bool {
	b, err := json.Marshal(v)
	if err != nil {
		slog.ErrorContext(ctx, "cache: encode failed", "key", key, "error", err)
		return false
	}

	return c.Set(ctx, key, b, ttl)
}

// GetOrCompute returns the cached T under key, or runs compute once, stores its result
// for ttl and returns it. Errors from compute are returned as-is and nothing is stored.
// Cache failures only cost the extra computation.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := GetJSON[T](ctx, c, key); ok {
		return v, nil
	}

	load := func() (T, error) {
		v, err := compute(ctx)
		if err != nil {
			return v, err
		}

		SetJSON(ctx, c, key, v, ttl)
		return v, nil
	}

	if c.group == nil {
		return load()
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		return load()
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return res.(T), nil
}
