package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanCount = 100

// RedisStore keeps entries in Redis as plain string keys with EX expiry.
type RedisStore struct {
	redis redis.UniversalClient
}

func NewRedisStore(r redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: r}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	return b, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}

	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// Delete pipelines one DEL per key so it also works when keys hash to different cluster slots.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	pipe := s.redis.Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, k)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis del %v: %w", keys, err)
	}

	return nil
}

func (s *RedisStore) DeleteContaining(ctx context.Context, substr string) (int, error) {
	match := "*" + escapeGlob(substr) + "*"

	if cc, ok := s.redis.(*redis.ClusterClient); ok {
		var (
			mu    sync.Mutex
			total int
		)
		err := cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			n, err := scanDelete(ctx, node, match)
			mu.Lock()
			total += n
			mu.Unlock()
			return err
		})
		return total, err
	}

	return scanDelete(ctx, s.redis, match)
}

func scanDelete(ctx context.Context, c redis.Cmdable, match string) (int, error) {
	var keys []string

	iter := c.Scan(ctx, 0, match, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan %s: %w", match, err)
	}

	if len(keys) == 0 {
		return 0, nil
	}

	pipe := c.Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis del %d keys: %w", len(keys), err)
	}

	return len(keys), nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
