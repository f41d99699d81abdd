package cache

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is a bounded in-process LRU with per-entry expiry, for single-instance deployments.
type MemoryStore struct {
	lru *lru.Cache[string, memoryEntry]
	now func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func NewMemoryStore(size int, opts ...MemoryOption) (*MemoryStore, error) {
	l, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}

	s := &MemoryStore{lru: l, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}

	if e.expired(s.now()) {
		s.lru.Remove(key)
		return nil, ErrMiss
	}

	return bytes.Clone(e.value), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: bytes.Clone(value)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.lru.Add(key, e)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.lru.Remove(k)
	}
	return nil
}

func (s *MemoryStore) DeleteContaining(_ context.Context, substr string) (int, error) {
	n := 0
	for _, k := range s.lru.Keys() {
		if strings.Contains(k, substr) && s.lru.Remove(k) {
			n++
		}
	}
	return n, nil
}
