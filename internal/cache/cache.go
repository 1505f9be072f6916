package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores query results with a TTL. Get returns (zero, false, nil) on
// a miss or an expired entry.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
}

// InMemoryCache implements Cache with a map guarded by a mutex.
// Expired entries are removed on access.
type InMemoryCache[T any] struct {
	mu   sync.Mutex
	data map[string]cacheEntry[T]
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache[T any]() *InMemoryCache[T] {
	return &InMemoryCache[T]{data: make(map[string]cacheEntry[T])}
}

// Get returns the cached value for key if present and not expired.
func (c *InMemoryCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return zero, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return zero, false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key until ttl elapses.
func (c *InMemoryCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	c.mu.Lock()
	c.data[key] = cacheEntry[T]{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *InMemoryCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
