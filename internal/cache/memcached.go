package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedCache implements Cache on memcached. Values are stored as JSON
// under prefix+key, so one server can hold several caches.
type MemcachedCache[T any] struct {
	client *memcache.Client
	prefix string
}

// NewMemcachedClient builds a client for a comma-separated server list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). Zero timeout and
// maxIdleConns keep the library defaults.
func NewMemcachedClient(addrs string, timeout time.Duration, maxIdleConns int) *memcache.Client {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return client
}

// NewMemcachedCache wraps client with a key prefix such as "forecast:".
func NewMemcachedCache[T any](client *memcache.Client, prefix string) *MemcachedCache[T] {
	return &MemcachedCache[T]{client: client, prefix: prefix}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// maxKeyLen is memcached's key limit in bytes.
const maxKeyLen = 250

// key maps k to a valid memcached key: spaces and control characters become
// underscores, and keys over maxKeyLen bytes are replaced by prefix + "sha256:"
// + the hex digest of the sanitized key.
func (c *MemcachedCache[T]) key(k string) string {
	full := c.prefix + strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, k)
	if len(full) <= maxKeyLen {
		return full
	}
	sum := sha256.Sum256([]byte(full))
	return c.prefix + "sha256:" + hex.EncodeToString(sum[:])
}

// Get implements Cache.Get.
func (c *MemcachedCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return zero, false, nil
		}
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(item.Value, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	})
}

// memcached treats values above 30 days as absolute unix times.
func expirationSeconds(ttl time.Duration) int32 {
	const maxRelativeExp = 30 * 24 * 60 * 60
	sec := int32(ttl.Seconds())
	if sec <= 0 || sec > maxRelativeExp {
		return 3600
	}
	return sec
}
