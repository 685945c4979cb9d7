package quota

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache is the shared best-effort store of per-user window totals.
type Cache interface {
	// Get returns the cached total; ok is false on a miss.
	Get(ctx context.Context, key string) (total int64, ok bool, err error)
	Set(ctx context.Context, key string, total int64, ttl time.Duration) error
	// IncrIfExists adds delta only when the key is present; ok is false otherwise.
	IncrIfExists(ctx context.Context, key string, delta int64) (total int64, ok bool, err error)
}

// Key is the cache key holding a user's total for the current window.
func Key(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10) + ":points24h"
}

// incrIfExists keeps the increment and the existence check in one round trip,
// so a key expiring at the window boundary is never recreated without a TTL.
var incrIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("INCRBY", KEYS[1], ARGV[1])
end
return false
`)

// RedisCache stores window totals in redis.
type RedisCache struct {
	cli redis.UniversalClient
}

func NewRedisCache(cli redis.UniversalClient) *RedisCache {
	return &RedisCache{cli: cli}
}

func (c *RedisCache) Get(ctx context.Context, key string) (int64, bool, error) {
	v, err := c.cli.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, total int64, ttl time.Duration) error {
	return c.cli.Set(ctx, key, total, ttl).Err()
}

func (c *RedisCache) IncrIfExists(ctx context.Context, key string, delta int64) (int64, bool, error) {
	v, err := incrIfExists.Run(ctx, c.cli, []string{key}, delta).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// MemoryCache is an in-process Cache for tests and single-node deployments.
type MemoryCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	total    int64
	expireAt time.Time
}

func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{now: now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	return e.total, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, total int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{total: total, expireAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) IncrIfExists(_ context.Context, key string, delta int64) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return 0, false, nil
	}
	e.total += delta
	c.entries[key] = e
	return e.total, true, nil
}

func (c *MemoryCache) live(key string) (memoryEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return e, false
	}
	if !c.now().Before(e.expireAt) {
		delete(c.entries, key)
		return e, false
	}
	return e, true
}
