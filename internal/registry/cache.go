package registry

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/go-redis/redis/v8"

	"github.com/eeslabs/embedding-core/internal/observability"
)

// CompatibilityCache is the warm lookup cache backing ModelDimensions
// (and, transitively, checkCompatibility): a Redis-backed cache when
// EES_REDIS_URL is configured, falling back to an in-process LRU
// otherwise, per SPEC_FULL.md §8's domain stack table.
type CompatibilityCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// LRUCache is the default in-process CompatibilityCache.
type LRUCache struct {
	cache *lru.Cache[string, string]
}

// NewLRUCache constructs an in-process cache holding up to size entries.
func NewLRUCache(size int) (*LRUCache, error) {
	if size < 1 {
		size = 256
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{cache: c}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) (string, bool) {
	return c.cache.Get(key)
}

func (c *LRUCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.cache.Add(key, value)
	return nil
}

// RedisCache is the optional warm CompatibilityCache backed by Redis,
// wired when EES_REDIS_URL is set (SPEC_FULL.md §8).
type RedisCache struct {
	client *redis.Client
	logger observability.Logger
}

// NewRedisCache connects to redisURL (e.g. "redis://localhost:6379/0").
func NewRedisCache(redisURL string, logger observability.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts), logger: logger}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("compatibility cache read failed", observability.Fields{"key": key, "error": err.Error()})
		}
		return "", false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the underlying Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
