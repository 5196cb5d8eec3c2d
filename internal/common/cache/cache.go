// internal/common/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"time"

	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

// Cache is a content-addressed store of prior external-call results.
// Every failure mode (missing key, connection error, undecodable entry)
// is reported as a miss, never as an error: callers re-invoke the
// underlying call and overwrite the entry. Correctness never depends on
// a cache hit.
type Cache struct {
	client *redis.Client
	logger logger.Logger
	prefix string
}

func New(client *redis.Client, log logger.Logger) *Cache {
	return &Cache{
		client: client,
		logger: log.WithFields(map[string]interface{}{"component": "cache"}),
		prefix: "jh:cache:",
	}
}

// Get returns the cached bytes for key, or ok=false on any kind of miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("cache read failed, treating as miss", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
		metrics.CacheMisses.Inc()
		return nil, false
	}
	metrics.CacheHits.Inc()
	return val, true
}

// Set stores value under key with the given TTL. Write failures are
// logged and swallowed; the cache is an optimization only.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// GetJSON decodes a cached JSON entry into dest. A corrupted entry is a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Debug("corrupted cache entry, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return true
}

// SetJSON encodes v as JSON and stores it under key.
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	c.Set(ctx, key, raw, ttl)
}
