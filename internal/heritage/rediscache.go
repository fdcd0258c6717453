package heritage

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/planmatter/heritage-cli/internal/model"
)

// RedisKeyPrefix namespaces classification entries in a shared Redis.
const RedisKeyPrefix = "heritage:classify:"

// RedisCache is a ResultCache backed by Redis, for deployments where
// multiple instances should share classification results. Values are
// JSON-encoded; expiry uses Redis native TTL. Any Redis failure degrades
// to a cache miss so classification always proceeds.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
	log    *zap.Logger
}

// NewRedisCache creates a RedisCache with the given TTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		log:    zap.L().With(zap.String("component", "heritage.rediscache")),
	}
}

// Get implements ResultCache.
func (c *RedisCache) Get(ctx context.Context, coord model.Coordinates) (*model.ClassificationResult, bool) {
	key := RedisKeyPrefix + cacheKey(coord)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis get failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}

	var res model.ClassificationResult
	if err := json.Unmarshal(data, &res); err != nil {
		// A corrupt entry is unusable; drop it so the next write replaces it.
		c.log.Warn("redis entry corrupt, deleting", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return &res, true
}

// Set implements ResultCache.
func (c *RedisCache) Set(ctx context.Context, coord model.Coordinates, res *model.ClassificationResult) {
	key := RedisKeyPrefix + cacheKey(coord)

	data, err := json.Marshal(res)
	if err != nil {
		c.log.Warn("marshal classification for cache failed", zap.String("key", key), zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Stats returns local hit/miss counters for this process. Entry counts
// live in Redis and are not tracked here.
func (c *RedisCache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return CacheStats{Hits: hits, Misses: misses, HitRate: hitRate}
}
