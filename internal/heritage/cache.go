package heritage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/planmatter/heritage-cli/internal/model"
)

// cacheKey normalizes coordinates to 5 decimal places (~1.1m at UK
// latitudes), so repeat queries for the same property share an entry.
func cacheKey(c model.Coordinates) string {
	return fmt.Sprintf("%.5f,%.5f", c.Lat, c.Lng)
}

// ResultCache stores classification results keyed by normalized
// coordinates. Implementations must be safe for concurrent use and must
// swallow their own failures: a broken cache reads as a miss.
type ResultCache interface {
	Get(ctx context.Context, coord model.Coordinates) (*model.ClassificationResult, bool)
	Set(ctx context.Context, coord model.Coordinates, res *model.ClassificationResult)
}

// CacheStats contains cache performance counters.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// MemoryCache is a concurrent-safe in-process ResultCache with TTL
// expiration and LRU eviction at capacity.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*memoryCacheEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

type memoryCacheEntry struct {
	res       *model.ClassificationResult
	createdAt time.Time
}

// NewMemoryCache creates a MemoryCache with the given capacity and TTL.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryCache{
		entries:    make(map[string]*memoryCacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		nowFunc:    time.Now,
	}
}

// Get retrieves a cached result. Expired entries are removed lazily.
func (c *MemoryCache) Get(_ context.Context, coord model.Coordinates) (*model.ClassificationResult, bool) {
	key := cacheKey(coord)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	if c.nowFunc().Sub(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses.Add(1)
		return nil, false
	}

	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	return entry.res, true
}

// Set stores a result, evicting the oldest entry if at capacity.
func (c *MemoryCache) Set(_ context.Context, coord model.Coordinates, res *model.ClassificationResult) {
	key := cacheKey(coord)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = &memoryCacheEntry{res: res, createdAt: c.nowFunc()}
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &memoryCacheEntry{res: res, createdAt: c.nowFunc()}
	c.order = append(c.order, key)
}

// Stats returns cache performance counters.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	maxEntries := c.maxEntries
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

func (c *MemoryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
