// Package common provides the classification result cache.
package common

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"guard_server/core/domain"
	"guard_server/core/port/out"
	"guard_server/pkg/cache"
	"guard_server/pkg/logger"
)

// =============================================================================
// Result Cache - bounded L1 (LRU + TTL) with optional Redis L2
// =============================================================================

// ResultCacheConfig configures the result cache.
type ResultCacheConfig struct {
	MaxEntries int
	TTL        time.Duration
	KeyPrefix  string // L2 key prefix
}

// DefaultResultCacheConfig returns default cache configuration.
func DefaultResultCacheConfig() *ResultCacheConfig {
	return &ResultCacheConfig{
		MaxEntries: 5000,
		TTL:        time.Hour,
		KeyPrefix:  "guard:result:",
	}
}

// ResultCache memoizes results keyed by normalized text prefix. Stored
// values are never mutated, so concurrent readers share them safely.
type ResultCache struct {
	config *ResultCacheConfig
	l1     *expirable.LRU[string, domain.ClassificationResult]
	l2     *cache.RedisCache

	hits   atomic.Int64
	misses atomic.Int64
	l2Hits atomic.Int64
}

var _ out.ResultCache = (*ResultCache)(nil)

// NewResultCache creates a cache. l2 may be nil.
func NewResultCache(config *ResultCacheConfig, l2 *cache.RedisCache) *ResultCache {
	if config == nil {
		config = DefaultResultCacheConfig()
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultResultCacheConfig().MaxEntries
	}
	return &ResultCache{
		config: config,
		l1:     expirable.NewLRU[string, domain.ClassificationResult](config.MaxEntries, nil, config.TTL),
		l2:     l2,
	}
}

// Get returns the cached result for key.
func (c *ResultCache) Get(ctx context.Context, key string) (domain.ClassificationResult, bool) {
	if r, ok := c.l1.Get(key); ok {
		c.hits.Add(1)
		return r, true
	}

	if c.l2 != nil {
		var r domain.ClassificationResult
		found, err := c.l2.GetJSON(ctx, c.l2.HashedKey(key), &r)
		if err != nil {
			logger.WithError(err).Debug("result cache L2 get failed")
		}
		if found {
			if r.Labels == nil {
				r.Labels = []domain.Label{}
			}
			c.l1.Add(key, r)
			c.hits.Add(1)
			c.l2Hits.Add(1)
			return r, true
		}
	}

	c.misses.Add(1)
	return domain.ClassificationResult{}, false
}

// Put stores a result. Last write wins.
func (c *ResultCache) Put(ctx context.Context, key string, result domain.ClassificationResult) {
	stored := result.Clone()
	c.l1.Add(key, stored)

	if c.l2 != nil {
		if err := c.l2.SetJSON(ctx, c.l2.HashedKey(key), stored, c.config.TTL); err != nil {
			logger.WithError(err).Debug("result cache L2 set failed")
		}
	}
}

// Clear evicts everything, including L2 entries.
func (c *ResultCache) Clear(ctx context.Context) error {
	c.l1.Purge()
	if c.l2 == nil {
		return nil
	}
	n, err := c.l2.Purge(ctx)
	if err != nil {
		return err
	}
	logger.Info("[ResultCache] cleared (%d L2 entries)", n)
	return nil
}

// CacheStats holds cache metrics.
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	L2Hits  int64   `json:"l2_hits"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns cache metrics.
func (c *ResultCache) Stats() CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return CacheStats{
		Size:    c.l1.Len(),
		Hits:    hits,
		Misses:  misses,
		L2Hits:  c.l2Hits.Load(),
		HitRate: rate,
	}
}
