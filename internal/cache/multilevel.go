package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Cache is the read-through cache used by the service layer.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	Stats() map[string]interface{}
	Health(ctx context.Context) error
	Close() error
}

var _ Cache = (*MultiLevelCache)(nil)

// l1TTLOnPromote bounds how long a value fetched from Redis lives locally.
const l1TTLOnPromote = time.Minute

// MultiLevelCache layers the process-local MemoryCache over an optional
// RedisCache. Redis failures are absorbed: the breaker opens and lookups
// degrade to L1 only.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      *RedisCache
	breaker *CircuitBreaker
	metrics *counters
}

func NewMultiLevelCache(redisCache *RedisCache, breakerConfig *CircuitBreakerConfig) *MultiLevelCache {
	return &MultiLevelCache{
		l1:      NewMemoryCache(),
		l2:      redisCache,
		breaker: NewCircuitBreaker(breakerConfig),
		metrics: newCounters(),
	}
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	c.l1.Set(key, data, ttl)
	c.metrics.sets.Add(1)

	if c.l2 == nil {
		return nil
	}
	err = c.breaker.Execute(func() error {
		return c.l2.Set(ctx, key, json.RawMessage(data), ttl)
	})
	if err != nil {
		c.metrics.errors.Add(1)
		return fmt.Errorf("l2 set %s: %w", key, err)
	}
	return nil
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if data, found := c.l1.Get(key); found {
		c.metrics.l1Hits.Add(1)
		return json.Unmarshal(data, dest)
	}

	if c.l2 == nil {
		c.metrics.misses.Add(1)
		return ErrCacheMiss
	}

	var raw json.RawMessage
	missed := false
	err := c.breaker.Execute(func() error {
		err := c.l2.Get(ctx, key, &raw)
		if errors.Is(err, ErrCacheMiss) {
			missed = true
			return nil
		}
		return err
	})

	switch {
	case errors.Is(err, ErrCircuitBreakerOpen):
		c.metrics.misses.Add(1)
		return ErrCacheMiss
	case err != nil:
		c.metrics.errors.Add(1)
		return fmt.Errorf("%w: %w", ErrCacheDown, err)
	case missed:
		c.metrics.misses.Add(1)
		return ErrCacheMiss
	}

	c.metrics.l2Hits.Add(1)
	c.l1.Set(key, raw, l1TTLOnPromote)
	return json.Unmarshal(raw, dest)
}

func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	c.l1.Delete(keys...)
	c.metrics.invalidations.Add(1)

	if c.l2 == nil {
		return nil
	}
	return c.breaker.Execute(func() error {
		return c.l2.Delete(ctx, keys...)
	})
}

func (c *MultiLevelCache) DeletePattern(ctx context.Context, pattern string) error {
	c.l1.DeletePattern(pattern)
	c.metrics.invalidations.Add(1)

	if c.l2 == nil {
		return nil
	}
	return c.breaker.Execute(func() error {
		return c.l2.DeletePattern(ctx, pattern)
	})
}

func (c *MultiLevelCache) Metrics() MetricsSnapshot {
	return c.metrics.snapshot()
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":      c.l1.Stats(),
		"metrics": c.metrics.snapshot(),
		"breaker": c.breaker.GetStats(),
	}

	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}
	return stats
}

func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 != nil {
		return c.l2.Health(ctx)
	}
	return nil
}

func (c *MultiLevelCache) Close() error {
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}
