// Package synthcache memoizes synthesis results keyed by exact text.
package synthcache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a fixed-capacity LRU keyed by the literal text argument.
// Keys are matched by exact string equality, no normalization.
type Cache[V any] struct {
	entries *lru.Cache[string, V]
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache with the given capacity. Entries are evicted strictly
// least-recently-used; they never expire by time.
func New[V any](capacity int) (*Cache[V], error) {
	entries, err := lru.New[string, V](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &Cache[V]{entries: entries}, nil
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. Racing misses for the same key may compute more than once; the
// underlying cache serializes its own bookkeeping so recency order and
// eviction stay consistent.
func (c *Cache[V]) GetOrCompute(key string, compute func() V) V {
	if value, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return value
	}
	c.misses.Add(1)
	value := compute()
	c.entries.Add(key, value)
	return value
}

// Get reports the cached value without computing.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.entries.Get(key)
}

// Contains reports presence without updating recency.
func (c *Cache[V]) Contains(key string) bool {
	return c.entries.Contains(key)
}

// Len reports the number of cached entries.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}

// Stats reports accumulated hit and miss counts.
func (c *Cache[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
