// Package cache provides a bounded, coalescing memoization cache for
// expensive lookups such as provider calls and FX rates. Entries live until
// capacity eviction; there is no time-based expiry, so callers that need
// freshness must put a date component into the key.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes successful producer results under an LRU discipline.
// Concurrent callers asking for the same key are coalesced: the producer runs
// at most once per key at a time and every waiter receives its result.
// Failed productions are never cached.
type Cache[V any] struct {
	entries *lru.Cache[string, V]
	group   singleflight.Group
}

// New creates a cache bounded to capacity entries.
func New[V any](capacity int) (*Cache[V], error) {
	entries, err := lru.New[string, V](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{entries: entries}, nil
}

// GetOrCompute returns the cached value for key, invoking producer to fill a
// miss. Eviction under capacity pressure can still cause a recompute for a
// key that was recently present; correctness must never depend on a hit.
func (c *Cache[V]) GetOrCompute(key string, producer func() (V, error)) (V, error) {
	if v, ok := c.entries.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another caller may have filled the
		// entry between our miss and acquiring the flight.
		if v, ok := c.entries.Get(key); ok {
			return v, nil
		}
		v, err := producer()
		if err != nil {
			return v, err
		}
		c.entries.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Len returns the number of resident entries.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}
