// Package cache keeps a bounded set of recently used values.
package cache

import (
	"sync"
	"time"
)

type entry[K comparable] struct {
	key K
	ts  time.Time
}

type item[V any] struct {
	value V
	ts    time.Time
}

// TTL is a fixed-capacity map whose entries expire after ttl. When full, the
// oldest insertion is evicted first.
type TTL[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]item[V]
	order    []entry[K]
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// New creates a cache with the provided capacity and ttl.
func New[K comparable, V any](capacity int, ttl time.Duration) *TTL[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TTL[K, V]{
		items:    make(map[K]item[V], capacity),
		order:    make([]entry[K], 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the value stored under key if it is still inside the ttl window.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok && now.Sub(it.ts) <= c.ttl {
		return it.value, true
	}
	var zero V
	return zero, false
}

// Contains reports whether key is present and fresh.
func (c *TTL[K, V]) Contains(key K) bool {
	_, ok := c.Get(key)
	return ok
}

// Put records value under key, refreshing its age.
func (c *TTL[K, V]) Put(key K, value V) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item[V]{value: value, ts: now}
	c.order = append(c.order, entry[K]{key: key, ts: now})
	c.compact(now)
}

// Len returns the number of stored entries, expired ones included until compaction.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Reset drops every entry.
func (c *TTL[K, V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]item[V], c.capacity)
	c.order = c.order[:0]
}

func (c *TTL[K, V]) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		// a later Put of the same key leaves a stale order entry behind
		if it, ok := c.items[oldest.key]; ok && it.ts.Equal(oldest.ts) {
			delete(c.items, oldest.key)
		}
	}
}
