// Package cache provides the bounded, in-process response cache used by the
// gateway.
//
// Entries expire individually and the cache evicts in insertion order once it
// is full: reads never change an entry's eviction position, while re-setting a
// key moves it to the back of the queue. The cache has no TTL policy of its own;
// callers choose the TTL per entry.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chmcp/companies-house-mcp/pkg/clock"
	"github.com/chmcp/companies-house-mcp/pkg/models"
)

// DefaultMaxEntries is used when New is given a non-positive bound.
const DefaultMaxEntries = 1000

type entry struct {
	key       string
	value     any
	expiresAt time.Time
}

// Cache is a FIFO-evicting TTL cache. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	maxEntries int
	items      map[string]*list.Element
	order      *list.List // front is the oldest insertion
	clock      clock.Clock

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a Cache holding at most maxEntries entries.
func New(maxEntries int, clk clock.Clock) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Cache{
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element, maxEntries),
		order:      list.New(),
		clock:      clk,
	}
}

// Get returns the value stored under key. An expired entry is removed and
// reported as absent.
func (c *Cache) Get(key string) (any, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	el, ok := c.items[key]
	if ok && now.Before(el.Value.(*entry).expiresAt) {
		value := el.Value.(*entry).value
		c.mu.RUnlock()
		c.hits.Add(1)
		return value, true
	}
	c.mu.RUnlock()

	if ok {
		c.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have refreshed it.
		if el, ok := c.items[key]; ok {
			e := el.Value.(*entry)
			if now.Before(e.expiresAt) {
				c.mu.Unlock()
				c.hits.Add(1)
				return e.value, true
			}
			c.removeElement(el)
		}
		c.mu.Unlock()
	}

	c.misses.Add(1)
	return nil, false
}

// Set stores value under key for ttl. Re-setting an existing key replaces its
// value and expiry and moves it to the newest insertion position. Inserting a
// new key into a full cache first evicts the oldest insertion.
// A non-positive ttl stores nothing.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	e := &entry{key: key, value: value, expiresAt: c.clock.Now().Add(ttl)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	} else if len(c.items) >= c.maxEntries {
		c.evictOldest()
	}
	c.items[key] = c.order.PushBack(e)
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Clear removes every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.maxEntries)
	c.order.Init()
}

// Size returns the number of stored entries, expired ones included until they
// are read or evicted.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns entry count and counters.
func (c *Cache) Stats() models.CacheStats {
	return models.CacheStats{
		Entries:    int64(c.Size()),
		MaxEntries: int64(c.maxEntries),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
	}
}

// evictOldest drops the front of the queue. An empty cache is a no-op.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.removeElement(front)
	c.evictions.Add(1)
}

func (c *Cache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
