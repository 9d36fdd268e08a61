package utils

import (
	"strings"
	"sync"
	"time"
)

// cacheItem is a cached value and the time it was written
type cacheItem struct {
	value     interface{}
	writtenAt time.Time
}

// ExpiringCache is an in-memory key/value store whose entries carry a write
// timestamp. Freshness is decided by the reader: every Get passes the
// maximum age it accepts, so a token and a message body cached side by side
// can tolerate different staleness. There is no size bound; an entry leaves
// the map only when a Get finds it expired.
type ExpiringCache struct {
	items map[string]*cacheItem
	mu    sync.RWMutex
	now   func() time.Time
}

// CacheOption configures an ExpiringCache
type CacheOption func(*ExpiringCache)

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *ExpiringCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewExpiringCache creates an empty cache
func NewExpiringCache(opts ...CacheOption) *ExpiringCache {
	c := &ExpiringCache{
		items: make(map[string]*cacheItem),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores value under key, replacing any previous entry
func (c *ExpiringCache) Set(key string, value interface{}) {
	c.mu.Lock()
	c.items[key] = &cacheItem{value: value, writtenAt: c.now()}
	size := len(c.items)
	c.mu.Unlock()

	CacheEntries.Set(float64(size))
}

// Get returns the value for key if it was written less than maxAge ago.
// An expired entry is removed before Get reports a miss.
func (c *ExpiringCache) Get(key string, maxAge time.Duration) (interface{}, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		CacheLookups.WithLabelValues(keyKind(key), "miss").Inc()
		return nil, false
	}

	if c.now().Sub(item.writtenAt) >= maxAge {
		c.deleteIfSame(key, item)
		CacheLookups.WithLabelValues(keyKind(key), "expired").Inc()
		return nil, false
	}

	CacheLookups.WithLabelValues(keyKind(key), "hit").Inc()
	return item.value, true
}

// deleteIfSame removes key unless a concurrent Set already replaced item
func (c *ExpiringCache) deleteIfSame(key string, item *cacheItem) {
	c.mu.Lock()
	if current, ok := c.items[key]; ok && current == item {
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	CacheEntries.Set(float64(size))
}

// Size returns the number of items in cache, expired or not
func (c *ExpiringCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// CachedAs is a typed Get. A value of another type counts as a miss.
func CachedAs[T any](c *ExpiringCache, key string, maxAge time.Duration) (T, bool) {
	var zero T
	v, ok := c.Get(key, maxAge)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// keyKind returns the operation prefix of a composite key, e.g. "list"
func keyKind(key string) string {
	if idx := strings.IndexByte(key, ':'); idx > 0 {
		return key[:idx]
	}
	return "other"
}
