package cache

import (
	"context"
	"sync"
	"time"

	"github.com/pressograph/prefsync"
)

// DefaultGCInterval is how often MemoryCache sweeps expired entries.
const DefaultGCInterval = time.Minute

// item represents a single cache entry with a value and an expiration time.
type item struct {
	value      string
	expiration time.Time
}

func (it item) expired(now time.Time) bool {
	return !it.expiration.IsZero() && now.After(it.expiration)
}

// MemoryCache is an in-process Cache. It is shared only by Syncers in the
// same process, which makes it suitable for single-node deployments and tests.
type MemoryCache struct {
	mu        sync.RWMutex
	items     map[string]item
	stop      chan struct{}
	closeOnce sync.Once
}

// NewMemoryCache initializes a MemoryCache and starts a goroutine that
// removes expired entries every interval. A non-positive interval uses
// DefaultGCInterval. Close stops the goroutine.
func NewMemoryCache(interval time.Duration) *MemoryCache {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	cache := &MemoryCache{
		items: make(map[string]item),
		stop:  make(chan struct{}),
	}
	go cache.gc(interval)
	return cache
}

// Get returns the value stored under key. Expired entries read as
// prefsync.ErrNotFound even before the sweeper removes them.
func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, exists := c.items[key]
	if !exists || it.expired(time.Now()) {
		return "", prefsync.ErrNotFound
	}
	return it.value, nil
}

// Set stores value under key. A ttl of zero or less never expires.
func (c *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiration time.Time
	if ttl > 0 {
		expiration = time.Now().Add(ttl)
	}
	c.items[key] = item{value: value, expiration: expiration}
	return nil
}

// Delete removes key. It returns prefsync.ErrNotFound if nothing was stored.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; !ok {
		return prefsync.ErrNotFound
	}
	delete(c.items, key)
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the sweeper and drops every entry. It is safe to call twice.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.mu.Lock()
		c.items = make(map[string]item)
		c.mu.Unlock()
	})
	return nil
}

func (c *MemoryCache) gc(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep(time.Now())
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, it := range c.items {
		if it.expired(now) {
			delete(c.items, key)
		}
	}
}
