package prices

import (
	"sync"
	"time"
)

type cacheEntry struct {
	price    float64
	storedAt time.Time
}

// Cache is a TTL price cache keyed by canonical symbol.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

// Get returns the cached price and whether it is still fresh.
func (c *Cache) Get(symbol string) (float64, bool) {
	c.mu.RLock()
	e, ok := c.entries[symbol]
	c.mu.RUnlock()
	if !ok || time.Since(e.storedAt) >= c.ttl {
		return 0, false
	}
	return e.price, true
}

// Put stores price for symbol.
func (c *Cache) Put(symbol string, price float64) {
	c.mu.Lock()
	c.entries[symbol] = cacheEntry{price: price, storedAt: time.Now()}
	c.mu.Unlock()
}
