package prices

import (
	"sync"
	"time"
)

// Entry is one cached mark price.
type Entry struct {
	Price     float64
	UpdatedAt time.Time
}

// Cache holds the latest known mark price per market symbol. It is created
// at startup and passed to the components that need prices; there is no
// package-level shared state. A price older than maxAge is treated as
// unusable so sizing fails closed instead of trading on stale data.
type Cache struct {
	mu     sync.RWMutex
	prices map[string]Entry
	maxAge time.Duration
}

// NewCache creates a price cache with the given staleness bound.
func NewCache(maxAge time.Duration) *Cache {
	if maxAge <= 0 {
		maxAge = 30 * time.Second
	}
	return &Cache{
		prices: make(map[string]Entry),
		maxAge: maxAge,
	}
}

// Set records the latest price for a symbol.
func (c *Cache) Set(symbol string, price float64) {
	if price <= 0 {
		return
	}
	c.mu.Lock()
	c.prices[symbol] = Entry{Price: price, UpdatedAt: time.Now()}
	c.mu.Unlock()
}

// Get returns the cached price and whether it is fresh enough to use.
func (c *Cache) Get(symbol string) (float64, bool) {
	c.mu.RLock()
	e, ok := c.prices[symbol]
	c.mu.RUnlock()
	if !ok || time.Since(e.UpdatedAt) > c.maxAge {
		return 0, false
	}
	return e.Price, true
}
