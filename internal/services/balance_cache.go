package services

import (
	"sync"
	"time"
)

type cachedBalance struct {
	lamports uint64
	at       time.Time
}

// BalanceCache holds the last-known lamports per address. It feeds the
// transfer pre-flight guard only; the network stays authoritative.
type BalanceCache struct {
	mu sync.RWMutex
	m  map[string]cachedBalance
}

func NewBalanceCache() *BalanceCache {
	return &BalanceCache{m: make(map[string]cachedBalance)}
}

func (c *BalanceCache) Get(address string) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.m[address]
	return b.lamports, ok
}

func (c *BalanceCache) Set(address string, lamports uint64) {
	c.mu.Lock()
	c.m[address] = cachedBalance{lamports: lamports, at: time.Now()}
	c.mu.Unlock()
}

// Invalidate drops the entries so the next guard re-reads the network.
func (c *BalanceCache) Invalidate(addresses ...string) {
	c.mu.Lock()
	for _, a := range addresses {
		delete(c.m, a)
	}
	c.mu.Unlock()
}

// UpdatedAt reports when address was last written.
func (c *BalanceCache) UpdatedAt(address string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.m[address]
	return b.at, ok
}
