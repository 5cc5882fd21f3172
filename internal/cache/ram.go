package cache

import (
	"sync"
	"time"

	"github.com/plcoste/syndic/internal/fiscal"
)

type ramEntry struct {
	sit     *fiscal.Situation
	expires time.Time
}

// RAMCache is the in-process implementation, for single-instance
// deployments and tests.
type RAMCache struct {
	mu      sync.RWMutex
	entries map[string]ramEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewRAMCache creates a cache whose entries live for ttl.
func NewRAMCache(ttl time.Duration) *RAMCache {
	return &RAMCache{
		entries: make(map[string]ramEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements SituationCache.
func (c *RAMCache) Get(buildingID string, year int) (*fiscal.Situation, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key(buildingID, year)]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.sit, true
}

// Set implements SituationCache.
func (c *RAMCache) Set(buildingID string, year int, sit *fiscal.Situation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key(buildingID, year)] = ramEntry{sit: sit, expires: c.now().Add(c.ttl)}
}

// Invalidate implements SituationCache.
func (c *RAMCache) Invalidate(buildingID string, year int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key(buildingID, year))
}

var _ SituationCache = (*RAMCache)(nil)
