package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benvon/checkin-insights/internal/models"
)

// DefaultMaxEntries bounds the in-process cache
const DefaultMaxEntries = 10000

type memEntry struct {
	result    *models.PredictionResult
	createdAt time.Time
	expiresAt time.Time
}

// MemoryCache is an in-process cache with passive expiry and a size bound
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]memEntry
	maxEntries int
	now        func() time.Time
}

// NewMemoryCache creates a memory cache holding at most maxEntries results
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryCache{
		entries:    make(map[string]memEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get implements Cache
func (c *MemoryCache) Get(ctx context.Context, key Key) (*models.PredictionResult, bool) {
	r, _, ok := c.GetWithTTL(ctx, key)
	return r, ok
}

// GetWithTTL implements TTLReader
func (c *MemoryCache) GetWithTTL(_ context.Context, key Key) (*models.PredictionResult, time.Duration, bool) {
	c.mu.RLock()
	e, ok := c.entries[key.String()]
	c.mu.RUnlock()
	now := c.now()
	if !ok || !now.Before(e.expiresAt) {
		return nil, 0, false
	}
	return e.result.Clone(), e.expiresAt.Sub(now), true
}

// Put implements Cache
func (c *MemoryCache) Put(_ context.Context, key Key, result *models.PredictionResult, ttl time.Duration) error {
	if result == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := c.now()
	k := key.String()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[k]; !exists && len(c.entries) >= c.maxEntries {
		c.purgeLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}
	c.entries[k] = memEntry{
		result:    result.Clone(),
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// PurgeExpired removes expired entries and returns how many were removed
func (c *MemoryCache) PurgeExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(now)
}

// Len returns the number of stored entries, including expired ones not yet purged
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) purgeLocked(now time.Time) int {
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *MemoryCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey, oldest = k, e.createdAt
		}
	}
	delete(c.entries, oldestKey)
}
