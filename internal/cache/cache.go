package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mlavoie/climate-station-service/internal/models"
)

// Cache stores fetched station catalogs keyed by a normalized province
// list. The upstream fetch itself is always fresh; caching exists only in
// the service layer because the station catalog changes rarely.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.Station, bool, error)
	Set(ctx context.Context, key string, value []models.Station, ttl time.Duration) error
}

// InMemoryCache implements Cache with a map and TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	value     []models.Station
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory catalog cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get returns the cached catalog for the key if present and not expired.
// Returns (catalog, true, nil) on hit, (nil, false, nil) on miss.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]models.Station, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a catalog with the given TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []models.Station, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
