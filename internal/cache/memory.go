package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps embedding vectors in process memory. It is the hot
// tier; entries expire after the configured TTL.
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a memory cache with the given default TTL.
// Expired entries are swept at half the TTL, at least once a minute.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	cleanup := defaultTTL / 2
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &MemoryCache{cache: gocache.New(defaultTTL, cleanup)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	data, ok := val.([]byte)
	return data, ok
}

func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	c.cache.Set(key, value, ttl)
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.cache.Delete(key)
	return nil
}

func (c *MemoryCache) Clear() error {
	c.cache.Flush()
	return nil
}
