package cache

import (
	"time"

	"shipzone-sync/pkg/cache"

	gocache "github.com/patrickmn/go-cache"
)

type memoryCache struct {
	store     *gocache.Cache
	namespace string
}

// NewMemoryCache creates an in-memory cache whose keys are prefixed with
// namespace, so several sites can share one store.
// defaultExpiration: default TTL for items
// cleanupInterval: how often to scan for expired items
func NewMemoryCache(namespace string, defaultExpiration, cleanupInterval time.Duration) cache.CacheService {
	return &memoryCache{
		store:     gocache.New(defaultExpiration, cleanupInterval),
		namespace: namespace,
	}
}

func (c *memoryCache) key(k string) string {
	if c.namespace == "" {
		return k
	}
	return c.namespace + ":" + k
}

func (c *memoryCache) Get(key string) (interface{}, bool) {
	return c.store.Get(c.key(key))
}

func (c *memoryCache) Set(key string, value interface{}, duration time.Duration) {
	c.store.Set(c.key(key), value, duration)
}

func (c *memoryCache) Delete(key string) {
	c.store.Delete(c.key(key))
}
