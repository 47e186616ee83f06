package caching

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// InMemoryCache keeps values for a fixed TTL, expired entries are purged every TTL.
type InMemoryCache struct {
	store *gocache.Cache
	ttl   time.Duration
}

var _ MemCache = (*InMemoryCache)(nil)

func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	return &InMemoryCache{
		store: gocache.New(ttl, ttl),
		ttl:   ttl,
	}
}

func (m *InMemoryCache) Get(key string) (interface{}, bool) {
	return m.store.Get(key)
}

func (m *InMemoryCache) Set(key string, value interface{}) error {
	m.store.Set(key, value, m.ttl)

	return nil
}

func (m *InMemoryCache) Delete(key string) {
	m.store.Delete(key)
}
