package collections

import (
	"sync"
	"time"
)

type cacheEntry struct {
	ids       []int64
	expiresAt time.Time
}

type cacheStore struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newCache() *cacheStore {
	return &cacheStore{entries: make(map[string]cacheEntry)}
}

func (c *cacheStore) Get(key string, now time.Time) ([]int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return append([]int64(nil), entry.ids...), true
}

func (c *cacheStore) Set(key string, ids []int64, ttl time.Duration, now time.Time) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		ids:       append([]int64(nil), ids...),
		expiresAt: now.Add(ttl),
	}
	c.mu.Unlock()
}
