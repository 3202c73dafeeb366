package vesta

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Cache is a read-through store for query results. Keys are prefixed
// with the entity name so writes can drop everything an entity
// contributed to.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	DeletePrefix(ctx context.Context, prefix string)
}

// MemoryCache is an in-process Cache backed by a map. It is safe for
// concurrent use.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string][]byte)}
}

// Get returns the entry stored under key.
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

// Set stores value under key.
func (m *MemoryCache) Set(_ context.Context, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
}

// DeletePrefix drops every entry whose key starts with prefix.
func (m *MemoryCache) DeletePrefix(_ context.Context, prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			delete(m.items, k)
		}
	}
}

// Len returns the number of cached entries.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// cacheKey derives the cache key of one compiled statement. The entity
// prefix scopes invalidation; statement and arguments identify the
// exact result.
func cacheKey(entity, stmt string, args []any) string {
	return fmt.Sprintf("%s:%s|%v", entity, stmt, args)
}

func cacheGet(ctx context.Context, c Cache, key string) ([]Record, bool) {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var recs []Record
	if err := msgpack.Unmarshal(raw, &recs); err != nil {
		return nil, false
	}
	return recs, true
}

func cacheSet(ctx context.Context, c Cache, key string, recs []Record) {
	raw, err := msgpack.Marshal(recs)
	if err != nil {
		return
	}
	c.Set(ctx, key, raw)
}
