package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
)

// DefaultMemorySize is used when NewMemoryAdapter gets a non-positive size.
const DefaultMemorySize = 1024

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryAdapter is a process-local CacheProvider used when Redis is off.
// It holds at most size entries, evicting the least recently used, and the
// LRU drops anything older than ttl in the background.
type MemoryAdapter struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time
}

// NewMemoryAdapter creates an empty in-memory cache. A ttl of zero keeps
// entries until they are evicted or their own expiration passes.
func NewMemoryAdapter(size int, ttl time.Duration) *MemoryAdapter {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &MemoryAdapter{
		lru: expirable.NewLRU[string, memoryEntry](size, nil, ttl),
		now: time.Now,
	}
}

// Get retrieves a value from cache
func (a *MemoryAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	entry, ok := a.lru.Get(key)
	if ok && !entry.expiresAt.IsZero() && !a.now().Before(entry.expiresAt) {
		a.lru.Remove(key)
		ok = false
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", providers.ErrCacheMiss, key)
	}
	return append([]byte(nil), entry.value...), nil
}

// Set stores a value in cache with expiration; zero means no expiry beyond
// the adapter's own ttl
func (a *MemoryAdapter) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if expirationSeconds > 0 {
		entry.expiresAt = a.now().Add(time.Duration(expirationSeconds) * time.Second)
	}
	a.lru.Add(key, entry)
	return nil
}

// Delete removes a value from cache
func (a *MemoryAdapter) Delete(ctx context.Context, key string) error {
	a.lru.Remove(key)
	return nil
}

// Len reports how many entries are held, expired ones included until swept.
func (a *MemoryAdapter) Len() int {
	return a.lru.Len()
}
