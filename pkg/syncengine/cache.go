package syncengine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Resource cache keys.
const (
	CacheKeyBookings    = "bookings"
	cacheKeyBankDetails = "bankDetails"
)

// BankDetailsCacheKey returns the per-provider cache key for bank details.
func BankDetailsCacheKey(providerID string) string {
	return cacheKeyBankDetails + ":" + providerID
}

// FetchOptions tune one cache fetch.
type FetchOptions struct {
	// Force skips the cooldown window. It never bypasses in-flight
	// de-duplication: a forced fetch joins an existing request for the key.
	Force bool
	// Cooldown is the minimum interval between two loads of the key.
	Cooldown time.Duration
}

// Loader performs the actual remote read for a cache key.
type Loader func(ctx context.Context) (any, error)

type cacheEntry struct {
	data      any
	fetchedAt time.Time
}

// Cache is the per-resource-key store backing every read path. It guarantees at
// most one in-flight load per key (shared via singleflight) and suppresses
// redundant loads inside each key's cooldown window.
type Cache struct {
	nowFn   func() time.Time
	mu      sync.Mutex
	entries map[string]cacheEntry
	flight  singleflight.Group
}

// NewCache wires an empty cache.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		nowFn:   now,
		entries: make(map[string]cacheEntry),
	}
}

// Fetch returns the cached value when the cooldown still holds, otherwise runs
// the loader — joining any load already in flight for the same key. On loader
// failure nothing is stored, so a subsequent manual retry can proceed at once.
func (cache *Cache) Fetch(ctx context.Context, key string, loader Loader, options FetchOptions) (any, error) {
	if !options.Force {
		cache.mu.Lock()
		entry, exists := cache.entries[key]
		cache.mu.Unlock()
		if exists && cache.nowFn().Sub(entry.fetchedAt) < options.Cooldown {
			return entry.data, nil
		}
	}

	result, err, _ := cache.flight.Do(key, func() (any, error) {
		data, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		cache.mu.Lock()
		cache.entries[key] = cacheEntry{data: data, fetchedAt: cache.nowFn()}
		cache.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Peek returns the cached value without touching the network.
func (cache *Cache) Peek(key string) (any, bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	entry, exists := cache.entries[key]
	if !exists {
		return nil, false
	}
	return entry.data, true
}

// Invalidate drops a key so the next fetch loads fresh data.
func (cache *Cache) Invalidate(key string) {
	cache.mu.Lock()
	delete(cache.entries, key)
	cache.mu.Unlock()
}
