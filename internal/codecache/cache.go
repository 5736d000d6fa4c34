// Package codecache implements the Code Cache (C6): a bounded LRU of
// source text, single-flighted against the object store so a cold
// cache never causes a concurrent thundering herd. See spec.md §4.6.
package codecache

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned by ObjectStore.Get when key does not exist.
var ErrNotFound = errors.New("codecache: object not found")

// ErrNoEntryFile is returned when none of the candidate entry
// filenames resolve under storageKey.
var ErrNoEntryFile = errors.New("codecache: no entry file found under storage key")

const defaultCapacity = 256

// entryCandidates are tried in order; the first that resolves is
// cached, per spec.md §4.6.
var entryCandidates = []string{"index.tsx", "index.ts", "index.jsx", "index.js"}

// ObjectStore fetches raw source bytes by fully-qualified key.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type cached struct {
	sourceText string
	entryFile  string
}

// Cache is a bounded, single-flighted LRU of (app_id, storage_key) ->
// source text.
type Cache struct {
	store ObjectStore
	lru   lruCache
	sf    singleflight.Group
}

// lruCache is the narrow surface this package needs from
// internal/lrucache, kept as an interface so tests can swap a trivial
// map if desired.
type lruCache interface {
	Get(key string) (cached, bool)
	Put(key string, value cached)
}

// New builds a Cache with the spec-default LRU capacity (a few hundred
// entries).
func New(store ObjectStore) *Cache {
	return &Cache{store: store, lru: newGenericLRU(defaultCapacity)}
}

func cacheKey(appID, storageKey string) string {
	return appID + "\x00" + storageKey
}

// Fetch resolves the source text for (appID, storageKey), serving from
// cache when possible and deduping concurrent misses onto one
// object-store fetch (spec.md §8 invariant 7).
func (c *Cache) Fetch(ctx context.Context, appID, storageKey string) (string, error) {
	key := cacheKey(appID, storageKey)

	if v, ok := c.lru.Get(key); ok {
		return v.sourceText, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		// Re-check: another goroutine may have populated the cache while
		// this one waited to acquire the singleflight slot.
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}

		for _, candidate := range entryCandidates {
			fullKey := fmt.Sprintf("%s/%s", storageKey, candidate)
			source, err := c.store.Get(ctx, fullKey)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return cached{}, err
			}
			result := cached{sourceText: string(source), entryFile: candidate}
			c.lru.Put(key, result)
			return result, nil
		}
		return cached{}, ErrNoEntryFile
	})
	if err != nil {
		return "", err
	}

	return v.(cached).sourceText, nil
}
