package codecache

import "github.com/ultralight/host/internal/lrucache"

// genericLRU adapts internal/lrucache.Cache[string, cached] (content
// never expires once fetched — storage_key is content-addressed per
// spec.md §3, so only bounded eviction applies, no TTL) to the narrow
// lruCache interface above.
type genericLRU struct {
	c *lrucache.Cache[string, cached]
}

func newGenericLRU(capacity int) *genericLRU {
	return &genericLRU{c: lrucache.New[string, cached](capacity, 0, nil)}
}

func (g *genericLRU) Get(key string) (cached, bool) {
	return g.c.Get(key)
}

func (g *genericLRU) Put(key string, value cached) {
	g.c.Put(key, value)
}
