package slicing

import (
	"fmt"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/janelia-flyem/tomoflow/pattern"
)

// Cache holds recently generated slice lists so that every worker rank of a
// stage shares one list per (shape, pattern, max frames).
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache

	hits, misses int
}

// NewCache returns a cache holding at most maxEntries lists.
func NewCache(maxEntries int) *Cache {
	return &Cache{lru: lru.New(maxEntries)}
}

func cacheKey(p pattern.Pattern, shape []int, pv Preview, maxFrames int) string {
	return fmt.Sprintf("%v|%v|%v|%s|%d", shape, p.CoreDims, p.SliceDims, pv, maxFrames)
}

// Get returns the slice list for the pattern, generating it on a miss.  The
// returned list is shared and must not be modified.
func (c *Cache) Get(p pattern.Pattern, shape []int, maxFrames int) (List, error) {
	return c.GetPreview(p, shape, nil, maxFrames)
}

// GetPreview is Get for the previewed region of a dataset.
func (c *Cache) GetPreview(p pattern.Pattern, shape []int, pv Preview, maxFrames int) (List, error) {
	key := cacheKey(p, shape, pv, maxFrames)
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, found := c.lru.Get(key); found {
		c.hits++
		return v.(List), nil
	}
	c.misses++
	list, err := ForPreview(p, shape, pv, maxFrames)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, list)
	return list, nil
}

// Stats returns the number of hits and misses so far.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
