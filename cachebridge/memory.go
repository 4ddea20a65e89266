// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

// Package cachebridge presents existing Go caches under the loader cache
// contracts of package webcache.
//
// Each adapter forwards to the cache it wraps: persistence and thread
// safety remain those of the wrapped cache.  Decoded images live in a
// patrickmn/go-cache MemoryCache, encoded data in a diskv DiskCache or in
// any httpcache.Cache through StoreCache, and Cache combines the two into
// a webcache.ImageCache.
package cachebridge

import (
	"container/list"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"willnorris.com/go/imagebridge/webcache"
)

// MemoryCache is a webcache.MemoryCache backed by a go-cache.
//
// go-cache bounds objects only by age, so MemoryCache tracks the cost and
// recency of the objects it stores and evicts the least recently used ones
// once MaxMemoryCost or MaxMemoryCount is exceeded.  Objects placed in the
// go-cache directly are not counted against the limits.
type MemoryCache struct {
	cache  *gocache.Cache
	config webcache.Config

	mu    sync.Mutex
	order *list.List // of *memoryEntry, most recently used first
	items map[string]*list.Element
	cost  int64
}

type memoryEntry struct {
	key  string
	cost int64
}

var _ webcache.MemoryCache = (*MemoryCache)(nil)

// NewMemoryCache returns a memory cache whose objects never expire by age.
func NewMemoryCache(config webcache.Config) *MemoryCache {
	return WrapMemoryCache(gocache.New(gocache.NoExpiration, 0), config)
}

// WrapMemoryCache adapts an existing go-cache.  Objects are stored with
// the cache's default expiration.  The go-cache's eviction callback is
// replaced so that expired objects stop counting against the limits.
func WrapMemoryCache(c *gocache.Cache, config webcache.Config) *MemoryCache {
	m := &MemoryCache{
		cache:  c,
		config: config,
		order:  list.New(),
		items:  make(map[string]*list.Element),
	}
	c.OnEvicted(func(key string, _ any) { m.forget(key) })
	return m
}

// Cache returns the wrapped go-cache.
func (c *MemoryCache) Cache() *gocache.Cache { return c.cache }

func (c *MemoryCache) Config() webcache.Config { return c.config }

// Count returns the number of objects in the cache, including expired
// objects not yet cleaned up.
func (c *MemoryCache) Count() int { return c.cache.ItemCount() }

// Cost returns the total cost of the objects stored through SetObject.
func (c *MemoryCache) Cost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cost
}

func (c *MemoryCache) Object(key string) (any, bool) {
	obj, ok := c.cache.Get(key)
	c.mu.Lock()
	if e, tracked := c.items[key]; tracked {
		if ok {
			c.order.MoveToFront(e)
		} else {
			c.remove(e)
		}
	}
	c.mu.Unlock()
	return obj, ok
}

// SetObject stores obj and then evicts the least recently used objects
// until the cache is within its limits.  An object whose cost alone
// exceeds MaxMemoryCost is not kept.
func (c *MemoryCache) SetObject(key string, obj any, cost int) {
	c.cache.Set(key, obj, gocache.DefaultExpiration)

	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		ent := e.Value.(*memoryEntry)
		c.cost += int64(cost) - ent.cost
		ent.cost = int64(cost)
		c.order.MoveToFront(e)
	} else {
		c.items[key] = c.order.PushFront(&memoryEntry{key: key, cost: int64(cost)})
		c.cost += int64(cost)
	}
	var evicted []string
	for c.order.Len() > 0 && c.overLimit() {
		e := c.order.Back()
		evicted = append(evicted, e.Value.(*memoryEntry).key)
		c.remove(e)
	}
	c.mu.Unlock()

	// go-cache calls OnEvicted from Delete, which takes c.mu
	for _, k := range evicted {
		c.cache.Delete(k)
	}
}

func (c *MemoryCache) RemoveObject(key string) {
	c.forget(key)
	c.cache.Delete(key)
}

func (c *MemoryCache) RemoveAllObjects() {
	c.cache.Flush()
	c.mu.Lock()
	c.order.Init()
	clear(c.items)
	c.cost = 0
	c.mu.Unlock()
}

func (c *MemoryCache) overLimit() bool {
	if n := c.config.MaxMemoryCount; n > 0 && c.order.Len() > n {
		return true
	}
	return c.config.MaxMemoryCost > 0 && c.cost > c.config.MaxMemoryCost
}

func (c *MemoryCache) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.remove(e)
	}
}

// remove drops e from the bookkeeping.  c.mu must be held.
func (c *MemoryCache) remove(e *list.Element) {
	ent := c.order.Remove(e).(*memoryEntry)
	delete(c.items, ent.key)
	c.cost -= ent.cost
}
