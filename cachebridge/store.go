// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package cachebridge

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/gregjones/httpcache"

	"willnorris.com/go/imagebridge/webcache"
)

// Optional capabilities of a wrapped httpcache.Cache.
type (
	haser          interface{ Has(key string) bool }
	sizer          interface{ Size() int64 }
	lener          interface{ Len() int }
	remover        interface{ RemoveAll() error }
	expiredRemover interface{ RemoveExpired() error }
)

// StoreCache is a webcache.DiskCache backed by any httpcache.Cache, such
// as an lrucache, a twotier chain, or a remote object store.
//
// httpcache.Cache only gets, sets and deletes.  StoreCache also uses these
// methods when the wrapped store provides them:
//
//	Has(key string) bool   // for Contains, instead of Get
//	Size() int64           // for TotalSize
//	Len() int              // for TotalCount
//	RemoveAll() error      // for RemoveAll
//	RemoveExpired() error  // for RemoveExpired
//
// Without them, RemoveAll and RemoveExpired return an error matching
// errors.ErrUnsupported, and the totals are zero.
type StoreCache struct {
	store  httpcache.Cache
	config webcache.Config
}

var _ webcache.DiskCache = (*StoreCache)(nil)

// WrapStore adapts an httpcache.Cache.
func WrapStore(store httpcache.Cache, config webcache.Config) *StoreCache {
	return &StoreCache{store: store, config: config}
}

// Store returns the wrapped cache.
func (c *StoreCache) Store() httpcache.Cache { return c.store }

func (c *StoreCache) Config() webcache.Config { return c.config }

func (c *StoreCache) Contains(key string) bool {
	if h, ok := c.store.(haser); ok {
		return h.Has(key)
	}
	_, ok := c.store.Get(key)
	return ok
}

func (c *StoreCache) Data(key string) ([]byte, error) {
	data, ok := c.store.Get(key)
	if !ok {
		return nil, fmt.Errorf("cachebridge: %q: %w", key, fs.ErrNotExist)
	}
	return data, nil
}

func (c *StoreCache) SetData(key string, data []byte) error {
	c.store.Set(key, data)
	return nil
}

func (c *StoreCache) ExtendedData(key string) ([]byte, error) {
	return c.Data(key + extSuffix)
}

// SetExtendedData stores data alongside the data for key.  Nil data
// removes the extended data.
func (c *StoreCache) SetExtendedData(key string, data []byte) error {
	if data == nil {
		c.store.Delete(key + extSuffix)
		return nil
	}
	return c.SetData(key+extSuffix, data)
}

func (c *StoreCache) Remove(key string) error {
	c.store.Delete(key + extSuffix)
	c.store.Delete(key)
	return nil
}

func (c *StoreCache) RemoveAll() error {
	if r, ok := c.store.(remover); ok {
		return r.RemoveAll()
	}
	return fmt.Errorf("cachebridge: %T cannot remove all entries: %w", c.store, errors.ErrUnsupported)
}

func (c *StoreCache) RemoveExpired() error {
	if r, ok := c.store.(expiredRemover); ok {
		return r.RemoveExpired()
	}
	return fmt.Errorf("cachebridge: %T cannot remove expired entries: %w", c.store, errors.ErrUnsupported)
}

// CachePath returns the empty string: stores have no local path.
func (c *StoreCache) CachePath(key string) string { return "" }

func (c *StoreCache) TotalCount() int {
	if l, ok := c.store.(lener); ok {
		return l.Len()
	}
	return 0
}

func (c *StoreCache) TotalSize() int64 {
	if s, ok := c.store.(sizer); ok {
		return s.Size()
	}
	return 0
}
