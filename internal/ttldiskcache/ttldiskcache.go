// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

// Package ttldiskcache provides a disk cache implementation with TTL support
package ttldiskcache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/glog"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/peterbourgon/diskv"
)

// entry is the metadata kept for each cached key.
type entry struct {
	Key    string
	Expiry time.Time
}

// Cache is a disk cache whose entries expire a fixed time after they are
// written.  Data lives under <base>/data, and expiry metadata under
// <base>/meta.
type Cache struct {
	data *diskcache.Cache
	disk *diskv.Diskv
	meta *diskv.Diskv
	ttl  time.Duration

	mu  sync.RWMutex
	now func() time.Time
}

// shard stores file "c0ffee" as "c0/ff/c0ffee".
func shard(s string) []string { return []string{s[0:2], s[2:4]} }

// New creates a new Cache with the specified base path and TTL.  A ttl of
// zero keeps entries until they are deleted.
func New(basePath string, ttl time.Duration) *Cache {
	d := diskv.New(diskv.Options{
		BasePath:  filepath.Join(basePath, "data"),
		Transform: shard,
	})
	return &Cache{
		data: diskcache.NewWithDiskv(d),
		disk: d,
		meta: diskv.New(diskv.Options{
			BasePath:  filepath.Join(basePath, "meta"),
			Transform: shard,
		}),
		ttl: ttl,
		now: time.Now,
	}
}

func metaKey(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

// Get retrieves data from the cache if it exists and hasn't expired.
// Expired entries are deleted.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, err := c.loadEntry(metaKey(key))
	var (
		data []byte
		ok   bool
	)
	if err == nil && !c.expired(e) {
		data, ok = c.data.Get(key)
	}
	c.mu.RUnlock()

	if err == nil && !ok {
		c.Delete(key)
	}
	return data, ok
}

// Set stores data in the cache with the configured TTL.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{Key: key}
	if c.ttl > 0 {
		e.Expiry = c.now().Add(c.ttl)
	}
	if err := c.saveEntry(metaKey(key), e); err != nil {
		glog.Errorf("error saving cache metadata: %v", err)
		return
	}

	c.data.Set(key, data)
}

// Delete removes data from both the cache and its metadata.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data.Delete(key)
	c.deleteEntry(metaKey(key))
}

// Has reports whether an unexpired entry exists for key.
func (c *Cache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, err := c.loadEntry(metaKey(key))
	return err == nil && !c.expired(e)
}

// Len returns the number of cached entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for range c.meta.Keys(nil) {
		n++
	}
	return n
}

// RemoveExpired removes all expired entries from the cache.
func (c *Cache) RemoveExpired() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for name := range c.meta.Keys(nil) {
		e, err := c.loadEntry(name)
		if err != nil {
			continue
		}
		if c.expired(e) {
			c.data.Delete(e.Key)
			expired = append(expired, name)
		}
	}

	var errs []error
	for _, name := range expired {
		if err := c.meta.Erase(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveAll removes every entry and its metadata.
func (c *Cache) RemoveAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return errors.Join(c.disk.EraseAll(), c.meta.EraseAll())
}

func (c *Cache) expired(e entry) bool {
	return !e.Expiry.IsZero() && c.now().After(e.Expiry)
}

func (c *Cache) saveEntry(name string, e entry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return err
	}
	return c.meta.Write(name, buf.Bytes())
}

func (c *Cache) loadEntry(name string) (entry, error) {
	var e entry
	data, err := c.meta.Read(name)
	if err != nil {
		return e, err
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		glog.Errorf("error decoding cache metadata: %v", err)
		return e, err
	}
	return e, nil
}

func (c *Cache) deleteEntry(name string) {
	if err := c.meta.Erase(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		glog.Errorf("error deleting cache metadata: %v", err)
	}
}
