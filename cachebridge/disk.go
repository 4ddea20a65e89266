// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package cachebridge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/glog"
	"github.com/peterbourgon/diskv"

	"willnorris.com/go/imagebridge/webcache"
)

const extSuffix = ".ext"

// DiskCache is a webcache.DiskCache backed by a diskv store.  Keys are
// stored under the hex xxhash of the key, and extended data under the same
// name with an ".ext" suffix.
type DiskCache struct {
	d      *diskv.Diskv
	config webcache.Config
}

var _ webcache.DiskCache = (*DiskCache)(nil)

// NewDiskCache returns a disk cache storing files below path.
func NewDiskCache(path string, config webcache.Config) *DiskCache {
	d := diskv.New(diskv.Options{
		BasePath: path,
		// For file "c0ffee", store file as "c0/ff/c0ffee"
		Transform: func(s string) []string {
			if len(s) < 4 {
				return nil
			}
			return []string{s[0:2], s[2:4]}
		},
	})
	return WrapDiskv(d, config)
}

// WrapDiskv adapts an existing diskv store.
func WrapDiskv(d *diskv.Diskv, config webcache.Config) *DiskCache {
	return &DiskCache{d: d, config: config}
}

// Diskv returns the wrapped store.
func (c *DiskCache) Diskv() *diskv.Diskv { return c.d }

func (c *DiskCache) Config() webcache.Config { return c.config }

func keyToFilename(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

func (c *DiskCache) Contains(key string) bool {
	return c.d.Has(keyToFilename(key))
}

func (c *DiskCache) Data(key string) ([]byte, error) {
	name := keyToFilename(key)
	data, err := c.d.Read(name)
	if err == nil && c.config.ExpireType == webcache.ExpireByAccess {
		c.touch(name)
	}
	return data, err
}

// touch marks the data and extended data of name as accessed now.
func (c *DiskCache) touch(name string) {
	now := time.Now()
	if err := os.Chtimes(c.filePath(name), now, now); err != nil {
		glog.V(1).Infof("error updating disk cache access time: %v", err)
	}
	if c.d.Has(name + extSuffix) {
		if err := os.Chtimes(c.filePath(name+extSuffix), now, now); err != nil {
			glog.V(1).Infof("error updating disk cache access time: %v", err)
		}
	}
}

func (c *DiskCache) SetData(key string, data []byte) error {
	return c.d.Write(keyToFilename(key), data)
}

func (c *DiskCache) ExtendedData(key string) ([]byte, error) {
	return c.d.Read(keyToFilename(key) + extSuffix)
}

// SetExtendedData stores data alongside the data for key.  Nil data
// removes the extended data.
func (c *DiskCache) SetExtendedData(key string, data []byte) error {
	name := keyToFilename(key) + extSuffix
	if data == nil {
		if !c.d.Has(name) {
			return nil
		}
		return c.d.Erase(name)
	}
	return c.d.Write(name, data)
}

func (c *DiskCache) Remove(key string) error {
	name := keyToFilename(key)
	if c.d.Has(name + extSuffix) {
		if err := c.d.Erase(name + extSuffix); err != nil {
			return err
		}
	}
	return c.d.Erase(name)
}

func (c *DiskCache) RemoveAll() error {
	return c.d.EraseAll()
}

func (c *DiskCache) CachePath(key string) string {
	return c.filePath(keyToFilename(key))
}

func (c *DiskCache) filePath(name string) string {
	elems := append([]string{c.d.BasePath}, c.d.Transform(name)...)
	return filepath.Join(append(elems, name)...)
}

func (c *DiskCache) TotalCount() int {
	n := 0
	for key := range c.d.Keys(nil) {
		if !strings.HasSuffix(key, extSuffix) {
			n++
		}
	}
	return n
}

func (c *DiskCache) TotalSize() int64 {
	var size int64
	for _, f := range c.files() {
		size += f.size
	}
	return size
}

type cacheFile struct {
	name    string
	size    int64
	modTime time.Time
}

// files lists the files in the store.  Errors reading the tree are
// skipped, as diskv does when listing keys.
func (c *DiskCache) files() []cacheFile {
	var files []cacheFile
	_ = filepath.WalkDir(c.d.BasePath, func(path string, e fs.DirEntry, err error) error {
		if err != nil || e.IsDir() {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return nil
		}
		files = append(files, cacheFile{name: e.Name(), size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	return files
}

// cacheEntry is the data file of a key together with its extended data.
type cacheEntry struct {
	names   []string
	size    int64
	modTime time.Time // newest of the files
}

// entries groups the files in the store by key.
func (c *DiskCache) entries() []*cacheEntry {
	byName := make(map[string]*cacheEntry)
	var entries []*cacheEntry
	for _, f := range c.files() {
		base := strings.TrimSuffix(f.name, extSuffix)
		e, ok := byName[base]
		if !ok {
			e = new(cacheEntry)
			byName[base] = e
			entries = append(entries, e)
		}
		e.names = append(e.names, f.name)
		e.size += f.size
		if f.modTime.After(e.modTime) {
			e.modTime = f.modTime
		}
	}
	return entries
}

// RemoveExpired removes entries older than the configured MaxDiskAge.  If
// the remaining entries exceed MaxDiskSize, the oldest are removed until
// at most half of MaxDiskSize is used.  When expiring by access, reads
// update an entry's modification time.  The data and extended data of a
// key are always removed together.
func (c *DiskCache) RemoveExpired() error {
	var errs []error
	erase := func(e *cacheEntry) {
		for _, name := range e.names {
			if err := c.d.Erase(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}

	var kept []*cacheEntry
	var size int64
	cutoff := time.Now().Add(-c.config.MaxDiskAge)
	for _, e := range c.entries() {
		if c.config.MaxDiskAge > 0 && e.modTime.Before(cutoff) {
			erase(e)
			continue
		}
		kept = append(kept, e)
		size += e.size
	}

	if limit := c.config.MaxDiskSize; limit > 0 && size > limit {
		sort.Slice(kept, func(i, j int) bool { return kept[i].modTime.Before(kept[j].modTime) })
		for _, e := range kept {
			if size <= limit/2 {
				break
			}
			erase(e)
			size -= e.size
		}
	}
	return errors.Join(errs...)
}
