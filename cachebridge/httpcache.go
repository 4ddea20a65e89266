// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package cachebridge

import (
	"errors"
	"io/fs"

	"github.com/golang/glog"
	"github.com/gregjones/httpcache"

	"willnorris.com/go/imagebridge/webcache"
)

// HTTPCache presents a disk cache as an httpcache.Cache, so that raw HTTP
// responses can be cached alongside image data.  A StoreCache yields the
// store it wraps.
func HTTPCache(d webcache.DiskCache) httpcache.Cache {
	if s, ok := d.(*StoreCache); ok {
		return s.store
	}
	return httpCache{d}
}

type httpCache struct {
	disk webcache.DiskCache
}

func (c httpCache) Get(key string) ([]byte, bool) {
	data, err := c.disk.Data(key)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			glog.Errorf("error reading from disk cache: %v", err)
		}
		return nil, false
	}
	return data, true
}

func (c httpCache) Set(key string, data []byte) {
	if err := c.disk.SetData(key, data); err != nil {
		glog.Errorf("error writing to disk cache: %v", err)
	}
}

func (c httpCache) Delete(key string) {
	if err := c.disk.Remove(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		glog.Errorf("error deleting from disk cache: %v", err)
	}
}
