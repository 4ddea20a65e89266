// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

// Package webcache defines the cache contracts used by the image loader: a
// memory cache of decoded images, a disk cache of encoded image data, and
// the image cache combining both.
package webcache

import (
	"context"
	"image"
	"strings"
)

// CacheType identifies one or more cache tiers.
type CacheType int

const (
	None   CacheType = 0
	Disk   CacheType = 1 << 0
	Memory CacheType = 1 << 1
	All    CacheType = Memory | Disk
)

// Has reports whether t includes every tier in u.
func (t CacheType) Has(u CacheType) bool {
	return u != None && t&u == u
}

func (t CacheType) String() string {
	switch t {
	case None:
		return "none"
	case All:
		return "all"
	}
	var s []string
	if t.Has(Memory) {
		s = append(s, "memory")
	}
	if t.Has(Disk) {
		s = append(s, "disk")
	}
	return strings.Join(s, "|")
}

// MemoryCache holds decoded objects in memory.
type MemoryCache interface {
	// Object returns the object stored for key.
	Object(key string) (any, bool)

	// SetObject stores obj for key.  cost is the size of obj in bytes,
	// or zero if unknown.
	SetObject(key string, obj any, cost int)

	RemoveObject(key string)
	RemoveAllObjects()
}

// DiskCache holds encoded image data on persistent storage.  Data and
// ExtendedData report a missing key with an error satisfying
// errors.Is(err, fs.ErrNotExist).
type DiskCache interface {
	Contains(key string) bool
	Data(key string) ([]byte, error)
	SetData(key string, data []byte) error

	// ExtendedData returns metadata stored alongside the data for key.
	ExtendedData(key string) ([]byte, error)
	SetExtendedData(key string, data []byte) error

	Remove(key string) error
	RemoveAll() error

	// RemoveExpired removes entries according to the cache's age and size
	// limits.
	RemoveExpired() error

	// CachePath returns the location the data for key is stored at, or the
	// empty string if the cache has no such notion.
	CachePath(key string) string

	TotalCount() int
	TotalSize() int64
}

// QueryOptions controls a query of an ImageCache.
type QueryOptions struct {
	// CacheType selects the tiers to consult.  None means All.
	CacheType CacheType

	// QueryMemoryData also returns the encoded data on a memory hit, read
	// from the disk tier.
	QueryMemoryData bool

	// AvoidDecodeImage returns disk data without decoding it.
	AvoidDecodeImage bool

	// DecodeFirstFrameOnly decodes only the first frame of animated data.
	DecodeFirstFrameOnly bool

	// PreloadAllFrames preloads every frame of decoded animated images.
	PreloadAllFrames bool

	// Scale is the number of pixels per point of decoded images.
	Scale float64

	// ThumbnailPixelSize, if non-zero, limits the size of returned images,
	// whether decoded or found in memory.
	ThumbnailPixelSize image.Point

	// PreserveAspectRatio keeps the aspect ratio of thumbnails.
	PreserveAspectRatio bool
}

// Result is the outcome of a query.  A miss has CacheType None.
type Result struct {
	Image     image.Image
	Data      []byte
	CacheType CacheType
}

// ImageCache is a cache of images across memory and disk tiers.
type ImageCache interface {
	Config() Config

	// Contains reports the tiers among t holding key, checking memory
	// first.
	Contains(ctx context.Context, key string, t CacheType) CacheType

	// Query looks key up.  A miss is not an error.
	Query(ctx context.Context, key string, opts QueryOptions) (Result, error)

	// QueryAsync runs Query in the background and calls completion
	// exactly once with its outcome.
	QueryAsync(ctx context.Context, key string, opts QueryOptions, completion func(Result, error)) Operation

	// Store saves img and its encoded data in the tiers t.  If data is nil,
	// img is encoded.
	Store(ctx context.Context, key string, img image.Image, data []byte, t CacheType) error

	Remove(ctx context.Context, key string, t CacheType) error
	Clear(ctx context.Context, t CacheType) error
}
