// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package cachebridge

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"

	"willnorris.com/go/imagebridge/webcache"
	"willnorris.com/go/imagebridge/webimage"
)

// Cache is a webcache.ImageCache over a memory tier and a disk tier.
// Either tier may be nil.  Disk data is decoded with the cache's coder,
// which defaults to the shared coders manager.
type Cache struct {
	memory webcache.MemoryCache
	disk   webcache.DiskCache
	config webcache.Config

	// Coder decodes and encodes disk data.  If nil,
	// webimage.SharedCodersManager is used.
	Coder webimage.Coder
}

var _ webcache.ImageCache = (*Cache)(nil)

// New returns a cache holding decoded images in a go-cache and encoded
// data in a diskv store below path.
func New(path string, config webcache.Config) *Cache {
	return NewCache(NewMemoryCache(config), NewDiskCache(path, config), config)
}

// NewCache combines memory and disk tiers.
func NewCache(memory webcache.MemoryCache, disk webcache.DiskCache, config webcache.Config) *Cache {
	return &Cache{memory: memory, disk: disk, config: config}
}

func (c *Cache) Config() webcache.Config           { return c.config }
func (c *Cache) MemoryCache() webcache.MemoryCache { return c.memory }
func (c *Cache) DiskCache() webcache.DiskCache     { return c.disk }

func (c *Cache) coder() webimage.Coder {
	if c.Coder != nil {
		return c.Coder
	}
	return webimage.SharedCodersManager()
}

func (c *Cache) Contains(ctx context.Context, key string, t webcache.CacheType) webcache.CacheType {
	if key == "" {
		return webcache.None
	}
	if t == webcache.None {
		t = webcache.All
	}
	if t.Has(webcache.Memory) && c.memory != nil {
		if _, ok := c.memory.Object(key); ok {
			return webcache.Memory
		}
	}
	if t.Has(webcache.Disk) && c.disk != nil && c.disk.Contains(key) {
		return webcache.Disk
	}
	return webcache.None
}

func (c *Cache) Query(ctx context.Context, key string, opts webcache.QueryOptions) (webcache.Result, error) {
	if err := ctx.Err(); err != nil {
		return webcache.Result{}, err
	}
	if key == "" {
		return webcache.Result{}, nil
	}
	t := opts.CacheType
	if t == webcache.None {
		t = webcache.All
	}

	if t.Has(webcache.Memory) && c.memory != nil {
		if obj, ok := c.memory.Object(key); ok {
			if m, ok := memoryImage(obj, opts, c.disk != nil && c.disk.Contains(key)); ok {
				res := webcache.Result{Image: m, CacheType: webcache.Memory}
				if opts.QueryMemoryData && c.disk != nil {
					if data, err := c.disk.Data(key); err == nil {
						res.Data = data
					}
				}
				return res, nil
			}
		}
	}

	if !t.Has(webcache.Disk) || c.disk == nil {
		return webcache.Result{}, nil
	}
	data, err := c.disk.Data(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return webcache.Result{}, nil
		}
		return webcache.Result{}, err
	}
	res := webcache.Result{Data: data, CacheType: webcache.Disk}
	if opts.AvoidDecodeImage {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return webcache.Result{}, err
	}

	m, err := c.coder().Decode(data, &webimage.CoderOptions{
		DecodeFirstFrameOnly:      opts.DecodeFirstFrameOnly,
		DecodeScaleFactor:         opts.Scale,
		DecodeThumbnailPixelSize:  opts.ThumbnailPixelSize,
		DecodePreserveAspectRatio: opts.PreserveAspectRatio,
	})
	if err != nil {
		return res, fmt.Errorf("cachebridge: decoding %q: %w", key, err)
	}
	if a, ok := m.(webimage.Animated); ok && opts.PreloadAllFrames {
		a.PreloadAllFrames()
	}
	res.Image = m

	// thumbnails are not the cached image, so they are not promoted
	if c.config.ShouldCacheImagesInMemory && c.memory != nil && opts.ThumbnailPixelSize == (image.Point{}) {
		c.memory.SetObject(key, m, imageCost(m))
	}
	return res, nil
}

func (c *Cache) QueryAsync(ctx context.Context, key string, opts webcache.QueryOptions, completion func(webcache.Result, error)) webcache.Operation {
	return webcache.StartOperation(ctx, func(ctx context.Context) (webcache.Result, error) {
		return c.Query(ctx, key, opts)
	}, completion)
}

// Store saves img in the memory tier and data in the disk tier.  If data is
// nil, the original data of an animated image is stored, or else img is
// encoded as PNG, or as JPEG if img reports itself opaque.
func (c *Cache) Store(ctx context.Context, key string, img image.Image, data []byte, t webcache.CacheType) error {
	if key == "" {
		return errors.New("cachebridge: empty cache key")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if t.Has(webcache.Memory) && c.config.ShouldCacheImagesInMemory && c.memory != nil && img != nil {
		c.memory.SetObject(key, img, imageCost(img))
	}
	if !t.Has(webcache.Disk) || c.disk == nil {
		return nil
	}

	if data == nil {
		if img == nil {
			return nil
		}
		var err error
		if data, err = c.encode(img); err != nil {
			return fmt.Errorf("cachebridge: encoding %q: %w", key, err)
		}
	}
	return c.disk.SetData(key, data)
}

func (c *Cache) encode(m image.Image) ([]byte, error) {
	if a, ok := m.(webimage.Animated); ok {
		if data := a.AnimatedImageData(); data != nil {
			return data, nil
		}
	}
	format := webimage.FormatPNG
	if o, ok := m.(interface{ Opaque() bool }); ok && o.Opaque() {
		format = webimage.FormatJPEG
	}
	return c.coder().Encode(m, format, nil)
}

func (c *Cache) Remove(ctx context.Context, key string, t webcache.CacheType) error {
	if t.Has(webcache.Memory) && c.memory != nil {
		c.memory.RemoveObject(key)
	}
	if t.Has(webcache.Disk) && c.disk != nil {
		if err := c.disk.Remove(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (c *Cache) Clear(ctx context.Context, t webcache.CacheType) error {
	if t.Has(webcache.Memory) && c.memory != nil {
		c.memory.RemoveAllObjects()
	}
	if t.Has(webcache.Disk) && c.disk != nil {
		return c.disk.RemoveAll()
	}
	return nil
}

// RemoveExpired expires entries of the disk tier.
func (c *Cache) RemoveExpired() error {
	if c.disk == nil {
		return nil
	}
	return c.disk.RemoveExpired()
}

// memoryImage returns the image to answer a query from the memory object
// obj.  Images larger than the requested thumbnail size are reduced.  An
// animation is decoded again from disk instead when its frames are wanted,
// so that every frame is reduced.
func memoryImage(obj any, opts webcache.QueryOptions, disk bool) (image.Image, bool) {
	m, ok := obj.(image.Image)
	if !ok {
		return nil, false
	}
	size := m.Bounds().Size()
	if webimage.ThumbnailSize(size, opts.ThumbnailPixelSize, opts.PreserveAspectRatio) == size {
		return firstFrame(m, opts.DecodeFirstFrameOnly), true
	}
	if _, animated := m.(webimage.Animated); animated && !opts.DecodeFirstFrameOnly && disk {
		return nil, false
	}
	f := firstFrame(m, true)
	return webimage.Thumbnail(f, opts.ThumbnailPixelSize, opts.PreserveAspectRatio), true
}

// firstFrame returns the first frame of animated images if requested.
func firstFrame(m image.Image, firstOnly bool) image.Image {
	a, ok := m.(webimage.Animated)
	if !ok || !firstOnly {
		return m
	}
	if f, err := a.AnimatedImageFrameAt(0); err == nil {
		return f
	}
	return m
}

// imageCost is the number of bytes of decoded pixels held by m.
func imageCost(m image.Image) int {
	b := m.Bounds()
	cost := b.Dx() * b.Dy() * 4
	if a, ok := m.(webimage.Animated); ok && a.AllFramesLoaded() {
		cost *= max(a.AnimatedImageFrameCount(), 1)
	}
	return cost
}
