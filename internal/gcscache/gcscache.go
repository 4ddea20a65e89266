// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

// Package gcscache provides an httpcache.Cache implementation that stores
// cached values on Google Cloud Storage.
package gcscache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"github.com/cespare/xxhash/v2"
	"github.com/golang/glog"
	"google.golang.org/api/iterator"
)

var ctx = context.Background()

// objectHandle is the subset of *storage.ObjectHandle used by Cache.
type objectHandle interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
	NewWriter(ctx context.Context) io.WriteCloser
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
	Delete(ctx context.Context) error
}

// bucketHandle is the subset of *storage.BucketHandle used by Cache.
type bucketHandle interface {
	Object(name string) objectHandle
	List(ctx context.Context, prefix string) ([]*storage.ObjectAttrs, error)
}

type gcsBucket struct{ b *storage.BucketHandle }

func (g gcsBucket) Object(name string) objectHandle { return gcsObject{g.b.Object(name)} }

func (g gcsBucket) List(ctx context.Context, prefix string) ([]*storage.ObjectAttrs, error) {
	var attrs []*storage.ObjectAttrs
	it := g.b.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		a, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return attrs, nil
		}
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
}

type gcsObject struct{ o *storage.ObjectHandle }

func (g gcsObject) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return g.o.NewReader(ctx)
}

func (g gcsObject) NewWriter(ctx context.Context) io.WriteCloser {
	return g.o.NewWriter(ctx)
}

func (g gcsObject) Attrs(ctx context.Context) (*storage.ObjectAttrs, error) {
	return g.o.Attrs(ctx)
}

func (g gcsObject) Delete(ctx context.Context) error {
	return g.o.Delete(ctx)
}

// Cache stores entries as objects in a GCS bucket.
type Cache struct {
	bucket bucketHandle
	prefix string
}

func (c *Cache) Get(key string) ([]byte, bool) {
	r, err := c.object(key).NewReader(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotExist) {
			glog.Errorf("error reading from gcs: %v", err)
		}
		return nil, false
	}
	defer r.Close()

	value, err := io.ReadAll(r)
	if err != nil {
		glog.Errorf("error reading from gcs: %v", err)
		return nil, false
	}
	if len(value) == 0 {
		// interrupted writes leave empty objects behind
		return nil, false
	}

	return value, true
}

func (c *Cache) Set(key string, value []byte) {
	w := c.object(key).NewWriter(ctx)
	if _, err := w.Write(value); err != nil {
		glog.Errorf("error writing to gcs: %v", err)
	}
	if err := w.Close(); err != nil {
		glog.Errorf("error closing gcs object writer: %v", err)
	}
}

func (c *Cache) Delete(key string) {
	if err := c.object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		glog.Errorf("error deleting gcs object: %v", err)
	}
}

// Has reports whether a non-empty object exists for key.
func (c *Cache) Has(key string) bool {
	attrs, err := c.object(key).Attrs(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrObjectNotExist) {
			glog.Errorf("error reading gcs object attributes: %v", err)
		}
		return false
	}
	return attrs.Size > 0
}

func (c *Cache) list() ([]*storage.ObjectAttrs, error) {
	var prefix string
	if c.prefix != "" {
		prefix = c.prefix + "/"
	}
	return c.bucket.List(ctx, prefix)
}

// RemoveAll deletes every object under the cache prefix.
func (c *Cache) RemoveAll() error {
	attrs, err := c.list()
	if err != nil {
		return fmt.Errorf("gcscache: listing objects: %w", err)
	}
	var errs []error
	for _, a := range attrs {
		if err := c.bucket.Object(a.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of objects under the cache prefix.
func (c *Cache) Len() int {
	attrs, err := c.list()
	if err != nil {
		glog.Errorf("error listing gcs objects: %v", err)
	}
	return len(attrs)
}

// Size returns the total size in bytes of the objects under the cache
// prefix.
func (c *Cache) Size() int64 {
	attrs, err := c.list()
	if err != nil {
		glog.Errorf("error listing gcs objects: %v", err)
	}
	var n int64
	for _, a := range attrs {
		n += a.Size
	}
	return n
}

func (c *Cache) object(key string) objectHandle {
	name := path.Join(c.prefix, keyToFilename(key))
	return c.bucket.Object(name)
}

func keyToFilename(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

// New constructs a Cache storing files in the specified GCS bucket.  If prefix
// is not empty, objects will be prefixed with that path. Credentials should
// be specified using one of the mechanisms supported for Application Default
// Credentials (see https://cloud.google.com/docs/authentication/production)
func New(bucket, prefix string) (*Cache, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return NewWithBucket(gcsBucket{client.Bucket(bucket)}, prefix), nil
}

// NewWithBucket constructs a Cache storing objects in bucket.
func NewWithBucket(bucket bucketHandle, prefix string) *Cache {
	return &Cache{bucket: bucket, prefix: prefix}
}
