// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

// Package s3cache provides an httpcache.Cache implementation that stores
// cached values on Amazon S3, optionally expiring them after a TTL.
//
// Besides the httpcache.Cache methods, a Cache reports membership, counts
// and sizes, and can remove all or only expired entries, so that it serves
// as a complete disk cache when wrapped by cachebridge.WrapStore.
package s3cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/cespare/xxhash/v2"
	"github.com/golang/glog"
)

// expiryKey is the object metadata entry holding the expiry time.
const expiryKey = "Expiry"

// Cache stores entries as S3 objects named by the hash of their key.
type Cache struct {
	s3iface.S3API
	bucket, prefix string
	ttl            time.Duration

	now func() time.Time
}

func (c *Cache) objectKey(key string) string {
	return path.Join(c.prefix, keyToFilename(key))
}

func (c *Cache) expired(meta map[string]*string) bool {
	v, ok := meta[expiryKey]
	if !ok || v == nil {
		return false
	}
	t, err := time.Parse(time.RFC3339Nano, *v)
	if err != nil {
		return false
	}
	return c.now().After(t)
}

func (c *Cache) Get(key string) ([]byte, bool) {
	resp, err := c.GetObject(&s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    aws.String(c.objectKey(key)),
	})
	if err != nil {
		if !notFound(err) {
			glog.Errorf("error fetching from s3: %v", err)
		}
		return nil, false
	}
	defer resp.Body.Close()

	if c.expired(resp.Metadata) {
		c.Delete(key)
		return nil, false
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		glog.Errorf("error reading from s3: %v", err)
		return nil, false
	}
	return data, true
}

func (c *Cache) Set(key string, value []byte) {
	input := &s3.PutObjectInput{
		Body:   aws.ReadSeekCloser(bytes.NewReader(value)),
		Bucket: &c.bucket,
		Key:    aws.String(c.objectKey(key)),
	}
	if c.ttl > 0 {
		input.Metadata = map[string]*string{
			expiryKey: aws.String(c.now().Add(c.ttl).Format(time.RFC3339Nano)),
		}
	}

	if _, err := c.PutObject(input); err != nil {
		glog.Errorf("error writing to s3: %v", err)
	}
}

func (c *Cache) Delete(key string) {
	c.deleteObject(c.objectKey(key))
}

func (c *Cache) deleteObject(name string) error {
	_, err := c.DeleteObject(&s3.DeleteObjectInput{
		Bucket: &c.bucket,
		Key:    &name,
	})
	if err != nil {
		glog.Errorf("error deleting from s3: %v", err)
	}
	return err
}

// Has reports whether an unexpired entry for key exists, without fetching
// its data.
func (c *Cache) Has(key string) bool {
	resp, err := c.HeadObject(&s3.HeadObjectInput{
		Bucket: &c.bucket,
		Key:    aws.String(c.objectKey(key)),
	})
	if err != nil {
		if !notFound(err) {
			glog.Errorf("error checking s3 object: %v", err)
		}
		return false
	}
	return !c.expired(resp.Metadata)
}

// walk calls fn for every object under the cache prefix.
func (c *Cache) walk(fn func(*s3.Object)) error {
	input := &s3.ListObjectsV2Input{Bucket: &c.bucket}
	if c.prefix != "" {
		input.Prefix = aws.String(c.prefix + "/")
	}
	return c.ListObjectsV2Pages(input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			fn(obj)
		}
		return true
	})
}

func (c *Cache) names() ([]string, error) {
	var names []string
	err := c.walk(func(obj *s3.Object) {
		names = append(names, aws.StringValue(obj.Key))
	})
	return names, err
}

// RemoveAll deletes every object under the cache prefix.
func (c *Cache) RemoveAll() error {
	names, err := c.names()
	if err != nil {
		return fmt.Errorf("s3cache: listing objects: %w", err)
	}
	var errs []error
	for _, name := range names {
		if err := c.deleteObject(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveExpired deletes the objects whose TTL has passed.
func (c *Cache) RemoveExpired() error {
	names, err := c.names()
	if err != nil {
		return fmt.Errorf("s3cache: listing objects: %w", err)
	}
	var errs []error
	for _, name := range names {
		resp, err := c.HeadObject(&s3.HeadObjectInput{Bucket: &c.bucket, Key: aws.String(name)})
		if err != nil {
			if !notFound(err) {
				errs = append(errs, err)
			}
			continue
		}
		if c.expired(resp.Metadata) {
			if err := c.deleteObject(name); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of objects under the cache prefix.
func (c *Cache) Len() int {
	n := 0
	if err := c.walk(func(*s3.Object) { n++ }); err != nil {
		glog.Errorf("error listing s3 objects: %v", err)
	}
	return n
}

// Size returns the total size in bytes of the objects under the cache
// prefix.
func (c *Cache) Size() int64 {
	var n int64
	if err := c.walk(func(obj *s3.Object) { n += aws.Int64Value(obj.Size) }); err != nil {
		glog.Errorf("error listing s3 objects: %v", err)
	}
	return n
}

func notFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}

func keyToFilename(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

// New constructs a cache configured using the provided URL string.  URL
// should be of the form: "s3://region/bucket/optional-path-prefix".  The
// query parameters endpoint, disableSSL=1 and s3ForcePathStyle=1 configure
// s3-compatible services other than AWS, and ttl sets how long entries are
// kept, as a time.Duration string.
func New(s string) (*Cache, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}

	region := u.Host
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	bucket := parts[0]
	var prefix string
	if len(parts) > 1 {
		prefix = strings.TrimSuffix(parts[1], "/")
	}

	q := u.Query()
	var ttl time.Duration
	if v := q.Get("ttl"); v != "" {
		if ttl, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("s3cache: invalid ttl %q: %w", v, err)
		}
	}

	config := aws.NewConfig().WithRegion(region)
	if v := q.Get("endpoint"); v != "" {
		config = config.WithEndpoint(v)
	}
	if q.Get("disableSSL") == "1" {
		config = config.WithDisableSSL(true)
	}
	if q.Get("s3ForcePathStyle") == "1" {
		config = config.WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, err
	}

	return NewWithClient(s3.New(sess), bucket, prefix, ttl), nil
}

// NewWithClient constructs a cache using an existing S3 client.  A ttl of
// zero keeps entries until they are deleted.
func NewWithClient(client s3iface.S3API, bucket, prefix string, ttl time.Duration) *Cache {
	return &Cache{
		S3API:  client,
		bucket: bucket,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}
