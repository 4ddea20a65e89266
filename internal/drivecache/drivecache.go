// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

// Package drivecache provides an httpcache.Cache implementation that stores
// cached values as files in a Google Drive folder.
package drivecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/glog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

var ctx = context.Background()

var errFileNotFound = errors.New("drivecache: file not found")

// folder is the set of Drive file operations used by Cache, scoped to one
// parent folder.
type folder interface {
	// Find returns the ID of the file named name.
	Find(name string) (string, error)
	Download(id string) ([]byte, error)
	Create(name string, data []byte) error
	Delete(id string) error
	List() ([]*drive.File, error)
}

type driveFolder struct {
	id    string
	files *drive.FilesService
}

func (f driveFolder) Find(name string) (string, error) {
	q := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false", f.id, name)
	list, err := f.files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", errFileNotFound
	}
	return list.Files[0].Id, nil
}

func (f driveFolder) Download(id string) ([]byte, error) {
	resp, err := f.files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (f driveFolder) Create(name string, data []byte) error {
	_, err := f.files.Create(&drive.File{
		Name:    name,
		Parents: []string{f.id},
	}).Media(bytes.NewReader(data)).Context(ctx).Do()
	return err
}

func (f driveFolder) Delete(id string) error {
	return f.files.Delete(id).Context(ctx).Do()
}

func (f driveFolder) List() ([]*drive.File, error) {
	var files []*drive.File
	q := fmt.Sprintf("'%s' in parents and trashed=false", f.id)
	err := f.files.List().Q(q).Fields("nextPageToken, files(id, name, size)").Pages(ctx, func(l *drive.FileList) error {
		files = append(files, l.Files...)
		return nil
	})
	return files, err
}

// Cache stores entries as files named by the hash of their key.
type Cache struct {
	folder folder
}

func (c *Cache) Get(key string) ([]byte, bool) {
	id, err := c.folder.Find(keyToFilename(key))
	if err != nil {
		if !errors.Is(err, errFileNotFound) {
			glog.Errorf("error finding file in drive: %v", err)
		}
		return nil, false
	}

	value, err := c.folder.Download(id)
	if err != nil {
		glog.Errorf("error reading file from drive: %v", err)
		return nil, false
	}
	return value, true
}

// Set stores value, replacing any file already stored for key.  Drive
// allows several files with one name, so the old file is deleted first.
func (c *Cache) Set(key string, value []byte) {
	c.Delete(key)
	if err := c.folder.Create(keyToFilename(key), value); err != nil {
		glog.Errorf("error creating file in drive: %v", err)
	}
}

func (c *Cache) Delete(key string) {
	id, err := c.folder.Find(keyToFilename(key))
	if err != nil {
		if !errors.Is(err, errFileNotFound) {
			glog.Errorf("error finding file in drive: %v", err)
		}
		return
	}
	if err := c.folder.Delete(id); err != nil {
		glog.Errorf("error deleting file from drive: %v", err)
	}
}

// Has reports whether a file exists for key.
func (c *Cache) Has(key string) bool {
	_, err := c.folder.Find(keyToFilename(key))
	if err != nil && !errors.Is(err, errFileNotFound) {
		glog.Errorf("error finding file in drive: %v", err)
	}
	return err == nil
}

// RemoveAll deletes every file in the cache folder.
func (c *Cache) RemoveAll() error {
	files, err := c.folder.List()
	if err != nil {
		return fmt.Errorf("drivecache: listing files: %w", err)
	}
	var errs []error
	for _, f := range files {
		if err := c.folder.Delete(f.Id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of files in the cache folder.
func (c *Cache) Len() int {
	files, err := c.folder.List()
	if err != nil {
		glog.Errorf("error listing drive files: %v", err)
	}
	return len(files)
}

// Size returns the total size in bytes of the files in the cache folder.
func (c *Cache) Size() int64 {
	files, err := c.folder.List()
	if err != nil {
		glog.Errorf("error listing drive files: %v", err)
	}
	var n int64
	for _, f := range files {
		n += f.Size
	}
	return n
}

func keyToFilename(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

// New constructs a Cache storing files in the Google Drive folder with ID
// folderID, which must exist.  Credentials are found as described for
// Application Default Credentials, unless given in opts.
func New(folderID string, opts ...option.ClientOption) (*Cache, error) {
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}

	if _, err := srv.Files.Get(folderID).Fields("id").Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("drivecache: folder %q: %w", folderID, err)
	}
	return &Cache{folder: driveFolder{id: folderID, files: srv.Files}}, nil
}
