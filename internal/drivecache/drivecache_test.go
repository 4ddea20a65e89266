// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package drivecache

import (
	"errors"
	"fmt"
	"sort"
	"testing"

	"google.golang.org/api/drive/v3"
)

// fakeFolder is an in-memory folder that, like Drive, allows several
// files with the same name.
type fakeFolder struct {
	files   map[string]*drive.File // by id
	data    map[string][]byte      // by id
	nextID  int
	findErr error
}

func newFakeFolder() *fakeFolder {
	return &fakeFolder{files: map[string]*drive.File{}, data: map[string][]byte{}}
}

func (f *fakeFolder) ids() []string {
	var ids []string
	for id := range f.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeFolder) Find(name string) (string, error) {
	if f.findErr != nil {
		return "", f.findErr
	}
	for _, id := range f.ids() {
		if f.files[id].Name == name {
			return id, nil
		}
	}
	return "", errFileNotFound
}

func (f *fakeFolder) Download(id string) ([]byte, error) {
	d, ok := f.data[id]
	if !ok {
		return nil, errors.New("no such file")
	}
	return d, nil
}

func (f *fakeFolder) Create(name string, data []byte) error {
	f.nextID++
	id := fmt.Sprint("id", f.nextID)
	f.files[id] = &drive.File{Id: id, Name: name, Size: int64(len(data))}
	f.data[id] = data
	return nil
}

func (f *fakeFolder) Delete(id string) error {
	if _, ok := f.files[id]; !ok {
		return errors.New("no such file")
	}
	delete(f.files, id)
	delete(f.data, id)
	return nil
}

func (f *fakeFolder) List() ([]*drive.File, error) {
	var files []*drive.File
	for _, id := range f.ids() {
		files = append(files, f.files[id])
	}
	return files, nil
}

func TestCache(t *testing.T) {
	folder := newFakeFolder()
	c := &Cache{folder: folder}

	if _, ok := c.Get("key"); ok {
		t.Errorf("Get on empty cache returned ok = true")
	}
	if c.Has("key") {
		t.Errorf("Has on empty cache returned true")
	}

	c.Set("key", []byte("one"))
	c.Set("key", []byte("two"))
	if got, want := len(folder.files), 1; got != want {
		t.Errorf("after overwriting, folder holds %d files, want %d", got, want)
	}
	if got, ok := c.Get("key"); !ok || string(got) != "two" {
		t.Errorf("Get(key) = %q, %t, want two", got, ok)
	}
	if !c.Has("key") {
		t.Errorf("Has(key) = false after Set")
	}

	c.Delete("key")
	if c.Has("key") {
		t.Errorf("Has(key) = true after Delete")
	}

	// deleting a missing key does nothing
	c.Delete("key")
}

func TestCache_FindError(t *testing.T) {
	folder := newFakeFolder()
	c := &Cache{folder: folder}
	c.Set("key", []byte("data"))

	folder.findErr = errors.New("quota exceeded")
	if _, ok := c.Get("key"); ok {
		t.Errorf("Get with failing lookup returned ok = true")
	}
	if c.Has("key") {
		t.Errorf("Has with failing lookup returned true")
	}
}

func TestCache_RemoveAll(t *testing.T) {
	c := &Cache{folder: newFakeFolder()}
	c.Set("a", []byte("1"))
	c.Set("b", []byte("22"))

	if got, want := c.Len(), 2; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
	if got, want := c.Size(), int64(3); got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
	if err := c.RemoveAll(); err != nil {
		t.Fatalf("RemoveAll returned error: %v", err)
	}
	if got := c.Len(); got != 0 {
		t.Errorf("after RemoveAll, Len() = %d, want 0", got)
	}
}
