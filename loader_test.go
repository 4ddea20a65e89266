// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package imagebridge

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"willnorris.com/go/imagebridge/cachebridge"
	"willnorris.com/go/imagebridge/codecbridge"
	"willnorris.com/go/imagebridge/webcache"
	"willnorris.com/go/imagebridge/webimage"
)

// testTransport is an http.RoundTripper that returns certain canned
// responses for particular requests, and counts the requests it serves.
type testTransport struct {
	t *testing.T

	mu       sync.Mutex
	requests map[string]int
}

func newTestTransport(t *testing.T) *testTransport {
	return &testTransport{t: t, requests: make(map[string]int)}
}

func (tr *testTransport) count(path string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.requests[path]
}

func (tr *testTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tr.mu.Lock()
	tr.requests[req.URL.Path]++
	tr.mu.Unlock()

	var raw string
	switch req.URL.Path {
	case "/plain":
		raw = "HTTP/1.1 200 OK\nContent-Length: 5\n\nhello"
	case "/error":
		return nil, errors.New("http protocol error")
	case "/nocontent":
		raw = "HTTP/1.1 204 No Content\nContent-Type: image/png\n\n"
	case "/png":
		b := pngBytes(tr.t, newImage(4, 4, red, green, blue, yellow))
		date := time.Now().UTC().Format(http.TimeFormat)
		raw = fmt.Sprintf("HTTP/1.1 200 OK\nContent-Length: %d\nContent-Type: image/png\nDate: %s\nCache-Control: max-age=3600\n\n%s", len(b), date, b)
	case "/gif":
		b := newGIF(tr.t, 8, 0, red, blue, green)
		raw = fmt.Sprintf("HTTP/1.1 200 OK\nContent-Length: %d\nContent-Type: image/gif\n\n%s", len(b), b)
	default:
		raw = "HTTP/1.1 404 Not Found\n\n"
	}

	buf := bufio.NewReader(bytes.NewBufferString(raw))
	return http.ReadResponse(buf, req)
}

func pngBytes(t *testing.T, m image.Image) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, m); err != nil {
		t.Fatalf("error encoding png: %v", err)
	}
	return buf.Bytes()
}

// newTestLoader returns a loader fetching from tr, caching in memory and in
// a temporary directory.
func newTestLoader(t *testing.T, tr http.RoundTripper) *Loader {
	coders := webimage.NewCodersManager(codecbridge.SharedCoder())
	cache := cachebridge.New(t.TempDir(), webcache.DefaultConfig())
	cache.Coder = coders

	l := NewLoader(tr, cache)
	l.Coders = coders
	return l
}

func TestLoader_Load(t *testing.T) {
	tr := newTestTransport(t)
	l := newTestLoader(t, tr)
	ctx := context.Background()
	u := "http://good.test/png"

	res, err := l.Load(ctx, u, LoadOptions{})
	if err != nil {
		t.Fatalf("Load(%q) returned error: %v", u, err)
	}
	if res.CacheType != webcache.None {
		t.Errorf("Load(%q) served from %v cache, want download", u, res.CacheType)
	}
	if res.Format != webimage.FormatPNG {
		t.Errorf("Load(%q) returned format %v, want png", u, res.Format)
	}
	if want := pngBytes(t, newImage(4, 4, red, green, blue, yellow)); !bytes.Equal(res.Data, want) {
		t.Errorf("Load(%q) returned modified data", u)
	}
	if got := res.Image.Bounds(); got != image.Rect(0, 0, 4, 4) {
		t.Errorf("Load(%q) returned image bounds %v, want 4x4", u, got)
	}

	// second load is served from memory
	res, err = l.Load(ctx, u, LoadOptions{})
	if err != nil {
		t.Fatalf("Load(%q) returned error: %v", u, err)
	}
	if res.CacheType != webcache.Memory {
		t.Errorf("Load(%q) served from %v, want memory", u, res.CacheType)
	}
	if res.Data == nil || res.Format != webimage.FormatPNG {
		t.Errorf("Load(%q) from memory returned no data", u)
	}

	// disk only
	res, err = l.Load(ctx, u, LoadOptions{CacheType: webcache.Disk})
	if err != nil {
		t.Fatalf("Load(%q) returned error: %v", u, err)
	}
	if res.CacheType != webcache.Disk {
		t.Errorf("Load(%q) served from %v, want disk", u, res.CacheType)
	}

	if got, want := tr.count("/png"), 1; got != want {
		t.Errorf("remote fetched %d times, want %d", got, want)
	}

	// refresh downloads again
	if _, err := l.Load(ctx, u, LoadOptions{RefreshCached: true}); err != nil {
		t.Fatalf("Load(%q) returned error: %v", u, err)
	}
	if got, want := tr.count("/png"), 2; got != want {
		t.Errorf("remote fetched %d times, want %d", got, want)
	}
}

func TestLoader_Load_Transform(t *testing.T) {
	l := newTestLoader(t, newTestTransport(t))
	ctx := context.Background()
	u := "http://good.test/png"

	tests := []struct {
		opt    Options
		bounds image.Rectangle
		format webimage.Format
	}{
		{Options{Width: 2, Height: 2}, image.Rect(0, 0, 2, 2), webimage.FormatPNG},
		{Options{Width: 1}, image.Rect(0, 0, 1, 1), webimage.FormatPNG},
		{Options{Format: webimage.FormatJPEG, Quality: 80}, image.Rect(0, 0, 4, 4), webimage.FormatJPEG},
		{Options{Format: webimage.FormatGIF, Rotate: 90}, image.Rect(0, 0, 4, 4), webimage.FormatGIF},
		{Options{Format: webimage.FormatWebP}, image.Rect(0, 0, 4, 4), webimage.FormatPNG},
	}

	for _, tt := range tests {
		res, err := l.Load(ctx, u, LoadOptions{Options: tt.opt})
		if err != nil {
			t.Errorf("Load(%q, %v) returned error: %v", u, tt.opt, err)
			continue
		}
		if got := res.Image.Bounds(); got != tt.bounds {
			t.Errorf("Load(%q, %v) returned bounds %v, want %v", u, tt.opt, got, tt.bounds)
		}
		if res.Format != tt.format {
			t.Errorf("Load(%q, %v) returned format %v, want %v", u, tt.opt, res.Format, tt.format)
		}
		if got := webimage.DetectFormat(res.Data); got != tt.format {
			t.Errorf("Load(%q, %v) returned %v data, want %v", u, tt.opt, got, tt.format)
		}
	}
}

func TestLoader_Load_Animated(t *testing.T) {
	l := newTestLoader(t, newTestTransport(t))
	ctx := context.Background()
	u := "http://good.test/gif"

	res, err := l.Load(ctx, u, LoadOptions{PreloadAllFrames: true})
	if err != nil {
		t.Fatalf("Load(%q) returned error: %v", u, err)
	}
	a, ok := res.Image.(*webimage.AnimatedImage)
	if !ok {
		t.Fatalf("Load(%q) returned %T, want *webimage.AnimatedImage", u, res.Image)
	}
	if got, want := a.AnimatedImageFrameCount(), 3; got != want {
		t.Errorf("Load(%q) frame count = %d, want %d", u, got, want)
	}
	if !a.AllFramesLoaded() {
		t.Errorf("Load(%q) did not preload frames", u)
	}
	if !reflect.DeepEqual(res.Data, newGIF(t, 8, 0, red, blue, green)) {
		t.Errorf("Load(%q) returned modified data", u)
	}

	res, err = l.Load(ctx, u, LoadOptions{Options: Options{Width: 4, Height: 4}})
	if err != nil {
		t.Fatalf("Load(%q) returned error: %v", u, err)
	}
	a, ok = res.Image.(*webimage.AnimatedImage)
	if !ok {
		t.Fatalf("Load(%q) returned %T, want *webimage.AnimatedImage", u, res.Image)
	}
	if got, want := a.AnimatedImageFrameCount(), 3; got != want {
		t.Errorf("Load(%q) frame count = %d, want %d", u, got, want)
	}
	if bytes.Equal(res.Data, newGIF(t, 8, 0, red, blue, green)) {
		t.Errorf("Load(%q) with resize returned original data", u)
	}
	if got := webimage.DetectFormat(res.Data); got != webimage.FormatGIF {
		t.Errorf("Load(%q) with resize returned %v data, want gif", u, got)
	}

	res, err = l.Load(ctx, u, LoadOptions{Options: Options{FirstFrame: true}})
	if err != nil {
		t.Fatalf("Load(%q) returned error: %v", u, err)
	}
	if _, ok := res.Image.(webimage.Animated); ok {
		t.Errorf("Load(%q) with first frame option returned an animated image", u)
	}
}

func TestLoader_Load_Errors(t *testing.T) {
	l := newTestLoader(t, newTestTransport(t))
	ctx := context.Background()

	_, err := l.Load(ctx, "http://good.test/missing", LoadOptions{})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("Load of missing image returned error %v, want status 404", err)
	}

	if _, err := l.Load(ctx, "http://good.test/error", LoadOptions{}); err == nil {
		t.Errorf("Load with transport error did not return expected error")
	}

	if _, err := l.Load(ctx, "http://good.test/plain", LoadOptions{}); !errors.Is(err, webimage.ErrUnsupportedFormat) {
		t.Errorf("Load of non-image returned error %v, want %v", err, webimage.ErrUnsupportedFormat)
	}

	if _, err := l.Load(ctx, "http://good.test/png", LoadOptions{FromCacheOnly: true}); err != ErrNotCached {
		t.Errorf("Load from cache only returned error %v, want %v", err, ErrNotCached)
	}
}

func TestLoader_Load_NoCache(t *testing.T) {
	tr := newTestTransport(t)
	l := NewLoader(tr, nil)
	l.Coders = webimage.NewCodersManager(codecbridge.SharedCoder())

	for i := 0; i < 2; i++ {
		if _, err := l.Load(context.Background(), "http://good.test/png", LoadOptions{}); err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
	}
	if got, want := tr.count("/png"), 2; got != want {
		t.Errorf("remote fetched %d times, want %d", got, want)
	}
}

func TestLoader_Progress(t *testing.T) {
	l := newTestLoader(t, newTestTransport(t))

	var updates []image.Image
	opts := LoadOptions{Progress: func(m image.Image) { updates = append(updates, m) }}
	res, err := l.Load(context.Background(), "http://good.test/png", opts)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(updates) == 0 {
		t.Fatalf("Load did not report progress")
	}
	if got, want := updates[len(updates)-1].Bounds(), res.Image.Bounds(); got != want {
		t.Errorf("last progress image has bounds %v, want %v", got, want)
	}
}

func TestLoader_LoadAsync(t *testing.T) {
	l := newTestLoader(t, newTestTransport(t))

	done := make(chan Result, 1)
	op := l.LoadAsync(context.Background(), "http://good.test/png", LoadOptions{}, func(r Result, err error) {
		if err != nil {
			t.Errorf("LoadAsync returned error: %v", err)
		}
		done <- r
	})

	select {
	case r := <-done:
		if r.Format != webimage.FormatPNG || r.Image == nil {
			t.Errorf("LoadAsync returned %+v, want png image", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("LoadAsync did not complete")
	}
	<-op.Done()
}

func TestLoader_CacheResponses(t *testing.T) {
	tr := newTestTransport(t)
	l := newTestLoader(t, tr)
	responses := cachebridge.NewDiskCache(t.TempDir(), webcache.DefaultConfig())
	l.CacheResponses(responses)

	ctx := context.Background()
	u := "http://good.test/png"
	if _, err := l.Load(ctx, u, LoadOptions{}); err != nil {
		t.Fatalf("Load(%q) returned error: %v", u, err)
	}
	if !responses.Contains(u) {
		t.Errorf("response for %q was not cached", u)
	}

	if _, err := l.Load(ctx, u, LoadOptions{RefreshCached: true}); err != nil {
		t.Fatalf("Load(%q) returned error: %v", u, err)
	}
	if got, want := tr.count("/png"), 1; got != want {
		t.Errorf("remote fetched %d times, want %d", got, want)
	}
}
