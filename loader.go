// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

// Package imagebridge loads remote images through the webcache and webimage
// contracts, and serves them over HTTP.  For typical use of creating and
// using a Server, see cmd/imagebridge/main.go.
package imagebridge // import "willnorris.com/go/imagebridge"

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"

	aia "github.com/fcjr/aia-transport-go"
	"github.com/golang/glog"
	"github.com/gregjones/httpcache"
	"github.com/prometheus/client_golang/prometheus"

	"willnorris.com/go/imagebridge/cachebridge"
	"willnorris.com/go/imagebridge/webcache"
	"willnorris.com/go/imagebridge/webimage"
)

// ErrNotCached is returned by Load for an image that is not cached when
// LoadOptions.FromCacheOnly is set.
var ErrNotCached = errors.New("imagebridge: image not cached")

// StatusError reports a remote server responding with a status other than
// 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote URL %q returned status: %v", e.URL, e.Status)
}

// LoadOptions controls a single Load.
type LoadOptions struct {
	// Options is the transformation applied to the downloaded image.
	Options Options

	// CacheType selects the cache tiers consulted and stored to.  None
	// means all tiers.
	CacheType webcache.CacheType

	// RefreshCached downloads the image even if it is cached.
	RefreshCached bool

	// FromCacheOnly fails with ErrNotCached instead of downloading.
	FromCacheOnly bool

	// Scale is the number of pixels per point of the decoded image.
	Scale float64

	// PreloadAllFrames decodes every frame of animated images up front.
	PreloadAllFrames bool

	// Progress, if set, is called with partial images as data arrives.
	Progress func(image.Image)
}

// Result is a loaded image.
type Result struct {
	Image image.Image
	Data  []byte // encoded image, nil if only the decoded image is cached

	Format webimage.Format

	// CacheType is the tier the image was served from, or None if it was
	// downloaded.
	CacheType webcache.CacheType
}

// Loader downloads, decodes, transforms and caches remote images.
type Loader struct {
	Client *http.Client        // client used to fetch remote URLs
	Cache  webcache.ImageCache // cache of loaded images, may be nil

	// Coders decodes and encodes images.  If nil, the shared coders
	// manager is used.
	Coders *webimage.CodersManager

	// UserAgent to use when fetching remote images.
	UserAgent string

	transport http.RoundTripper
}

// NewLoader constructs a new loader.  The provided http RoundTripper will be
// used to fetch remote URLs.  If nil is provided, a transport that fetches
// missing intermediate certificates is used.
func NewLoader(transport http.RoundTripper, cache webcache.ImageCache) *Loader {
	if transport == nil {
		tr, err := aia.NewTransport()
		if err != nil {
			glog.Warningf("using default transport: %v", err)
			transport = http.DefaultTransport
		} else {
			transport = tr
		}
	}

	return &Loader{
		Client:    &http.Client{Transport: transport},
		Cache:     cache,
		transport: transport,
	}
}

// CacheResponses caches raw remote responses in d, following their HTTP
// caching headers.
func (l *Loader) CacheResponses(d webcache.DiskCache) {
	l.Client.Transport = &httpcache.Transport{
		Transport:           l.transport,
		Cache:               cachebridge.HTTPCache(d),
		MarkCachedResponses: true,
	}
}

func (l *Loader) coders() *webimage.CodersManager {
	if l.Coders != nil {
		return l.Coders
	}
	return webimage.SharedCodersManager()
}

// CacheKey returns the key the image at u transformed by opt is cached
// under.  It never equals u, which is the key of the raw response.
func CacheKey(u string, opt Options) string {
	return u + "#" + opt.String()
}

// Load returns the image at u, transformed by opts.Options, from the cache
// if present there or else downloaded, and stores downloaded images in the
// cache.
func (l *Loader) Load(ctx context.Context, u string, opts LoadOptions) (Result, error) {
	key := CacheKey(u, opts.Options)
	tiers := opts.CacheType
	if tiers == webcache.None {
		tiers = webcache.All
	}

	if l.Cache != nil && !opts.RefreshCached {
		r, err := l.Cache.Query(ctx, key, webcache.QueryOptions{
			CacheType:            tiers,
			QueryMemoryData:      true,
			DecodeFirstFrameOnly: opts.Options.FirstFrame,
			PreloadAllFrames:     opts.PreloadAllFrames,
			Scale:                opts.Scale,
		})
		if err != nil {
			return Result{}, err
		}
		if r.CacheType != webcache.None {
			metricCacheHits.WithLabelValues(r.CacheType.String()).Inc()
			glog.V(1).Infof("%s served from %v cache", key, r.CacheType)
			return Result{
				Image:     r.Image,
				Data:      r.Data,
				Format:    webimage.DetectFormat(r.Data),
				CacheType: r.CacheType,
			}, nil
		}
	}
	if opts.FromCacheOnly {
		return Result{}, ErrNotCached
	}
	metricCacheMisses.Inc()

	data, err := l.download(ctx, u, opts.Progress)
	if err != nil {
		return Result{}, err
	}

	res, err := l.process(data, opts)
	if err != nil {
		return Result{}, err
	}

	if l.Cache != nil {
		if err := l.Cache.Store(ctx, key, res.Image, res.Data, tiers); err != nil {
			glog.Errorf("error caching %s: %v", key, err)
		}
	}
	return res, nil
}

// LoadAsync runs Load in the background and calls completion exactly once
// with its outcome.  Cancelling the operation cancels the load.
func (l *Loader) LoadAsync(ctx context.Context, u string, opts LoadOptions, completion func(Result, error)) webcache.Operation {
	return webcache.StartOperation(ctx, func(ctx context.Context) (webcache.Result, error) {
		r, err := l.Load(ctx, u, opts)
		return webcache.Result{Image: r.Image, Data: r.Data, CacheType: r.CacheType}, err
	}, func(r webcache.Result, err error) {
		if completion == nil {
			return
		}
		if err != nil {
			completion(Result{}, err)
			return
		}
		completion(Result{
			Image:     r.Image,
			Data:      r.Data,
			Format:    webimage.DetectFormat(r.Data),
			CacheType: r.CacheType,
		}, nil)
	})
}

// download fetches the remote image at u.  If progress is non-nil, partial
// images are decoded as the body arrives.
func (l *Loader) download(ctx context.Context, u string, progress func(image.Image)) ([]byte, error) {
	glog.V(1).Infof("fetching remote URL: %v", u)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	if l.UserAgent != "" {
		req.Header.Set("User-Agent", l.UserAgent)
	}

	resp, err := l.Client.Do(req)
	if err != nil {
		metricDownloadErrors.Inc()
		return nil, fmt.Errorf("error fetching remote image: %w", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get(httpcache.XFromCache) == "1" {
		metricResponseCacheHits.Inc()
	}
	if resp.StatusCode != http.StatusOK {
		metricDownloadErrors.Inc()
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	metricDownloads.Inc()

	if progress == nil {
		return io.ReadAll(resp.Body)
	}
	return l.readProgressive(resp.Body, progress)
}

// readProgressive reads r to the end, passing each partial image the
// progressive coder for the data can decode to progress.
func (l *Loader) readProgressive(r io.Reader, progress func(image.Image)) ([]byte, error) {
	var (
		data []byte
		dec  webimage.IncrementalDecoder
	)
	buf := make([]byte, 32<<10)
	for {
		n, err := r.Read(buf)
		if err != nil && err != io.EOF {
			return nil, err
		}
		data = append(data, buf[:n]...)
		final := err == io.EOF

		if dec == nil && len(data) > 0 {
			if pc, ok := l.coders().ProgressiveCoder(data); ok {
				dec = pc.NewIncrementalDecoder(nil)
				defer dec.Close()
			}
		}
		if dec != nil && (n > 0 || final) {
			if err := dec.UpdateIncrementalData(data, final); err != nil {
				glog.V(1).Infof("incremental decode: %v", err)
			} else if m, _ := dec.IncrementalImage(nil); m != nil {
				progress(m)
			}
		}

		if final {
			return data, nil
		}
	}
}

// process decodes and transforms downloaded data, and encodes the result
// when it differs from data.
func (l *Loader) process(data []byte, opts LoadOptions) (Result, error) {
	opt := opts.Options
	format := webimage.DetectFormat(data)

	m, err := l.decode(data, opts)
	if err != nil {
		return Result{}, fmt.Errorf("error decoding image: %w", err)
	}

	if opt.transform() {
		if m, data, err = l.transform(m, data, format, opts); err != nil {
			return Result{}, fmt.Errorf("error transforming image: %w", err)
		}
	}

	out := opt.Format
	if out == webimage.FormatUndefined {
		out = format
	}
	if data == nil || out != format || (opt.Quality != 0 && out == webimage.FormatJPEG) {
		if !l.coders().CanEncode(out) {
			out = webimage.FormatPNG
		}
		if data, err = l.encode(m, out, opt); err != nil {
			return Result{}, fmt.Errorf("error encoding image: %w", err)
		}
		format = out
	}

	return Result{Image: m, Data: data, Format: format}, nil
}

// decode decodes data.  Animated data decodes to a *webimage.AnimatedImage
// unless only the first frame is requested.
func (l *Loader) decode(data []byte, opts LoadOptions) (image.Image, error) {
	timer := prometheus.NewTimer(metricDecodeDuration)
	defer timer.ObserveDuration()

	coders := l.coders()
	if !opts.Options.FirstFrame {
		if ac, ok := coders.AnimatedCoder(data); ok {
			a, err := webimage.NewAnimatedImageWithCoder(data, opts.Scale, ac)
			if err != nil {
				return nil, err
			}
			if a.AnimatedImageFrameCount() > 1 {
				if opts.PreloadAllFrames {
					a.PreloadAllFrames()
				}
				return a, nil
			}
			m := a.Image
			a.Close()
			return m, nil
		}
	}

	return coders.Decode(data, &webimage.CoderOptions{
		DecodeFirstFrameOnly: opts.Options.FirstFrame,
		DecodeScaleFactor:    opts.Scale,
	})
}

// transform applies opts.Options to m.  Animated GIFs are transformed frame
// by frame and keep their animation; other images are reduced to a still
// image and returned without data.
func (l *Loader) transform(m image.Image, data []byte, format webimage.Format, opts LoadOptions) (image.Image, []byte, error) {
	a, ok := m.(*webimage.AnimatedImage)
	if !ok || format != webimage.FormatGIF {
		return Transform(m, opts.Options), nil, nil
	}

	out, err := transformGIF(data, opts.Options)
	if err != nil {
		return nil, nil, err
	}
	a.Close()
	if m, err = l.decode(out, opts); err != nil {
		return nil, nil, err
	}
	return m, out, nil
}

func (l *Loader) encode(m image.Image, format webimage.Format, opt Options) ([]byte, error) {
	timer := prometheus.NewTimer(metricEncodeDuration)
	defer timer.ObserveDuration()

	return l.coders().Encode(m, format, &webimage.CoderOptions{
		EncodeFirstFrameOnly:     opt.FirstFrame,
		EncodeCompressionQuality: float64(opt.Quality) / 100,
	})
}
