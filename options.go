// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package imagebridge

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"willnorris.com/go/imagebridge/webimage"
)

// URLError reports a malformed URL error.
type URLError struct {
	Message string
	URL     *url.URL
}

func (e URLError) Error() string {
	return fmt.Sprintf("malformed URL %q: %s", e.URL, e.Message)
}

const (
	optFit            = "fit"
	optFlipVertical   = "fv"
	optFlipHorizontal = "fh"
	optSmartCrop      = "sc"
	optScaleUp        = "scaleUp"
	optFirstFrame     = "ff"
	optRotatePrefix   = "r"
	optQualityPrefix  = "q"
	optCropX          = "cx"
	optCropY          = "cy"
	optCropWidth      = "cw"
	optCropHeight     = "ch"
	optSizeDelimiter  = "x"
)

// Options specifies transformations to perform on a requested image.
type Options struct {
	// See ParseOptions for interpretation of Width and Height values
	Width  float64
	Height float64

	// If true, resize the image to fit in the specified dimensions.  Image
	// will not be cropped, and aspect ratio will be maintained.
	Fit bool

	// Rotate image the specified degrees counter-clockwise.  Valid values
	// are 90, 180, 270.
	Rotate int

	FlipVertical   bool
	FlipHorizontal bool

	// Quality of output image, from 1 to 100.  Zero uses the encoder
	// default.
	Quality int

	// Crop rectangle params
	CropX      float64
	CropY      float64
	CropWidth  float64
	CropHeight float64

	// Automatically find good crop points based on image content.
	SmartCrop bool

	// Allow image to scale beyond its original dimensions.
	ScaleUp bool

	// Decode and serve only the first frame of animated images.
	FirstFrame bool

	// Desired output format.  FormatUndefined keeps the source format.
	Format webimage.Format
}

func (o Options) String() string {
	opts := []string{fmt.Sprintf("%v%s%v", o.Width, optSizeDelimiter, o.Height)}
	if o.Fit {
		opts = append(opts, optFit)
	}
	if o.Rotate != 0 {
		opts = append(opts, fmt.Sprintf("%s%d", optRotatePrefix, o.Rotate))
	}
	if o.FlipVertical {
		opts = append(opts, optFlipVertical)
	}
	if o.FlipHorizontal {
		opts = append(opts, optFlipHorizontal)
	}
	if o.Quality != 0 {
		opts = append(opts, fmt.Sprintf("%s%d", optQualityPrefix, o.Quality))
	}
	if o.Format != webimage.FormatUndefined {
		opts = append(opts, o.Format.String())
	}
	if o.CropX != 0 {
		opts = append(opts, fmt.Sprintf("%s%v", optCropX, o.CropX))
	}
	if o.CropY != 0 {
		opts = append(opts, fmt.Sprintf("%s%v", optCropY, o.CropY))
	}
	if o.CropWidth != 0 {
		opts = append(opts, fmt.Sprintf("%s%v", optCropWidth, o.CropWidth))
	}
	if o.CropHeight != 0 {
		opts = append(opts, fmt.Sprintf("%s%v", optCropHeight, o.CropHeight))
	}
	if o.SmartCrop {
		opts = append(opts, optSmartCrop)
	}
	if o.ScaleUp {
		opts = append(opts, optScaleUp)
	}
	if o.FirstFrame {
		opts = append(opts, optFirstFrame)
	}
	sort.Strings(opts[1:])
	return strings.Join(opts, ",")
}

// transform reports whether o changes the geometry of an image.
func (o Options) transform() bool {
	return o.Width != 0 || o.Height != 0 || o.Rotate != 0 ||
		o.FlipVertical || o.FlipHorizontal || o.SmartCrop ||
		o.CropX != 0 || o.CropY != 0 || o.CropWidth != 0 || o.CropHeight != 0
}

// ParseOptions parses str as a list of comma separated transformation
// options.  The options can be specified in any order.
//
// # Size and Cropping
//
// The size option takes the general form "{width}x{height}", where width and
// height are numbers.  Integer values greater than 1 are interpreted as exact
// pixel values.  Floats between 0 and 1 are interpreted as percentages of the
// original image size.  If either value is omitted or set to 0, it will be
// automatically set to preserve the aspect ratio based on the other
// dimension.  If a single number is provided (with no "x" separator), it
// will be used for both height and width.
//
// Depending on the size options specified, an image may be cropped to fit
// the requested size.  In all cases, the original aspect ratio of the image
// will be preserved; the image will never be stretched.  If the "fit" option
// is given, the image is scaled to fit within the requested size instead.
//
// Images are never resized beyond their original dimensions unless the
// "scaleUp" option is given.
//
// # Crop Mode
//
// "cx{x}", "cy{y}", "cw{width}" and "ch{height}" select a crop rectangle
// before resizing.  Negative cx and cy values are measured from the right
// and bottom of the image.  The "sc" option finds a crop of the requested
// size based on the image content.
//
// # Rotation and Flips
//
// The "r{degrees}" option rotates the image the specified number of degrees,
// counter-clockwise.  Valid degrees values are 90, 180, and 270.
//
// The "fv" option flips the image vertically.  The "fh" option flips the
// image horizontally.  Images are flipped after being rotated.
//
// # Quality and Format
//
// The "q{qualityPercentage}" option sets the quality of lossy output
// images.  A format name such as "jpeg", "png", "gif", "tiff" or "bmp"
// selects the output format.
//
// # Animation
//
// The "ff" option decodes and serves only the first frame of animated
// images.
//
// # Examples
//
//	0x0         - no resizing
//	200x        - 200 pixels wide, proportional height
//	x0.15       - 15% original height, proportional width
//	100x150     - 100 by 150 pixels, cropping as needed
//	100         - 100 pixels square, cropping as needed
//	150,fit     - scale to fit 150 pixels square, no cropping
//	100,r90     - 100 pixels square, rotated 90 degrees
//	100,fv,fh   - 100 pixels square, flipped horizontal and vertical
//	200x,q60    - 200 pixels wide, proportional height, 60% quality
//	200x,png    - 200 pixels wide, converted to PNG format
//	100,sc      - 100 pixels square, smart cropped
//	200x,ff     - 200 pixels wide, first frame only
func ParseOptions(str string) Options {
	var options Options

	for _, opt := range strings.Split(str, ",") {
		switch {
		case len(opt) == 0:
			// do nothing
		case opt == optFit:
			options.Fit = true
		case opt == optFlipVertical:
			options.FlipVertical = true
		case opt == optFlipHorizontal:
			options.FlipHorizontal = true
		case opt == optSmartCrop:
			options.SmartCrop = true
		case opt == optScaleUp:
			options.ScaleUp = true
		case opt == optFirstFrame:
			options.FirstFrame = true
		case strings.HasPrefix(opt, optCropX):
			options.CropX, _ = strconv.ParseFloat(strings.TrimPrefix(opt, optCropX), 64)
		case strings.HasPrefix(opt, optCropY):
			options.CropY, _ = strconv.ParseFloat(strings.TrimPrefix(opt, optCropY), 64)
		case strings.HasPrefix(opt, optCropWidth):
			options.CropWidth, _ = strconv.ParseFloat(strings.TrimPrefix(opt, optCropWidth), 64)
		case strings.HasPrefix(opt, optCropHeight):
			options.CropHeight, _ = strconv.ParseFloat(strings.TrimPrefix(opt, optCropHeight), 64)
		case len(opt) > 1 && strings.HasPrefix(opt, optRotatePrefix):
			options.Rotate, _ = strconv.Atoi(strings.TrimPrefix(opt, optRotatePrefix))
		case len(opt) > 1 && strings.HasPrefix(opt, optQualityPrefix):
			options.Quality, _ = strconv.Atoi(strings.TrimPrefix(opt, optQualityPrefix))
		case strings.Contains(opt, optSizeDelimiter):
			size := strings.SplitN(opt, optSizeDelimiter, 2)
			if w := size[0]; w != "" {
				options.Width, _ = strconv.ParseFloat(w, 64)
			}
			if h := size[1]; h != "" {
				options.Height, _ = strconv.ParseFloat(h, 64)
			}
		default:
			if f, ok := webimage.ParseFormat(opt); ok {
				options.Format = f
			} else if size, err := strconv.ParseFloat(opt, 64); err == nil {
				options.Width = size
				options.Height = size
			}
		}
	}

	return options
}

// Request is an imagebridge request which includes a remote URL of an image
// to load, and an optional set of transformations to perform.
type Request struct {
	URL      *url.URL      // URL of the image to load
	Options  Options       // Image transformation to perform
	Original *http.Request // The original HTTP request
}

// String returns the request URL as a string, with r.Options encoded in the
// URL fragment.
func (r Request) String() string {
	u := *r.URL
	u.Fragment = r.Options.String()
	return u.String()
}

// NewRequest parses an http.Request into an imagebridge Request.  Options
// and the remote image URL are specified in the request path, formatted as:
// /{options}/{remote_url}.  Options may be omitted, so a request path may
// simply contain /{remote_url}.  The remote URL must be an absolute "http"
// or "https" URL, should not be URL encoded, and may contain a query string.
//
// Assuming an imagebridge server running on localhost, the following are
// all valid imagebridge requests:
//
//	http://localhost/100x200/http://example.com/image.jpg
//	http://localhost/100x200,r90/http://example.com/image.jpg?foo=bar
//	http://localhost//http://example.com/image.jpg
//
// If baseURL is non-nil, relative remote URLs are resolved against it.
func NewRequest(r *http.Request, baseURL *url.URL) (*Request, error) {
	var err error
	req := &Request{Original: r}

	path := strings.TrimPrefix(r.URL.EscapedPath(), "/")

	// first segment holds the options
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		return nil, URLError{"too few path segments", r.URL}
	}

	req.URL, err = parseURL(parts[1])
	if err != nil {
		return nil, URLError{fmt.Sprintf("unable to parse remote URL: %v", err), r.URL}
	}
	req.Options = ParseOptions(parts[0])

	if baseURL != nil {
		req.URL = baseURL.ResolveReference(req.URL)
	}

	if !req.URL.IsAbs() {
		return nil, URLError{"must provide absolute remote URL", r.URL}
	}

	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return nil, URLError{"remote URL must have http or https scheme", r.URL}
	}

	// query string is always part of the remote URL
	if r.URL.RawQuery != "" {
		req.URL.RawQuery = r.URL.RawQuery
	}
	return req, nil
}

var (
	// a single slash is how most URL cleaning leaves "http://"
	reCleanedURL = regexp.MustCompile(`^(https?):/+([^/])`)

	// remote URLs may be escaped once or more
	reEscapedURL = regexp.MustCompile(`(?i)^https?%(25)*3A`)
)

// parseURL parses s as a URL, handling URLs that have been munged by
// path cleaning or that are escaped.
func parseURL(s string) (*url.URL, error) {
	if reEscapedURL.MatchString(s) {
		unescaped, err := url.QueryUnescape(s)
		if err != nil {
			return nil, err
		}
		return parseURL(unescaped)
	}
	s = reCleanedURL.ReplaceAllString(s, "$1://$2")
	return url.Parse(s)
}
