// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package imagebridge

import (
	"bytes"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/golang/glog"
	"github.com/muesli/smartcrop"
	"github.com/muesli/smartcrop/nfnt"
	"github.com/prometheus/client_golang/prometheus"
	"willnorris.com/go/gifresize"
)

// resample filter used for all resizing
var resampleFilter = imaging.Lanczos

var smartcropAnalyzer = smartcrop.NewAnalyzer(nfnt.NewDefaultResizer())

// Transform applies the geometry of opt to m: crop, resize, rotate, then
// flip.  Output format and quality are applied when the result is encoded.
func Transform(m image.Image, opt Options) image.Image {
	if !opt.transform() {
		return m
	}

	timer := prometheus.NewTimer(metricTransformationDuration)
	defer timer.ObserveDuration()

	// Parse crop and resize parameters before applying any transforms, so
	// that percentage values are based off the size of the original image.
	rect := cropParams(m, opt)
	w, h, resize := resizeParams(m, opt)

	if !m.Bounds().Eq(rect) {
		m = imaging.Crop(m, rect)
	}

	if resize {
		if opt.Fit {
			m = imaging.Fit(m, w, h, resampleFilter)
		} else if w == 0 || h == 0 {
			m = imaging.Resize(m, w, h, resampleFilter)
		} else {
			m = imaging.Thumbnail(m, w, h, resampleFilter)
		}
	}

	// rotation is counter-clockwise, normalized to [0, 360)
	rotate := float64(opt.Rotate) - 360*math.Floor(float64(opt.Rotate)/360)
	switch rotate {
	case 90:
		m = imaging.Rotate90(m)
	case 180:
		m = imaging.Rotate180(m)
	case 270:
		m = imaging.Rotate270(m)
	}

	if opt.FlipVertical {
		m = imaging.FlipV(m)
	}
	if opt.FlipHorizontal {
		m = imaging.FlipH(m)
	}

	return m
}

// transformGIF applies opt to every frame of the GIF data, compositing each
// frame over the ones before it so that partial frames transform correctly.
func transformGIF(data []byte, opt Options) ([]byte, error) {
	buf := new(bytes.Buffer)
	fn := func(m image.Image) image.Image { return Transform(m, opt) }
	if err := gifresize.Process(buf, bytes.NewReader(data), fn); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// evaluateFloat interprets the option value f.  If f is between 0 and 1, it
// is interpreted as a percentage of max, otherwise it is treated as an
// absolute value.  If f is less than 0, 0 is returned.
func evaluateFloat(f float64, max int) int {
	if 0 < f && f < 1 {
		return int(float64(max) * f)
	}
	if f < 0 {
		return 0
	}
	return int(f)
}

// resizeParams determines if the image needs to be resized, and if so, the
// dimensions to resize to.
func resizeParams(m image.Image, opt Options) (w, h int, resize bool) {
	imgW := m.Bounds().Dx()
	imgH := m.Bounds().Dy()
	w = evaluateFloat(opt.Width, imgW)
	h = evaluateFloat(opt.Height, imgH)

	// never resize larger than the original image unless specifically allowed
	if !opt.ScaleUp {
		if w > imgW {
			w = imgW
		}
		if h > imgH {
			h = imgH
		}
	}

	// if requested width and height match the original, skip resizing
	if (w == imgW || w == 0) && (h == imgH || h == 0) {
		return 0, 0, false
	}

	return w, h, true
}

// cropParams calculates crop rectangle parameters to keep it in image
// bounds.
func cropParams(m image.Image, opt Options) image.Rectangle {
	if !opt.SmartCrop && opt.CropX == 0 && opt.CropY == 0 && opt.CropWidth == 0 && opt.CropHeight == 0 {
		return m.Bounds()
	}

	imgW := m.Bounds().Dx()
	imgH := m.Bounds().Dy()

	if opt.SmartCrop {
		w := evaluateFloat(opt.Width, imgW)
		h := evaluateFloat(opt.Height, imgH)
		r, err := smartcropAnalyzer.FindBestCrop(m, w, h)
		if err == nil {
			return r
		}
		glog.Warningf("smartcrop error finding best crop: %v", err)
	}

	// top left coordinate of crop
	x0 := evaluateFloat(math.Abs(opt.CropX), imgW)
	if opt.CropX < 0 {
		x0 = imgW - x0 // measure from right
	}
	y0 := evaluateFloat(math.Abs(opt.CropY), imgH)
	if opt.CropY < 0 {
		y0 = imgH - y0 // measure from bottom
	}

	// width and height of crop
	w := evaluateFloat(opt.CropWidth, imgW)
	if w == 0 {
		w = imgW
	}
	h := evaluateFloat(opt.CropHeight, imgH)
	if h == 0 {
		h = imgH
	}

	// bottom right coordinate of crop
	x1 := min(x0+w, imgW)
	y1 := min(y0+h, imgH)

	b := m.Bounds()
	return image.Rect(x0, y0, x1, y1).Add(b.Min)
}
