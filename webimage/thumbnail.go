// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package webimage

import (
	"image"

	"github.com/disintegration/imaging"
)

// Thumbnail reduces m to size.  With preserveAspectRatio, m is scaled to
// fit within size; otherwise it is scaled and cropped to fill size exactly.
// Images are never enlarged, and m is returned unchanged if size has a zero
// component or m already fits.
func Thumbnail(m image.Image, size image.Point, preserveAspectRatio bool) image.Image {
	if m == nil || size.X <= 0 || size.Y <= 0 {
		return m
	}
	b := m.Bounds()
	if b.Dx() <= size.X && b.Dy() <= size.Y {
		return m
	}
	if preserveAspectRatio {
		return imaging.Fit(m, size.X, size.Y, imaging.Lanczos)
	}
	w, h := min(size.X, b.Dx()), min(size.Y, b.Dy())
	return imaging.Fill(m, w, h, imaging.Center, imaging.Lanczos)
}

// ThumbnailSize returns the size of the image Thumbnail would produce for a
// source of size src.
func ThumbnailSize(src, size image.Point, preserveAspectRatio bool) image.Point {
	if size.X <= 0 || size.Y <= 0 || (src.X <= size.X && src.Y <= size.Y) {
		return src
	}
	if !preserveAspectRatio {
		return image.Pt(min(size.X, src.X), min(size.Y, src.Y))
	}
	// matches imaging.Fit
	srcAspect := float64(src.X) / float64(src.Y)
	maxAspect := float64(size.X) / float64(size.Y)
	if srcAspect > maxAspect {
		h := int(float64(size.X) / srcAspect)
		return image.Pt(size.X, max(h, 1))
	}
	w := int(float64(size.Y) * srcAspect)
	return image.Pt(max(w, 1), size.Y)
}
