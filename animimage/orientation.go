// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package animimage

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// EXIF orientation values.
const (
	topLeftSide     = 1
	topRightSide    = 2
	bottomRightSide = 3
	bottomLeftSide  = 4
	leftSideTop     = 5
	rightSideTop    = 6
	rightSideBottom = 7
	leftSideBottom  = 8
)

// exifOrientation returns the EXIF orientation stored in data, or
// topLeftSide if there is none.
func exifOrientation(data []byte) int {
	ex, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return topLeftSide
	}
	tag, err := ex.Get(exif.Orientation)
	if err != nil {
		return topLeftSide
	}
	orient, err := tag.Int(0)
	if err != nil || orient < topLeftSide || orient > leftSideBottom {
		return topLeftSide
	}
	return orient
}

// orient returns m transformed so that it displays upright according to
// the EXIF orientation o.
func orient(m image.Image, o int) image.Image {
	switch o {
	case topRightSide:
		return imaging.FlipH(m)
	case bottomRightSide:
		return imaging.Rotate180(m)
	case bottomLeftSide:
		return imaging.FlipV(m)
	case leftSideTop:
		return imaging.Transpose(m)
	case rightSideTop:
		return imaging.Rotate270(m)
	case rightSideBottom:
		return imaging.Transverse(m)
	case leftSideBottom:
		return imaging.Rotate90(m)
	}
	return m
}
