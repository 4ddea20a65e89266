// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package codecbridge

import (
	"image"
	"time"

	"willnorris.com/go/imagebridge/animimage"
	"willnorris.com/go/imagebridge/webimage"
)

// Image presents an *animimage.Image as a webimage.Animated.
type Image struct {
	image.Image // first frame, reduced to the thumbnail size

	src                 *animimage.Image
	thumbnail           image.Point
	preserveAspectRatio bool
}

var _ webimage.Animated = (*Image)(nil)

// WrapImage adapts m.
func WrapImage(m *animimage.Image) *Image {
	return &Image{Image: m, src: m}
}

// NewImage decodes data with animimage.
func NewImage(data []byte, scale float64) (*Image, error) {
	m, err := animimage.New(data, scale)
	if err != nil {
		return nil, decodeError(err)
	}
	return WrapImage(m), nil
}

// NewImageWithDecoder returns an image reading its frames from d.
func NewImageWithDecoder(d *animimage.Decoder) (*Image, error) {
	m, err := animimage.NewFromDecoder(d)
	if err != nil {
		return nil, decodeError(err)
	}
	return WrapImage(m), nil
}

// SetThumbnail reduces the image and each of its frames to size, as
// webimage.Thumbnail does.  A zero size shows frames at full size.
func (m *Image) SetThumbnail(size image.Point, preserveAspectRatio bool) {
	m.thumbnail = size
	m.preserveAspectRatio = preserveAspectRatio
	m.Image = webimage.Thumbnail(m.src, size, preserveAspectRatio)
}

// Source returns the wrapped image.
func (m *Image) Source() *animimage.Image { return m.src }

func (m *Image) Scale() float64 { return m.src.Scale() }

func (m *Image) Format() webimage.Format { return FormatForType(m.src.Type()) }

func (m *Image) AnimatedImageData() []byte { return m.src.Data() }

func (m *Image) AnimatedImageFrameCount() int { return m.src.FrameCount() }

func (m *Image) AnimatedImageLoopCount() int { return m.src.LoopCount() }

func (m *Image) AnimatedImageFrameAt(index int) (image.Image, error) {
	f, err := m.src.FrameAt(index)
	if err != nil {
		return nil, err
	}
	return webimage.Thumbnail(f, m.thumbnail, m.preserveAspectRatio), nil
}

func (m *Image) AnimatedImageDurationAt(index int) (time.Duration, error) {
	return m.src.DurationAt(index)
}

func (m *Image) PreloadAllFrames()     { m.src.SetPreloadAllFrames(true) }
func (m *Image) UnloadAllFrames()      { m.src.SetPreloadAllFrames(false) }
func (m *Image) AllFramesLoaded() bool { return m.src.FramesPreloaded() }

// AnimatedCoder returns an animated session over the wrapped image's
// decoder.
func (m *Image) AnimatedCoder() webimage.AnimatedDecoder {
	return &Session{
		decoder:  m.src.Decoder(),
		animated: true,
		opts: webimage.CoderOptions{
			DecodeScaleFactor:         m.src.Scale(),
			DecodeThumbnailPixelSize:  m.thumbnail,
			DecodePreserveAspectRatio: m.preserveAspectRatio,
		},
	}
}
