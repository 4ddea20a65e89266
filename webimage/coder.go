// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package webimage

import (
	"image"
	"time"
)

// CoderOptions controls decoding and encoding.  A nil *CoderOptions is the
// same as the zero value.
type CoderOptions struct {
	// DecodeFirstFrameOnly decodes only the first frame of animated data.
	DecodeFirstFrameOnly bool

	// DecodeScaleFactor is the number of pixels per point of the decoded
	// image.  Zero means 1.
	DecodeScaleFactor float64

	// DecodeThumbnailPixelSize, if non-zero, limits the decoded image to
	// this size.
	DecodeThumbnailPixelSize image.Point

	// DecodePreserveAspectRatio keeps the aspect ratio when producing a
	// thumbnail.  Otherwise the thumbnail is scaled and cropped to fill the
	// requested size.
	DecodePreserveAspectRatio bool

	// EncodeFirstFrameOnly encodes only the first frame of an animated
	// image.
	EncodeFirstFrameOnly bool

	// EncodeCompressionQuality is the quality for lossy formats, in the
	// range (0, 1].  Zero selects the coder default.
	EncodeCompressionQuality float64

	// EncodeMaxPixelSize, if non-zero, limits the size of the encoded image.
	EncodeMaxPixelSize image.Point
}

// Coder decodes and encodes image data.
type Coder interface {
	// CanDecode reports whether the coder can decode data.
	CanDecode(data []byte) bool

	// Decode decodes complete image data.  Animated data decodes to an
	// image that also implements Animated, unless opts requests the first
	// frame only.
	Decode(data []byte, opts *CoderOptions) (image.Image, error)

	// CanEncode reports whether the coder can encode images as format.
	CanEncode(format Format) bool

	// Encode encodes m as format.  Images implementing Animated are
	// encoded with all of their frames when the format allows it.
	Encode(m image.Image, format Format, opts *CoderOptions) ([]byte, error)
}

// ProgressiveCoder is a Coder that can decode data as it arrives.
type ProgressiveCoder interface {
	Coder

	// CanIncrementalDecode reports whether data, which may be partial, can
	// be decoded incrementally.
	CanIncrementalDecode(data []byte) bool

	// NewIncrementalDecoder starts an incremental decoding session.  The
	// caller must Close it when done.
	NewIncrementalDecoder(opts *CoderOptions) IncrementalDecoder
}

// IncrementalDecoder is one incremental decoding session.
type IncrementalDecoder interface {
	// UpdateIncrementalData supplies every byte received so far.  finished
	// is true once no more data will follow.
	UpdateIncrementalData(data []byte, finished bool) error

	// IncrementalImage returns the image decoded so far, or nil if nothing
	// can be shown yet.
	IncrementalImage(opts *CoderOptions) (image.Image, error)

	// Close releases the session.
	Close() error
}

// AnimatedProvider gives access to the frames of an animated image.
type AnimatedProvider interface {
	// AnimatedImageData returns the encoded data of the animation.
	AnimatedImageData() []byte

	AnimatedImageFrameCount() int

	// AnimatedImageLoopCount returns how many times the animation plays.
	// Zero means forever.
	AnimatedImageLoopCount() int

	AnimatedImageFrameAt(index int) (image.Image, error)
	AnimatedImageDurationAt(index int) (time.Duration, error)
}

// AnimatedDecoder is a decoding session over complete animated data.
type AnimatedDecoder interface {
	AnimatedProvider

	// Close releases the session.
	Close() error
}

// AnimatedCoder is a Coder that can decode animation frames on demand.
type AnimatedCoder interface {
	Coder

	// NewAnimatedDecoder starts an animated decoding session over complete
	// data.  The caller must Close it when done.
	NewAnimatedDecoder(data []byte, opts *CoderOptions) (AnimatedDecoder, error)
}

// Animated is an image with animation frames.  As an image.Image it shows
// its first frame.
type Animated interface {
	image.Image
	AnimatedProvider

	// Scale returns the number of pixels per point.
	Scale() float64

	// Format returns the format of the animated image data.
	Format() Format

	// PreloadAllFrames decodes every frame and keeps it in memory.
	PreloadAllFrames()

	// UnloadAllFrames releases preloaded frames.
	UnloadAllFrames()

	// AllFramesLoaded reports whether every frame is held in memory.
	AllFramesLoaded() bool

	// AnimatedCoder returns the decoding session backing the image, or
	// nil if the image decodes its frames by other means.
	AnimatedCoder() AnimatedDecoder
}
