// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

// Package animimage provides an in-memory image container with animation
// support, along with the decoder and encoder that back it.
//
// A Decoder is fed the bytes of an encoded image, possibly incrementally, and
// hands out individual frames. An Image holds a fully decoded image and
// exposes it through the AnimatedImage interface, which is what animation
// consumers program against.
package animimage

import (
	"errors"
	"image"
	"time"
)

var (
	// ErrFrameOutOfRange is returned when a frame index is negative or not
	// smaller than the decoder's frame count.
	ErrFrameOutOfRange = errors.New("animimage: frame index out of range")

	// ErrUnsupportedType is returned for image types that cannot be decoded
	// or encoded.
	ErrUnsupportedType = errors.New("animimage: unsupported image type")
)

// AnimatedImage is implemented by images that can be played back frame by
// frame.
type AnimatedImage interface {
	// FrameCount returns the total number of frames.
	FrameCount() int

	// LoopCount returns the number of times the animation plays.  Zero
	// means the animation loops forever.
	LoopCount() int

	// BytesPerFrame returns the memory needed to hold one decoded frame.
	BytesPerFrame() int

	// FrameAt returns the frame at index, fully composited for display.
	FrameAt(index int) (image.Image, error)

	// DurationAt returns how long the frame at index is displayed.
	DurationAt(index int) (time.Duration, error)
}

// DisposeMethod specifies how a frame area is treated before the next frame
// is rendered.
type DisposeMethod int

const (
	DisposeNone       DisposeMethod = iota // leave the frame in place
	DisposeBackground                      // clear the frame area to transparent
	DisposePrevious                        // restore the canvas to its previous state
)

// BlendOperation specifies how a frame is drawn onto the canvas.
type BlendOperation int

const (
	BlendNone BlendOperation = iota // replace the canvas area
	BlendOver                       // composite over the canvas
)

// Frame is a single decoded frame.
type Frame struct {
	Index    int
	Width    int
	Height   int
	OffsetX  int
	OffsetY  int
	Duration time.Duration
	Dispose  DisposeMethod
	Blend    BlendOperation
	Image    image.Image
}
