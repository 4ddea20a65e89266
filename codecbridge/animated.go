// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package codecbridge

import (
	"image"
	"time"

	"willnorris.com/go/imagebridge/animimage"
	"willnorris.com/go/imagebridge/webimage"
)

// Animated presents a webimage.Animated as an animimage.AnimatedImage.
type Animated struct {
	a webimage.Animated
}

var _ animimage.AnimatedImage = (*Animated)(nil)

// WrapAnimated adapts a.
func WrapAnimated(a webimage.Animated) *Animated {
	return &Animated{a: a}
}

// Source returns the wrapped image.
func (m *Animated) Source() webimage.Animated { return m.a }

func (m *Animated) FrameCount() int { return m.a.AnimatedImageFrameCount() }

func (m *Animated) LoopCount() int { return m.a.AnimatedImageLoopCount() }

// BytesPerFrame returns the size of one frame as 8-bit RGBA.
func (m *Animated) BytesPerFrame() int {
	b := m.a.Bounds()
	return b.Dx() * b.Dy() * 4
}

func (m *Animated) FrameAt(index int) (image.Image, error) {
	return m.a.AnimatedImageFrameAt(index)
}

func (m *Animated) DurationAt(index int) (time.Duration, error) {
	return m.a.AnimatedImageDurationAt(index)
}
