// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package webimage

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"
)

// AnimatedImage is an Animated backed by an AnimatedDecoder.  Frames are
// decoded on demand unless preloaded.
type AnimatedImage struct {
	image.Image // first frame

	decoder AnimatedDecoder
	data    []byte
	format  Format
	scale   float64

	mu     sync.Mutex
	frames []image.Image // preloaded frames, nil if not loaded
}

var _ Animated = (*AnimatedImage)(nil)

// NewAnimatedImage decodes data with the highest priority animated coder
// registered with the shared coders manager.
func NewAnimatedImage(data []byte, scale float64) (*AnimatedImage, error) {
	if len(data) == 0 {
		return nil, errors.New("webimage: empty image data")
	}
	c, ok := SharedCodersManager().AnimatedCoder(data)
	if !ok {
		return nil, ErrUnsupportedFormat
	}
	return NewAnimatedImageWithCoder(data, scale, c)
}

// NewAnimatedImageWithCoder decodes data with coder c.
func NewAnimatedImageWithCoder(data []byte, scale float64, c AnimatedCoder) (*AnimatedImage, error) {
	if scale <= 0 {
		scale = 1
	}
	dec, err := c.NewAnimatedDecoder(data, &CoderOptions{DecodeScaleFactor: scale})
	if err != nil {
		return nil, err
	}
	m, err := NewAnimatedImageWithDecoder(dec, scale)
	if err != nil {
		dec.Close()
		return nil, err
	}
	return m, nil
}

// NewAnimatedImageWithDecoder returns an image reading its frames from dec.
// The image takes ownership of dec.
func NewAnimatedImageWithDecoder(dec AnimatedDecoder, scale float64) (*AnimatedImage, error) {
	if dec.AnimatedImageFrameCount() == 0 {
		return nil, errors.New("webimage: animated image has no frames")
	}
	poster, err := dec.AnimatedImageFrameAt(0)
	if err != nil {
		return nil, fmt.Errorf("webimage: decoding first frame: %w", err)
	}
	if scale <= 0 {
		scale = 1
	}
	data := dec.AnimatedImageData()
	return &AnimatedImage{
		Image:   poster,
		decoder: dec,
		data:    data,
		format:  DetectFormat(data),
		scale:   scale,
	}, nil
}

func (m *AnimatedImage) Scale() float64                 { return m.scale }
func (m *AnimatedImage) Format() Format                 { return m.format }
func (m *AnimatedImage) AnimatedImageData() []byte      { return m.data }
func (m *AnimatedImage) AnimatedCoder() AnimatedDecoder { return m.decoder }

func (m *AnimatedImage) AnimatedImageFrameCount() int {
	return m.decoder.AnimatedImageFrameCount()
}

func (m *AnimatedImage) AnimatedImageLoopCount() int {
	return m.decoder.AnimatedImageLoopCount()
}

func (m *AnimatedImage) AnimatedImageFrameAt(index int) (image.Image, error) {
	m.mu.Lock()
	if index >= 0 && index < len(m.frames) {
		f := m.frames[index]
		m.mu.Unlock()
		return f, nil
	}
	m.mu.Unlock()
	return m.decoder.AnimatedImageFrameAt(index)
}

func (m *AnimatedImage) AnimatedImageDurationAt(index int) (time.Duration, error) {
	return m.decoder.AnimatedImageDurationAt(index)
}

func (m *AnimatedImage) PreloadAllFrames() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frames != nil {
		return
	}
	n := m.decoder.AnimatedImageFrameCount()
	frames := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		f, err := m.decoder.AnimatedImageFrameAt(i)
		if err != nil {
			return
		}
		frames = append(frames, f)
	}
	m.frames = frames
}

func (m *AnimatedImage) UnloadAllFrames() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}

func (m *AnimatedImage) AllFramesLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames != nil
}

// Close releases the decoder backing m.
func (m *AnimatedImage) Close() error {
	m.UnloadAllFrames()
	return m.decoder.Close()
}
