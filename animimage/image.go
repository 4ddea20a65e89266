// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package animimage

import (
	"image"
	"sync"
	"time"
)

// Image is a decoded image that may hold an animation.  As an image.Image
// it presents its first frame; the remaining frames are decoded on demand
// unless preloading is enabled.
type Image struct {
	image.Image

	decoder       *Decoder
	bytesPerFrame int

	mu        sync.Mutex
	preload   bool
	preloaded []image.Image
}

var _ AnimatedImage = (*Image)(nil)

// New decodes data into an Image.  scale is the number of pixels per point.
func New(data []byte, scale float64) (*Image, error) {
	d, err := DecodeData(data, scale)
	if err != nil {
		return nil, err
	}
	return NewFromDecoder(d)
}

// NewFromDecoder returns an Image reading its frames from d, which should
// hold finalized data.
func NewFromDecoder(d *Decoder) (*Image, error) {
	f, err := d.Frame(0, true)
	if err != nil {
		return nil, err
	}
	b := f.Image.Bounds()
	return &Image{
		Image:         f.Image,
		decoder:       d,
		bytesPerFrame: b.Dx() * b.Dy() * 4,
	}, nil
}

// Type returns the type of the data the image was decoded from.
func (m *Image) Type() Type { return m.decoder.Type() }

// Scale returns the number of pixels per point.
func (m *Image) Scale() float64 { return m.decoder.Scale() }

// Data returns the encoded data the image was decoded from.
func (m *Image) Data() []byte { return m.decoder.Data() }

// Decoder returns the decoder backing the image.
func (m *Image) Decoder() *Decoder { return m.decoder }

// SetPreloadAllFrames controls whether every frame is decoded and kept in
// memory.  Turning preloading off releases the kept frames.
func (m *Image) SetPreloadAllFrames(preload bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.preload = preload
	if !preload {
		m.preloaded = nil
		return
	}

	n := m.decoder.FrameCount()
	frames := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		f, err := m.decoder.Frame(i, true)
		if err != nil {
			// leave frames to be decoded on demand
			return
		}
		frames = append(frames, f.Image)
	}
	m.preloaded = frames
}

// PreloadAllFrames reports whether preloading is enabled.
func (m *Image) PreloadAllFrames() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preload
}

// FramesPreloaded reports whether every frame is held in memory.
func (m *Image) FramesPreloaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preloaded != nil
}

func (m *Image) FrameCount() int { return m.decoder.FrameCount() }

func (m *Image) LoopCount() int { return m.decoder.LoopCount() }

func (m *Image) BytesPerFrame() int { return m.bytesPerFrame }

func (m *Image) FrameAt(index int) (image.Image, error) {
	m.mu.Lock()
	frames := m.preloaded
	m.mu.Unlock()
	if index >= 0 && index < len(frames) {
		return frames[index], nil
	}

	f, err := m.decoder.Frame(index, true)
	if err != nil {
		return nil, err
	}
	return f.Image, nil
}

func (m *Image) DurationAt(index int) (time.Duration, error) {
	return m.decoder.FrameDuration(index)
}
