// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package animimage

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// defaultQuality is the lossy compression quality used when none is set.
const defaultQuality = 0.9

// Encoder encodes one or more frames into image data.  Only GIF keeps more
// than one frame; every other type encodes the first frame added.
type Encoder struct {
	// LoopCount is the number of times an animation plays, with zero
	// meaning forever.
	LoopCount int

	// Quality is the compression quality for lossy types, in the range
	// (0, 1].  Zero selects the default.
	Quality float64

	typ       Type
	frames    []image.Image
	durations []time.Duration
}

// NewEncoder returns an Encoder for images of type t.
func NewEncoder(t Type) (*Encoder, error) {
	if !CanEncode(t) {
		return nil, ErrUnsupportedType
	}
	return &Encoder{typ: t}, nil
}

// Type returns the type of image data the encoder produces.
func (e *Encoder) Type() Type { return e.typ }

// AddImage appends a frame displayed for d.
func (e *Encoder) AddImage(m image.Image, d time.Duration) {
	e.frames = append(e.frames, m)
	e.durations = append(e.durations, d)
}

// AddAnimatedImage appends every frame of a and adopts its loop count.
func (e *Encoder) AddAnimatedImage(a AnimatedImage) error {
	for i := 0; i < a.FrameCount(); i++ {
		m, err := a.FrameAt(i)
		if err != nil {
			return err
		}
		d, err := a.DurationAt(i)
		if err != nil {
			return err
		}
		e.AddImage(m, d)
	}
	e.LoopCount = a.LoopCount()
	return nil
}

// Encode returns the encoded image data.
func (e *Encoder) Encode() ([]byte, error) {
	if len(e.frames) == 0 {
		return nil, errors.New("animimage: no frames to encode")
	}

	buf := new(bytes.Buffer)
	var err error
	switch e.typ {
	case TypeGIF:
		err = e.encodeGIF(buf)
	case TypeJPEG:
		err = jpeg.Encode(buf, e.frames[0], &jpeg.Options{Quality: jpegQuality(e.Quality)})
	case TypePNG:
		err = png.Encode(buf, e.frames[0])
	case TypeBMP:
		err = bmp.Encode(buf, e.frames[0])
	case TypeTIFF:
		err = tiff.Encode(buf, e.frames[0], &tiff.Options{Compression: tiff.Deflate})
	default:
		err = ErrUnsupportedType
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Encoder) encodeGIF(buf *bytes.Buffer) error {
	g := &gif.GIF{LoopCount: loopCountToGIF(e.LoopCount)}
	for i, m := range e.frames {
		g.Image = append(g.Image, toPaletted(m))
		g.Delay = append(g.Delay, int(e.durations[i]/(10*time.Millisecond)))
		g.Disposal = append(g.Disposal, gif.DisposalNone)
	}
	return gif.EncodeAll(buf, g)
}

// EncodeImage encodes a single image as type t.
func EncodeImage(m image.Image, t Type, quality float64) ([]byte, error) {
	e, err := NewEncoder(t)
	if err != nil {
		return nil, err
	}
	e.Quality = quality
	e.AddImage(m, 0)
	return e.Encode()
}

func jpegQuality(q float64) int {
	if q <= 0 {
		q = defaultQuality
	}
	if q > 1 {
		q = 1
	}
	return int(q * 100)
}

// toPaletted converts m to a paletted image.  Images with at most 256
// distinct colors keep their exact colors; others are dithered onto the
// Plan 9 palette.
func toPaletted(m image.Image) *image.Paletted {
	if p, ok := m.(*image.Paletted); ok {
		return p
	}

	b := m.Bounds()
	pal := exactPalette(m)
	if pal == nil {
		pm := image.NewPaletted(b, palette.Plan9)
		draw.FloydSteinberg.Draw(pm, b, m, b.Min)
		return pm
	}

	pm := image.NewPaletted(b, pal)
	draw.Draw(pm, b, m, b.Min, draw.Src)
	return pm
}

// exactPalette returns the distinct colors of m, or nil if there are more
// than fit in a GIF palette.
func exactPalette(m image.Image) color.Palette {
	b := m.Bounds()
	seen := make(map[color.RGBA64]bool)
	var pal color.Palette
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBA64Model.Convert(m.At(x, y)).(color.RGBA64)
			if seen[c] {
				continue
			}
			if len(pal) == 256 {
				return nil
			}
			seen[c] = true
			pal = append(pal, c)
		}
	}
	return pal
}
