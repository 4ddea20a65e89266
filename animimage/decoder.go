// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package animimage

import (
	"bytes"
	"image"
	"image/draw"
	"image/gif"
	_ "image/jpeg" // register jpeg format
	_ "image/png"  // register png format
	"sync"
	"time"

	_ "golang.org/x/image/bmp"  // register bmp format
	_ "golang.org/x/image/tiff" // register tiff format
	_ "golang.org/x/image/webp" // register webp format
)

const (
	// GIF frames with a delay at or below minFrameDelay are shown for
	// defaultFrameDelay instead, as browsers do.
	minFrameDelay     = 10 * time.Millisecond
	defaultFrameDelay = 100 * time.Millisecond
)

// Decoder decodes image data into frames.  It is safe for concurrent use.
//
// Data may be supplied incrementally with Update.  Until the data is
// finalized, only frames that can already be fully decoded are available:
// a still image once all of its bytes are present, or the first frame of a
// GIF once that frame is complete.
type Decoder struct {
	mu sync.Mutex

	scale      float64
	data       []byte
	finalized  bool
	typ        Type
	width      int
	height     int
	loopCount  int
	frames     []*Frame
	composited []image.Image // display frames, built on first request
	err        error
}

// NewDecoder returns a Decoder with no data.  scale is the number of pixels
// per point of the decoded image; values <= 0 are treated as 1.
func NewDecoder(scale float64) *Decoder {
	if scale <= 0 {
		scale = 1
	}
	return &Decoder{scale: scale}
}

// DecodeData returns a Decoder for the complete image data.
func DecodeData(data []byte, scale float64) (*Decoder, error) {
	d := NewDecoder(scale)
	d.Update(data, true)
	if err := d.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// Update replaces the decoder data with data, which must hold every byte
// received so far.  If final is true, no more data will follow.  Update
// returns false if the data was not accepted, either because the decoder is
// already finalized or because data is shorter than what was given before.
func (d *Decoder) Update(data []byte, final bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.finalized || len(data) < len(d.data) {
		return false
	}
	d.data = data
	d.finalized = final
	if d.typ == TypeUnknown {
		d.typ = DetectType(data)
	}
	d.decode()
	return true
}

func (d *Decoder) decode() {
	d.frames, d.composited, d.err = nil, nil, nil

	if !d.typ.decodable() {
		if d.finalized {
			d.err = ErrUnsupportedType
		}
		return
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(d.data)); err == nil {
		d.width, d.height = cfg.Width, cfg.Height
	}

	var err error
	if d.typ == TypeGIF {
		err = d.decodeGIF()
	} else {
		err = d.decodeStill()
	}
	// partial data is expected to fail until enough of it has arrived
	if err != nil && d.finalized {
		d.err = err
	}
}

func (d *Decoder) decodeStill() error {
	m, _, err := image.Decode(bytes.NewReader(d.data))
	if err != nil {
		return err
	}
	if d.typ == TypeJPEG || d.typ == TypeTIFF {
		m = orient(m, exifOrientation(d.data))
	}

	b := m.Bounds()
	d.width, d.height = b.Dx(), b.Dy()
	d.loopCount = 0
	d.frames = []*Frame{{
		Width:  b.Dx(),
		Height: b.Dy(),
		Blend:  BlendNone,
		Image:  m,
	}}
	return nil
}

func (d *Decoder) decodeGIF() error {
	r := bytes.NewReader(d.data)

	if !d.finalized {
		m, err := gif.Decode(r)
		if err != nil {
			return err
		}
		d.frames = []*Frame{newGIFFrame(0, m, defaultFrameDelay, gif.DisposalNone)}
		return nil
	}

	g, err := gif.DecodeAll(r)
	if err != nil {
		return err
	}
	d.width, d.height = g.Config.Width, g.Config.Height
	d.loopCount = loopCountFromGIF(g.LoopCount)
	if len(g.Image) == 1 {
		// still GIFs carry no loop extension
		d.loopCount = 0
	}
	d.frames = make([]*Frame, len(g.Image))
	for i, p := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		d.frames[i] = newGIFFrame(i, p, gifDelay(g.Delay[i]), disposal)
	}
	return nil
}

func newGIFFrame(index int, m image.Image, delay time.Duration, disposal byte) *Frame {
	b := m.Bounds()
	f := &Frame{
		Index:    index,
		Width:    b.Dx(),
		Height:   b.Dy(),
		OffsetX:  b.Min.X,
		OffsetY:  b.Min.Y,
		Duration: delay,
		Blend:    BlendOver,
		Image:    m,
	}
	switch disposal {
	case gif.DisposalBackground:
		f.Dispose = DisposeBackground
	case gif.DisposalPrevious:
		f.Dispose = DisposePrevious
	}
	return f
}

// composite renders every frame onto a canvas the size of the image,
// honoring each frame's blend and dispose settings.  Frames are drawn in
// order since each one may depend on those before it.
func (d *Decoder) composite() {
	if d.composited != nil {
		return
	}

	w, h := d.width, d.height
	if w == 0 || h == 0 {
		b := d.frames[0].Image.Bounds()
		w, h = b.Max.X, b.Max.Y
	}
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	d.composited = make([]image.Image, len(d.frames))

	for i, f := range d.frames {
		var previous *image.RGBA
		if f.Dispose == DisposePrevious {
			previous = cloneRGBA(canvas)
		}

		op := draw.Over
		if f.Blend == BlendNone {
			op = draw.Src
		}
		b := f.Image.Bounds()
		draw.Draw(canvas, b, f.Image, b.Min, op)
		d.composited[i] = cloneRGBA(canvas)

		switch f.Dispose {
		case DisposeBackground:
			draw.Draw(canvas, b, image.Transparent, image.Point{}, draw.Src)
		case DisposePrevious:
			canvas = previous
		}
	}
}

func cloneRGBA(m *image.RGBA) *image.RGBA {
	c := image.NewRGBA(m.Rect)
	copy(c.Pix, m.Pix)
	return c
}

// Frame returns the frame at index.  If decodeForDisplay is true, the frame
// image is composited with the frames before it and covers the whole image;
// otherwise it is the frame as stored in the data.
func (d *Decoder) Frame(index int, decodeForDisplay bool) (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkIndex(index); err != nil {
		return nil, err
	}

	f := *d.frames[index]
	if decodeForDisplay && d.typ == TypeGIF {
		d.composite()
		f.Image = d.composited[index]
		b := f.Image.Bounds()
		f.Width, f.Height = b.Dx(), b.Dy()
		f.OffsetX, f.OffsetY = 0, 0
		f.Blend = BlendNone
	}
	return &f, nil
}

// FrameDuration returns the display duration of the frame at index.
func (d *Decoder) FrameDuration(index int) (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkIndex(index); err != nil {
		return 0, err
	}
	return d.frames[index].Duration, nil
}

func (d *Decoder) checkIndex(index int) error {
	if len(d.frames) == 0 && d.err != nil {
		return d.err
	}
	if index < 0 || index >= len(d.frames) {
		return ErrFrameOutOfRange
	}
	return nil
}

// Err returns the error encountered decoding finalized data, if any.
func (d *Decoder) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Data returns the data most recently passed to Update.
func (d *Decoder) Data() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data
}

func (d *Decoder) Type() Type {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typ
}

func (d *Decoder) Scale() float64 { return d.scale }

func (d *Decoder) Width() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width
}

func (d *Decoder) Height() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.height
}

// FrameCount returns the number of frames decoded so far.
func (d *Decoder) FrameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

// LoopCount returns the number of times the animation plays, with zero
// meaning forever.
func (d *Decoder) LoopCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loopCount
}

// Finalized reports whether the decoder has received all of its data.
func (d *Decoder) Finalized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finalized
}

// loopCountFromGIF converts an image/gif loop count, which counts repeats,
// into the number of plays.
func loopCountFromGIF(n int) int {
	switch {
	case n == 0:
		return 0
	case n < 0:
		return 1
	}
	return n + 1
}

func loopCountToGIF(n int) int {
	switch {
	case n <= 0:
		return 0
	case n == 1:
		return -1
	}
	return n - 1
}

// gifDelay converts a GIF frame delay in hundredths of a second.
func gifDelay(centis int) time.Duration {
	d := time.Duration(centis) * 10 * time.Millisecond
	if d <= minFrameDelay {
		return defaultFrameDelay
	}
	return d
}
