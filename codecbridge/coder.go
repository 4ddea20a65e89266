// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

// Package codecbridge presents the animimage decoder and encoder as coders
// of package webimage, and converts between the animated image interfaces
// of the two packages.
//
// The adapters forward every request: decoding, frame access and
// animation timing stay with animimage.
package codecbridge

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"

	"willnorris.com/go/gifresize"

	"willnorris.com/go/imagebridge/animimage"
	"willnorris.com/go/imagebridge/webimage"
)

// Coder is a webimage coder backed by animimage.  It holds no state and is
// safe for concurrent use.
type Coder struct{}

var (
	_ webimage.Coder            = (*Coder)(nil)
	_ webimage.ProgressiveCoder = (*Coder)(nil)
	_ webimage.AnimatedCoder    = (*Coder)(nil)
)

var (
	sharedOnce  sync.Once
	sharedCoder *Coder
)

// SharedCoder returns the process-wide coder.
func SharedCoder() *Coder {
	sharedOnce.Do(func() {
		sharedCoder = new(Coder)
	})
	return sharedCoder
}

// Register adds the shared coder to webimage.SharedCodersManager.
func Register() {
	webimage.SharedCodersManager().AddCoder(SharedCoder())
}

var formatTypes = map[webimage.Format]animimage.Type{
	webimage.FormatJPEG: animimage.TypeJPEG,
	webimage.FormatPNG:  animimage.TypePNG,
	webimage.FormatGIF:  animimage.TypeGIF,
	webimage.FormatTIFF: animimage.TypeTIFF,
	webimage.FormatWebP: animimage.TypeWebP,
	webimage.FormatBMP:  animimage.TypeBMP,
}

// TypeForFormat returns the animimage type of format f, or TypeUnknown.
func TypeForFormat(f webimage.Format) animimage.Type {
	if t, ok := formatTypes[f]; ok {
		return t
	}
	return animimage.TypeUnknown
}

// FormatForType returns the webimage format of type t, or FormatUndefined.
func FormatForType(t animimage.Type) webimage.Format {
	for f, ft := range formatTypes {
		if ft == t {
			return f
		}
	}
	return webimage.FormatUndefined
}

func options(opts *webimage.CoderOptions) webimage.CoderOptions {
	if opts == nil {
		return webimage.CoderOptions{}
	}
	return *opts
}

func (c *Coder) CanDecode(data []byte) bool {
	return animimage.CanDecode(animimage.DetectType(data))
}

// Decode decodes complete data.  Animated data decodes to an *Image unless
// opts asks for the first frame only.
func (c *Coder) Decode(data []byte, opts *webimage.CoderOptions) (image.Image, error) {
	o := options(opts)
	d, err := animimage.DecodeData(data, o.DecodeScaleFactor)
	if err != nil {
		return nil, decodeError(err)
	}

	if d.FrameCount() > 1 && !o.DecodeFirstFrameOnly {
		m, err := NewImageWithDecoder(d)
		if err != nil {
			return nil, err
		}
		m.SetThumbnail(o.DecodeThumbnailPixelSize, o.DecodePreserveAspectRatio)
		return m, nil
	}

	f, err := d.Frame(0, true)
	if err != nil {
		return nil, err
	}
	return webimage.Thumbnail(f.Image, o.DecodeThumbnailPixelSize, o.DecodePreserveAspectRatio), nil
}

func decodeError(err error) error {
	if errors.Is(err, animimage.ErrUnsupportedType) {
		return fmt.Errorf("%w: %w", webimage.ErrUnsupportedFormat, err)
	}
	return err
}

func (c *Coder) CanEncode(format webimage.Format) bool {
	return animimage.CanEncode(TypeForFormat(format))
}

// Encode encodes m as format.  Animated images keep their frames and loop
// count when the format is GIF; other formats hold the first frame.
func (c *Coder) Encode(m image.Image, format webimage.Format, opts *webimage.CoderOptions) ([]byte, error) {
	if m == nil {
		return nil, errors.New("codecbridge: nil image")
	}
	t := TypeForFormat(format)
	e, err := animimage.NewEncoder(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", webimage.ErrUnsupportedFormat, format)
	}
	o := options(opts)
	e.Quality = o.EncodeCompressionQuality
	maxSize := o.EncodeMaxPixelSize

	// Other formats are reduced before encoding.  GIF data is resized
	// after encoding, so that each frame is resized composited with the
	// frames before it.
	still := m
	if maxSize != (image.Point{}) && t != animimage.TypeGIF {
		still = webimage.Thumbnail(m, maxSize, true)
	}

	animated := !o.EncodeFirstFrameOnly && t == animimage.TypeGIF
	switch a := m.(type) {
	case webimage.Animated:
		if animated && a.AnimatedImageFrameCount() > 1 {
			err = e.AddAnimatedImage(WrapAnimated(a))
		} else {
			e.AddImage(still, 0)
		}
	case animimage.AnimatedImage:
		if animated && a.FrameCount() > 1 {
			err = e.AddAnimatedImage(a)
		} else {
			e.AddImage(still, 0)
		}
	default:
		e.AddImage(still, 0)
	}
	if err != nil {
		return nil, err
	}

	data, err := e.Encode()
	if err != nil {
		return nil, err
	}

	if maxSize != (image.Point{}) && t == animimage.TypeGIF {
		buf := new(bytes.Buffer)
		fn := func(m image.Image) image.Image { return webimage.Thumbnail(m, maxSize, true) }
		if err := gifresize.Process(buf, bytes.NewReader(data), fn); err != nil {
			return nil, err
		}
		data = buf.Bytes()
	}
	return data, nil
}

// CanIncrementalDecode reports whether the format of data, which may be as
// short as one byte, can be decoded.
func (c *Coder) CanIncrementalDecode(data []byte) bool {
	return animimage.CanDecode(TypeForFormat(webimage.DetectFormat(data)))
}

// NewIncrementalDecoder returns a session decoding data as it arrives.
func (c *Coder) NewIncrementalDecoder(opts *webimage.CoderOptions) webimage.IncrementalDecoder {
	o := options(opts)
	return &Session{
		decoder: animimage.NewDecoder(o.DecodeScaleFactor),
		opts:    o,
	}
}

// NewAnimatedDecoder returns a session giving access to the frames of
// complete data.
func (c *Coder) NewAnimatedDecoder(data []byte, opts *webimage.CoderOptions) (webimage.AnimatedDecoder, error) {
	o := options(opts)
	d, err := animimage.DecodeData(data, o.DecodeScaleFactor)
	if err != nil {
		return nil, decodeError(err)
	}
	return &Session{decoder: d, animated: true, opts: o}, nil
}
