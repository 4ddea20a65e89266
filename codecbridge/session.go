// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package codecbridge

import (
	"errors"
	"image"
	"sync"
	"time"

	"willnorris.com/go/imagebridge/animimage"
	"willnorris.com/go/imagebridge/webimage"
)

// ErrSessionClosed is returned by the methods of a closed Session.
var ErrSessionClosed = errors.New("codecbridge: session closed")

// errDataRejected is returned when the decoder does not accept an update.
var errDataRejected = errors.New("codecbridge: incremental data rejected")

// Session is one decoding session over an animimage.Decoder.
//
// A session is either incremental, receiving data as it arrives, or
// animated, giving access to the frames of complete data.  Incremental
// sessions report no frames and return webimage.ErrUnsupported from frame
// access; animated sessions return webimage.ErrUnsupported from the
// incremental methods.
type Session struct {
	mu       sync.Mutex
	decoder  *animimage.Decoder
	animated bool
	opts     webimage.CoderOptions
	closed   bool
}

var (
	_ webimage.IncrementalDecoder = (*Session)(nil)
	_ webimage.AnimatedDecoder    = (*Session)(nil)
)

// Decoder returns the decoder of the session, or nil once the session is
// closed.
func (s *Session) Decoder() *animimage.Decoder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decoder
}

// Animated reports whether s is an animated session.
func (s *Session) Animated() bool { return s.animated }

// check returns the decoder for a call that needs an animated session if
// animated is true, or an incremental one otherwise.
func (s *Session) check(animated bool) (*animimage.Decoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.animated != animated {
		return nil, webimage.ErrUnsupported
	}
	return s.decoder, nil
}

func (s *Session) UpdateIncrementalData(data []byte, finished bool) error {
	d, err := s.check(false)
	if err != nil {
		return err
	}
	if !d.Update(data, finished) {
		return errDataRejected
	}
	return decodeError(d.Err())
}

// IncrementalImage returns the first frame decoded so far, or nil if no
// frame is complete yet.  opts may be nil to use the session options.
func (s *Session) IncrementalImage(opts *webimage.CoderOptions) (image.Image, error) {
	d, err := s.check(false)
	if err != nil {
		return nil, err
	}
	o := s.opts
	if opts != nil {
		o = *opts
	}
	if d.FrameCount() == 0 {
		return nil, decodeError(d.Err())
	}
	f, err := d.Frame(0, true)
	if err != nil {
		return nil, err
	}
	return webimage.Thumbnail(f.Image, o.DecodeThumbnailPixelSize, o.DecodePreserveAspectRatio), nil
}

func (s *Session) AnimatedImageData() []byte {
	d, err := s.check(true)
	if err != nil {
		return nil
	}
	return d.Data()
}

func (s *Session) AnimatedImageFrameCount() int {
	d, err := s.check(true)
	if err != nil {
		return 0
	}
	return d.FrameCount()
}

func (s *Session) AnimatedImageLoopCount() int {
	d, err := s.check(true)
	if err != nil {
		return 0
	}
	return d.LoopCount()
}

func (s *Session) AnimatedImageFrameAt(index int) (image.Image, error) {
	d, err := s.check(true)
	if err != nil {
		return nil, err
	}
	f, err := d.Frame(index, true)
	if err != nil {
		return nil, err
	}
	return webimage.Thumbnail(f.Image, s.opts.DecodeThumbnailPixelSize, s.opts.DecodePreserveAspectRatio), nil
}

func (s *Session) AnimatedImageDurationAt(index int) (time.Duration, error) {
	d, err := s.check(true)
	if err != nil {
		return 0, err
	}
	return d.FrameDuration(index)
}

// Close ends the session.  Closing a closed session has no effect.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.decoder = nil
	return nil
}
