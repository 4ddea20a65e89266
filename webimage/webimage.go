// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

// Package webimage defines the image and coder contracts used by the image
// loader: image formats, the coder interfaces that decode and encode them,
// animated images, and the registry of available coders.
package webimage

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned when no coder handles an image format.
	ErrUnsupportedFormat = errors.New("webimage: unsupported image format")

	// ErrUnsupported is returned when a coder is asked for an operation it
	// does not provide, such as reading animation frames from an
	// incremental decoder.
	ErrUnsupported = fmt.Errorf("webimage: %w", errors.ErrUnsupported)
)

// Format is an image encoding format.
type Format int

const (
	FormatUndefined Format = iota
	FormatJPEG
	FormatPNG
	FormatGIF
	FormatTIFF
	FormatWebP
	FormatHEIC
	FormatHEIF
	FormatPDF
	FormatSVG
	FormatBMP
)

var formats = []struct {
	format Format
	name   string
	mime   string
}{
	{FormatUndefined, "", ""},
	{FormatJPEG, "jpeg", "image/jpeg"},
	{FormatPNG, "png", "image/png"},
	{FormatGIF, "gif", "image/gif"},
	{FormatTIFF, "tiff", "image/tiff"},
	{FormatWebP, "webp", "image/webp"},
	{FormatHEIC, "heic", "image/heic"},
	{FormatHEIF, "heif", "image/heif"},
	{FormatPDF, "pdf", "application/pdf"},
	{FormatSVG, "svg", "image/svg+xml"},
	{FormatBMP, "bmp", "image/bmp"},
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formats) {
		return ""
	}
	return formats[f].name
}

// MIMEType returns the media type of images in format f.
func (f Format) MIMEType() string {
	if f < 0 || int(f) >= len(formats) {
		return ""
	}
	return formats[f].mime
}

// ParseFormat returns the format named s, accepting common file extensions
// as well.
func ParseFormat(s string) (Format, bool) {
	switch s = strings.ToLower(s); s {
	case "jpg":
		return FormatJPEG, true
	case "tif":
		return FormatTIFF, true
	case "":
		return FormatUndefined, false
	}
	for _, f := range formats {
		if f.name == s {
			return f.format, true
		}
	}
	return FormatUndefined, false
}

// DetectFormat reports the format of image data by its leading bytes.
func DetectFormat(data []byte) Format {
	if len(data) == 0 {
		return FormatUndefined
	}

	switch data[0] {
	case 0xff:
		return FormatJPEG
	case 0x89:
		return FormatPNG
	case 0x47:
		return FormatGIF
	case 0x49, 0x4d:
		return FormatTIFF
	case 0x42:
		if bytes.HasPrefix(data, []byte("BM")) {
			return FormatBMP
		}
	case 0x25:
		if bytes.HasPrefix(data, []byte("%PDF")) {
			return FormatPDF
		}
	case 0x52:
		if len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
			return FormatWebP
		}
	case 0x00:
		if len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")) {
			switch string(data[8:12]) {
			case "heic", "heix", "hevc", "hevx":
				return FormatHEIC
			case "mif1", "msf1":
				return FormatHEIF
			}
		}
	case 0x3c:
		// SVG documents may start with an XML prolog, so look near the end
		// for the closing tag.
		tail := data
		if len(tail) > 100 {
			tail = tail[len(tail)-100:]
		}
		if bytes.Contains(tail, []byte("</svg>")) {
			return FormatSVG
		}
	}
	return FormatUndefined
}
