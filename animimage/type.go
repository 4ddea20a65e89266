// Copyright 2024 The imagebridge authors.
// SPDX-License-Identifier: Apache-2.0

package animimage

import "bytes"

// Type identifies the encoding of image data.
type Type int

const (
	TypeUnknown Type = iota
	TypeJPEG
	TypeJPEG2000
	TypeTIFF
	TypeBMP
	TypeICO
	TypeICNS
	TypeGIF
	TypePNG
	TypeWebP
	TypeOther
)

var typeNames = map[Type]string{
	TypeUnknown:  "unknown",
	TypeJPEG:     "jpeg",
	TypeJPEG2000: "jpeg2000",
	TypeTIFF:     "tiff",
	TypeBMP:      "bmp",
	TypeICO:      "ico",
	TypeICNS:     "icns",
	TypeGIF:      "gif",
	TypePNG:      "png",
	TypeWebP:     "webp",
	TypeOther:    "other",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return typeNames[TypeUnknown]
}

// DetectType reports the image type of data by looking at its leading magic
// bytes.  Data too short to identify reports TypeUnknown.
func DetectType(data []byte) Type {
	if len(data) < 16 {
		return TypeUnknown
	}

	switch {
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return TypeTIFF
	case bytes.HasPrefix(data, []byte{0x00, 0x00, 0x01, 0x00}):
		return TypeICO
	case bytes.HasPrefix(data, []byte("icns")):
		return TypeICNS
	case bytes.HasPrefix(data, []byte("GIF8")):
		return TypeGIF
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return TypePNG
	case bytes.HasPrefix(data, []byte("\x00\x00\x00\x0cjP  ")):
		return TypeJPEG2000
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return TypeWebP
	case bytes.HasPrefix(data, []byte("BM")):
		return TypeBMP
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return TypeJPEG
	}
	return TypeOther
}

// decodable reports whether frames of type t can be decoded.
func (t Type) decodable() bool {
	switch t {
	case TypeJPEG, TypeTIFF, TypeBMP, TypeGIF, TypePNG, TypeWebP:
		return true
	}
	return false
}

// CanDecode reports whether images of type t can be decoded.
func CanDecode(t Type) bool { return t.decodable() }

// CanEncode reports whether images of type t can be encoded.
func CanEncode(t Type) bool {
	switch t {
	case TypeJPEG, TypeTIFF, TypeBMP, TypeGIF, TypePNG:
		return true
	}
	return false
}
