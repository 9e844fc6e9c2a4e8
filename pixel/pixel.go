// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package pixel holds the CPU pixel buffers passed between the protocol
// server, the scene renderer and the host.
package pixel

import (
	"encoding/binary"
	"fmt"
	"image"
	"strings"
)

// Format is the memory layout of an Image.
// Names follow the little-endian DRM convention used by wl_shm:
// ARGB8888 is stored as B, G, R, A bytes.
type Format int

const (
	FormatInvalid Format = iota
	FormatARGB8888
	FormatXRGB8888
	FormatABGR8888
	FormatXBGR8888
	FormatXRGB2101010
	FormatRGB565
	FormatA8
	FormatA1
	FormatRGBAFloat
	FormatRGBFloat
)

var formatNames = map[Format]string{
	FormatInvalid:     "invalid",
	FormatARGB8888:    "argb8888",
	FormatXRGB8888:    "xrgb8888",
	FormatABGR8888:    "abgr8888",
	FormatXBGR8888:    "xbgr8888",
	FormatXRGB2101010: "xrgb2101010",
	FormatRGB565:      "rgb565",
	FormatA8:          "a8",
	FormatA1:          "a1",
	FormatRGBAFloat:   "rgba-float",
	FormatRGBFloat:    "rgb-float",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat resolves a format name as written in the config file.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range formatNames {
		if n == name && f != FormatInvalid {
			return f, nil
		}
	}
	return FormatInvalid, fmt.Errorf("unknown pixel format %q", name)
}

// BitsPerPixel returns 0 for FormatInvalid.
func (f Format) BitsPerPixel() int {
	switch f {
	case FormatARGB8888, FormatXRGB8888, FormatABGR8888, FormatXBGR8888, FormatXRGB2101010:
		return 32
	case FormatRGB565:
		return 16
	case FormatA8:
		return 8
	case FormatA1:
		return 1
	case FormatRGBAFloat:
		return 128
	case FormatRGBFloat:
		return 96
	}
	return 0
}

// HasAlpha reports whether the alpha channel carries data.
func (f Format) HasAlpha() bool {
	switch f {
	case FormatARGB8888, FormatABGR8888, FormatA8, FormatA1, FormatRGBAFloat:
		return true
	}
	return false
}

// Readable reports whether ReadPremul understands the layout.
func (f Format) Readable() bool {
	switch f {
	case FormatARGB8888, FormatXRGB8888, FormatABGR8888, FormatXBGR8888, FormatRGB565:
		return true
	}
	return false
}

// Writable reports whether WritePremul understands the layout.
func (f Format) Writable() bool {
	switch f {
	case FormatARGB8888, FormatXRGB8888, FormatABGR8888, FormatXBGR8888:
		return true
	}
	return false
}

// wl_shm format codes. The first two are protocol specific, everything else
// is the DRM fourcc.
const (
	ShmARGB8888    uint32 = 0
	ShmXRGB8888    uint32 = 1
	ShmABGR8888    uint32 = 0x34324241
	ShmXBGR8888    uint32 = 0x34324258
	ShmRGB565      uint32 = 0x36314752
	ShmXRGB2101010 uint32 = 0x30335258
)

var shmFormats = map[uint32]Format{
	ShmARGB8888:    FormatARGB8888,
	ShmXRGB8888:    FormatXRGB8888,
	ShmABGR8888:    FormatABGR8888,
	ShmXBGR8888:    FormatXBGR8888,
	ShmRGB565:      FormatRGB565,
	ShmXRGB2101010: FormatXRGB2101010,
}

// ShmFormats lists the wl_shm formats clients may allocate buffers in.
var ShmFormats = []uint32{ShmARGB8888, ShmXRGB8888, ShmABGR8888, ShmXBGR8888, ShmRGB565}

// FromShm maps a wl_shm code to a Format that can be read back.
func FromShm(code uint32) (Format, bool) {
	f, ok := shmFormats[code]
	if !ok || !f.Readable() {
		return FormatInvalid, false
	}
	return f, true
}

// Image is a tightly owned pixel buffer. Colour values of formats with
// alpha are premultiplied, as on the wire.
type Image struct {
	Format Format
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// NewImage allocates a zeroed image with a minimal stride.
func NewImage(format Format, width, height int) *Image {
	stride := (width*format.BitsPerPixel() + 7) / 8
	stride = (stride + 3) &^ 3
	return &Image{
		Format: format,
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// Bounds returns the image rectangle anchored at the origin.
func (m *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// Empty reports a zero sized image.
func (m *Image) Empty() bool {
	return m == nil || m.Width <= 0 || m.Height <= 0
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	if m == nil {
		return nil
	}
	c := *m
	c.Pix = make([]byte, len(m.Pix))
	copy(c.Pix, m.Pix)
	return &c
}

// ReadPremul returns the premultiplied colour at x, y.
func (m *Image) ReadPremul(x, y int) (r, g, b, a uint8) {
	switch m.Format {
	case FormatARGB8888, FormatXRGB8888, FormatABGR8888, FormatXBGR8888:
		i := y*m.Stride + x*4
		p := m.Pix[i : i+4 : i+4]
		if m.Format == FormatARGB8888 || m.Format == FormatXRGB8888 {
			b, g, r, a = p[0], p[1], p[2], p[3]
		} else {
			r, g, b, a = p[0], p[1], p[2], p[3]
		}
		if !m.Format.HasAlpha() {
			a = 0xff
		}
	case FormatRGB565:
		i := y*m.Stride + x*2
		v := binary.LittleEndian.Uint16(m.Pix[i:])
		r = uint8((v>>11)&0x1f) << 3
		g = uint8((v>>5)&0x3f) << 2
		b = uint8(v&0x1f) << 3
		r |= r >> 5
		g |= g >> 6
		b |= b >> 5
		a = 0xff
	}
	return
}

// WritePremul stores a premultiplied colour at x, y.
func (m *Image) WritePremul(x, y int, r, g, b, a uint8) {
	i := y*m.Stride + x*4
	p := m.Pix[i : i+4 : i+4]
	if !m.Format.HasAlpha() {
		a = 0xff
	}
	switch m.Format {
	case FormatARGB8888, FormatXRGB8888:
		p[0], p[1], p[2], p[3] = b, g, r, a
	case FormatABGR8888, FormatXBGR8888:
		p[0], p[1], p[2], p[3] = r, g, b, a
	}
}

// ToRGBA converts to a premultiplied image.RGBA.
func (m *Image) ToRGBA() *image.RGBA {
	out := image.NewRGBA(m.Bounds())
	if !m.Format.Readable() {
		return out
	}
	for y := 0; y < m.Height; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < m.Width; x++ {
			r, g, b, a := m.ReadPremul(x, y)
			row[x*4+0], row[x*4+1], row[x*4+2], row[x*4+3] = r, g, b, a
		}
	}
	return out
}

// ToNRGBA converts to a straight-alpha image.NRGBA, as cursor images are
// expected by most toolkits.
func (m *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(m.Bounds())
	if !m.Format.Readable() {
		return out
	}
	for y := 0; y < m.Height; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < m.Width; x++ {
			r, g, b, a := m.ReadPremul(x, y)
			if a != 0 && a != 0xff {
				r = unpremul(r, a)
				g = unpremul(g, a)
				b = unpremul(b, a)
			}
			row[x*4+0], row[x*4+1], row[x*4+2], row[x*4+3] = r, g, b, a
		}
	}
	return out
}

func unpremul(c, a uint8) uint8 {
	v := (uint32(c)*0xff + uint32(a)/2) / uint32(a)
	if v > 0xff {
		v = 0xff
	}
	return uint8(v)
}
