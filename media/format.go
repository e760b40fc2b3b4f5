package media

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidAperture = errors.New("aperture exceeds frame size")

// DefaultFrameRate is used when a format does not carry a frame rate.
var DefaultFrameRate = Ratio{Num: 30, Den: 1}

type PixelFormat int

const (
	Invalid PixelFormat = iota
	I420
	NV12
	RGBA
	BGRA
	XRGB
	ARGB
	XBGR
	ABGR
)

func (p PixelFormat) String() string {
	switch p {
	case I420:
		return "I420"
	case NV12:
		return "NV12"
	case RGBA:
		return "RGBA"
	case BGRA:
		return "BGRA"
	case XRGB:
		return "XRGB"
	case ARGB:
		return "ARGB"
	case XBGR:
		return "XBGR"
	case ABGR:
		return "ABGR"
	}
	return "invalid"
}

func FormatFromString(s string) (PixelFormat, error) {
	for p := I420; p <= ABGR; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return Invalid, fmt.Errorf("unknown pixel format: %s", s)
}

// IsRGB reports whether p is a packed 32 bit RGB layout.
func (p PixelFormat) IsRGB() bool {
	return p >= RGBA && p <= ABGR
}

// FrameSize returns the number of bytes of one tightly packed frame.
func (p PixelFormat) FrameSize(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	switch p {
	case I420, NV12:
		cw, ch := (width+1)/2, (height+1)/2
		return width*height + 2*cw*ch
	case RGBA, BGRA, XRGB, ARGB, XBGR, ABGR:
		return width * height * 4
	}
	return 0
}

type Ratio struct {
	Num int
	Den int
}

func (r Ratio) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// Interval returns the duration of one frame at rate r, or zero if r is
// not valid.
func (r Ratio) Interval() time.Duration {
	if !r.Valid() {
		return 0
	}
	return time.Duration(int64(time.Second) * int64(r.Den) / int64(r.Num))
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Within reports whether r lies inside a frame of the given size.
func (r Rect) Within(width, height int) bool {
	return r.X >= 0 && r.Y >= 0 && r.X+r.Width <= width && r.Y+r.Height <= height
}

// Format describes an uncompressed video output type negotiated between the
// mixer and the presenter.
type Format struct {
	Pixel     PixelFormat
	Width     int
	Height    int
	FrameRate Ratio

	Compressed bool
	Interlaced bool

	PanScanEnabled bool
	PanScan        *Rect
	Geometric      *Rect
	MinimumDisplay *Rect
}

func (f Format) String() string {
	return fmt.Sprintf("%v %dx%d@%v", f.Pixel, f.Width, f.Height, f.FrameRate)
}

// Equal compares two formats including their apertures. Nil formats are
// equal only to each other.
func (f *Format) Equal(o *Format) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.Pixel == o.Pixel &&
		f.Width == o.Width &&
		f.Height == o.Height &&
		f.FrameRate == o.FrameRate &&
		f.Compressed == o.Compressed &&
		f.Interlaced == o.Interlaced &&
		f.PanScanEnabled == o.PanScanEnabled &&
		equalRect(f.PanScan, o.PanScan) &&
		equalRect(f.Geometric, o.Geometric) &&
		equalRect(f.MinimumDisplay, o.MinimumDisplay)
}

func equalRect(a, b *Rect) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Validate checks the apertures that are set against the frame size.
func (f Format) Validate() error {
	for _, a := range []*Rect{f.PanScan, f.Geometric, f.MinimumDisplay} {
		if a != nil && !a.Within(f.Width, f.Height) {
			return fmt.Errorf("%w: %+v in %dx%d", ErrInvalidAperture, *a, f.Width, f.Height)
		}
	}
	return nil
}

func (f Format) BufferSize() int {
	return f.Pixel.FrameSize(f.Width, f.Height)
}

// FrameInterval returns the frame duration, using DefaultFrameRate if the
// format has no valid frame rate.
func (f Format) FrameInterval() time.Duration {
	if f.FrameRate.Valid() {
		return f.FrameRate.Interval()
	}
	return DefaultFrameRate.Interval()
}
