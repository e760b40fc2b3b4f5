package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameSize(t *testing.T) {
	assert.Equal(t, 640*480*3/2, I420.FrameSize(640, 480))
	assert.Equal(t, 3*3+2*2*2, NV12.FrameSize(3, 3))
	assert.Equal(t, 16, BGRA.FrameSize(2, 2))
	assert.Equal(t, 0, Invalid.FrameSize(2, 2))
	assert.Equal(t, 0, I420.FrameSize(0, 2))
}

func TestFrameInterval(t *testing.T) {
	f := Format{FrameRate: Ratio{Num: 25, Den: 1}}
	assert.Equal(t, 40*time.Millisecond, f.FrameInterval())

	f.FrameRate = Ratio{}
	assert.Equal(t, DefaultFrameRate.Interval(), f.FrameInterval())
}

func TestFormatEqual(t *testing.T) {
	a := &Format{Pixel: I420, Width: 4, Height: 4, Geometric: &Rect{Width: 4, Height: 4}}
	b := &Format{Pixel: I420, Width: 4, Height: 4, Geometric: &Rect{Width: 4, Height: 4}}
	assert.True(t, a.Equal(b))

	b.Geometric = &Rect{Width: 2, Height: 2}
	assert.False(t, a.Equal(b))

	var n *Format
	assert.True(t, n.Equal(nil))
	assert.False(t, n.Equal(a))
}

func TestFormatValidate(t *testing.T) {
	f := Format{Pixel: RGBA, Width: 10, Height: 10, PanScan: &Rect{X: 2, Y: 2, Width: 8, Height: 8}}
	assert.NoError(t, f.Validate())

	f.MinimumDisplay = &Rect{X: 5, Width: 6, Height: 1}
	assert.ErrorIs(t, f.Validate(), ErrInvalidAperture)
}

func TestPixelFormatString(t *testing.T) {
	p, err := FormatFromString("NV12")
	assert.NoError(t, err)
	assert.Equal(t, NV12, p)

	_, err = FormatFromString("YUY2")
	assert.Error(t, err)
}

func TestNewBlackFrame(t *testing.T) {
	f := NewBlackFrame(Format{Pixel: I420, Width: 2, Height: 2})
	assert.Equal(t, []byte{0, 0, 0, 0, 128, 128}, f.Data)

	f = NewBlackFrame(Format{Pixel: ARGB, Width: 1, Height: 1})
	assert.Equal(t, []byte{0xff, 0, 0, 0}, f.Data)
}
