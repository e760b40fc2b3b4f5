package media

import "time"

// Buffer is a reusable frame buffer handed out by a pool. Token is the pool
// generation the buffer was allocated for.
type Buffer struct {
	ID     int
	Token  uint32
	Format Format
	Data   []byte

	// Texture optionally carries a GPU resource handle backing the buffer.
	Texture any
}

// Sample is a decoded frame written into a pooled buffer.
type Sample struct {
	Buffer   *Buffer
	Time     time.Duration
	HasTime  bool
	Duration time.Duration
}

// End returns the time at which the sample expires.
func (s *Sample) End() time.Duration {
	return s.Time + s.Duration
}

type Rotation int

const (
	RotationNone Rotation = 0
	Rotation90   Rotation = 90
	Rotation180  Rotation = 180
	Rotation270  Rotation = 270
)

// VideoFrame is a displayable frame produced by a present engine.
type VideoFrame struct {
	Format    Format
	Data      []byte
	Texture   any
	HasTime   bool
	StartTime time.Duration
	EndTime   time.Duration
	Rotation  Rotation
}

// NewBlackFrame returns a black frame of format f.
func NewBlackFrame(f Format) *VideoFrame {
	data := make([]byte, f.BufferSize())
	switch f.Pixel {
	case I420, NV12:
		// zero luma, neutral chroma
		for i := f.Width * f.Height; i < len(data); i++ {
			data[i] = 128
		}
	case RGBA, BGRA, ARGB, ABGR:
		alpha := 3
		if f.Pixel == ARGB || f.Pixel == ABGR {
			alpha = 0
		}
		for i := alpha; i < len(data); i += 4 {
			data[i] = 0xff
		}
	}
	return &VideoFrame{
		Format: f,
		Data:   data,
	}
}
