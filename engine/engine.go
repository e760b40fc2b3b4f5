// Package engine turns pooled buffers into displayable frames and hands
// them to a FrameSink.
//
// Engine implements the CPU-mapped path: buffers are plain byte slices and
// every presented frame is a copy, so the buffer can go back to the pool as
// soon as the frame is made.
package engine

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/mengelbart/vpresent/media"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	ErrInvalidGeometry   = errors.New("invalid frame geometry")
	ErrNoBuffer          = errors.New("sample has no buffer")
)

// FrameSink displays or stores frames.
type FrameSink interface {
	Supports(media.PixelFormat) bool
	WriteFrame(*media.VideoFrame) error
}

type Option func(*Engine) error

// WithRefreshRate sets the display refresh rate in Hz used to limit the
// playback rate.
func WithRefreshRate(hz int) Option {
	return func(e *Engine) error {
		e.refreshRate = hz
		return nil
	}
}

// WithFormats restricts the pixel formats the engine accepts.
func WithFormats(formats ...media.PixelFormat) Option {
	return func(e *Engine) error {
		e.formats = formats
		return nil
	}
}

type Engine struct {
	sink        FrameSink
	refreshRate int
	formats     []media.PixelFormat

	lock   sync.Mutex
	format *media.Format
}

func New(sink FrameSink, opts ...Option) (*Engine, error) {
	e := &Engine{
		sink: sink,
		lock: sync.Mutex{},
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) CheckFormat(f media.Format) error {
	if len(e.formats) > 0 && !slices.Contains(e.formats, f.Pixel) {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, f.Pixel)
	}
	if !e.sink.Supports(f.Pixel) {
		return fmt.Errorf("%w: %v not supported by sink", ErrUnsupportedFormat, f.Pixel)
	}
	return nil
}

// CreateBuffers allocates count buffers for frames of format f and makes f
// the current format.
func (e *Engine) CreateBuffers(f media.Format, count int) ([]*media.Buffer, error) {
	size := f.BufferSize()
	if size == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, f)
	}
	if count <= 0 {
		return nil, fmt.Errorf("invalid buffer count: %v", count)
	}
	buffers := make([]*media.Buffer, count)
	for i := range buffers {
		buffers[i] = &media.Buffer{
			ID:     i,
			Format: f,
			Data:   make([]byte, size),
		}
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	e.format = &f
	return buffers, nil
}

// MakeFrame copies the sample's buffer into a new frame.
func (e *Engine) MakeFrame(s *media.Sample) (*media.VideoFrame, error) {
	if s.Buffer == nil {
		return nil, ErrNoBuffer
	}
	data := make([]byte, len(s.Buffer.Data))
	copy(data, s.Buffer.Data)

	frame := &media.VideoFrame{
		Format:  s.Buffer.Format,
		Data:    data,
		Texture: s.Buffer.Texture,
		HasTime: s.HasTime,
	}
	if s.HasTime {
		frame.StartTime = s.Time
		frame.EndTime = s.End()
	}
	return frame, nil
}

// Present writes frame to the sink. A nil frame writes a black frame of the
// current format, or nothing if no format is set.
func (e *Engine) Present(frame *media.VideoFrame) error {
	if frame == nil {
		e.lock.Lock()
		format := e.format
		e.lock.Unlock()
		if format == nil {
			return nil
		}
		frame = media.NewBlackFrame(*format)
	}
	return e.sink.WriteFrame(frame)
}

func (e *Engine) ReleaseResources() {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.format = nil
}

func (e *Engine) RefreshRate() int {
	return e.refreshRate
}

// Format returns the format buffers were last created for.
func (e *Engine) Format() (media.Format, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.format == nil {
		return media.Format{}, false
	}
	return *e.format, true
}
