package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mengelbart/vpresent/media"
	"github.com/mengelbart/vpresent/presenter"
)

const barWidth = 8

var ErrUnsupportedType = errors.New("output type not supported by mixer")

type PatternOption func(*Pattern) error

func PatternSize(width, height int) PatternOption {
	return func(p *Pattern) error {
		if width <= 0 || height <= 0 {
			return fmt.Errorf("invalid pattern size %dx%d", width, height)
		}
		p.width, p.height = width, height
		return nil
	}
}

func PatternFrameRate(fps media.Ratio) PatternOption {
	return func(p *Pattern) error {
		if !fps.Valid() {
			return fmt.Errorf("invalid frame rate: %v", fps)
		}
		p.fps = fps
		return nil
	}
}

// PatternFormats sets the output pixel formats in order of preference.
func PatternFormats(formats ...media.PixelFormat) PatternOption {
	return func(p *Pattern) error {
		if len(formats) == 0 {
			return errors.New("no pixel formats")
		}
		p.formats = formats
		return nil
	}
}

// PatternFrameCount limits the stream to n frames. Zero means endless.
func PatternFrameCount(n int) PatternOption {
	return func(p *Pattern) error {
		p.frameCount = n
		return nil
	}
}

func PatternLookahead(n int) PatternOption {
	return func(p *Pattern) error {
		p.lookahead = n
		return nil
	}
}

func PatternRotation(r media.Rotation) PatternOption {
	return func(p *Pattern) error {
		p.rotation = r
		return nil
	}
}

// Pattern is a synthetic mixer drawing a vertical bar that moves one step
// per frame over a luma gradient.
type Pattern struct {
	width      int
	height     int
	fps        media.Ratio
	formats    []media.PixelFormat
	frameCount int
	lookahead  int
	rotation   media.Rotation

	feed *Feed[int]

	lock    sync.Mutex
	output  *media.Format
	next    int
	pending *[2]int
}

func NewPattern(opts ...PatternOption) (*Pattern, error) {
	p := &Pattern{
		width:     320,
		height:    240,
		fps:       media.DefaultFrameRate,
		formats:   []media.PixelFormat{media.I420, media.XRGB},
		lookahead: defaultLookahead,
		lock:      sync.Mutex{},
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.feed = NewFeed[int](p.fps.Interval(), p.lookahead)
	return p, nil
}

func (p *Pattern) OutputAvailableType(index int) (media.Format, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if index < 0 || index >= len(p.formats) {
		return media.Format{}, presenter.ErrNoMoreTypes
	}
	return media.Format{
		Pixel:     p.formats[index],
		Width:     p.width,
		Height:    p.height,
		FrameRate: p.fps,
	}, nil
}

func (p *Pattern) SetOutputType(f *media.Format, testOnly bool) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if f == nil {
		if !testOnly {
			p.output = nil
		}
		return nil
	}
	if !slices.Contains(p.formats, f.Pixel) || f.Width != p.width || f.Height != p.height {
		return fmt.Errorf("%w: %v", ErrUnsupportedType, f)
	}
	if !testOnly {
		out := *f
		p.output = &out
	}
	return nil
}

func (p *Pattern) ProcessOutput(buf *media.Buffer) (*media.Sample, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.pending != nil {
		p.width, p.height = p.pending[0], p.pending[1]
		p.pending = nil
		p.output = nil
		return nil, presenter.ErrFormatChanged
	}
	if p.output == nil {
		return nil, presenter.ErrTypeNotSet
	}
	n, ok := p.feed.Pop()
	if !ok {
		return nil, presenter.ErrNeedMoreInput
	}
	if buf.Format.Width != p.width || buf.Format.Height != p.height {
		return nil, fmt.Errorf("buffer format %v does not match output %dx%d", buf.Format, p.width, p.height)
	}
	drawFrame(buf, n)

	interval := p.fps.Interval()
	return &media.Sample{
		Buffer:   buf,
		Time:     time.Duration(n) * interval,
		HasTime:  true,
		Duration: interval,
	}, nil
}

func (p *Pattern) Rotation() media.Rotation {
	return p.rotation
}

// ChangeFormat switches the frame size. The next ProcessOutput reports
// presenter.ErrFormatChanged.
func (p *Pattern) ChangeFormat(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid pattern size %dx%d", width, height)
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	p.pending = &[2]int{width, height}
	return nil
}

// Seek restarts the pattern at the frame shown at offset.
func (p *Pattern) Seek(offset time.Duration) error {
	if offset < 0 {
		return fmt.Errorf("negative seek offset: %v", offset)
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	p.feed.Flush()
	p.next = int(offset / p.fps.Interval())
	slog.Debug("pattern seek", "offset", offset, "frame", p.next)
	return nil
}

func (p *Pattern) SetRate(r float64) {
	p.feed.SetRate(r)
}

// Run feeds frames until the frame count is reached or ctx is done.
func (p *Pattern) Run(ctx context.Context, notify NotifyFunc) error {
	return p.feed.Run(ctx, p.nextFrame, notify)
}

func (p *Pattern) nextFrame() (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.frameCount > 0 && p.next >= p.frameCount {
		return 0, io.EOF
	}
	n := p.next
	p.next++
	return n, nil
}

func drawFrame(buf *media.Buffer, n int) {
	f := buf.Format
	bar := (n * barWidth) % max(f.Width, 1)
	luma := func(x, y int) byte {
		if x >= bar && x < bar+barWidth {
			return 235
		}
		return byte(16 + y*200/max(f.Height, 1))
	}
	switch f.Pixel {
	case media.I420, media.NV12:
		for y := range f.Height {
			row := buf.Data[y*f.Width : (y+1)*f.Width]
			for x := range row {
				row[x] = luma(x, y)
			}
		}
		chroma := buf.Data[f.Width*f.Height:]
		for i := range chroma {
			chroma[i] = 128
		}
	default:
		for y := range f.Height {
			for x := range f.Width {
				v := luma(x, y)
				i := (y*f.Width + x) * 4
				buf.Data[i], buf.Data[i+1], buf.Data[i+2], buf.Data[i+3] = v, v, v, 0xff
			}
		}
	}
}
