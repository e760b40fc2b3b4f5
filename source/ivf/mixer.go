// Package ivf implements a mixer that plays VP8 and VP9 streams from IVF
// files.
package ivf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mengelbart/vpresent/media"
	"github.com/mengelbart/vpresent/presenter"
	"github.com/mengelbart/vpresent/source"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

// Image is a decoded frame in packed I420 layout.
type Image struct {
	Width  int
	Height int
	Data   []byte
}

type Decoder interface {
	Decode(frame []byte) (*Image, error)
	Close() error
}

type Option func(*Mixer) error

// WithDecoder replaces the libvpx decoder.
func WithDecoder(d Decoder) Option {
	return func(m *Mixer) error {
		m.decoder = d
		return nil
	}
}

func WithLookahead(n int) Option {
	return func(m *Mixer) error {
		m.lookahead = n
		return nil
	}
}

type decoded struct {
	img  *Image
	time time.Duration
}

// Mixer demuxes an IVF stream and decodes it ahead of presentation.
type Mixer struct {
	reader    *ivfreader.IVFReader
	header    *ivfreader.IVFFileHeader
	closer    io.Closer
	decoder   Decoder
	lookahead int
	fps       media.Ratio
	feed      *source.Feed[*decoded]

	lock   sync.Mutex
	width  int
	height int
	output *media.Format
	held   *decoded
}

func NewMixer(rc io.ReadCloser, opts ...Option) (*Mixer, error) {
	reader, header, err := ivfreader.NewWith(rc)
	if err != nil {
		return nil, err
	}
	m := &Mixer{
		reader: reader,
		header: header,
		closer: rc,
		fps: media.Ratio{
			Num: int(header.TimebaseDenominator),
			Den: int(header.TimebaseNumerator),
		},
		width:  int(header.Width),
		height: int(header.Height),
		lock:   sync.Mutex{},
	}
	if !m.fps.Valid() {
		m.fps = media.DefaultFrameRate
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.decoder == nil {
		if m.decoder, err = NewVPXDecoder(header.FourCC); err != nil {
			return nil, err
		}
	}
	m.feed = source.NewFeed[*decoded](m.fps.Interval(), m.lookahead)
	slog.Info("opened ivf stream", "fourcc", header.FourCC, "width", m.width, "height", m.height, "fps", m.fps)
	return m, nil
}

func (m *Mixer) OutputAvailableType(index int) (media.Format, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if index != 0 {
		return media.Format{}, presenter.ErrNoMoreTypes
	}
	return m.format(), nil
}

func (m *Mixer) SetOutputType(f *media.Format, testOnly bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if f == nil {
		if !testOnly {
			m.output = nil
		}
		return nil
	}
	if f.Pixel != media.I420 || f.Width != m.width || f.Height != m.height {
		return fmt.Errorf("%w: %v", source.ErrUnsupportedType, f)
	}
	if !testOnly {
		out := *f
		m.output = &out
	}
	return nil
}

func (m *Mixer) ProcessOutput(buf *media.Buffer) (*media.Sample, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.output == nil {
		return nil, presenter.ErrTypeNotSet
	}
	next := m.held
	m.held = nil
	if next == nil {
		var ok bool
		if next, ok = m.feed.Pop(); !ok {
			return nil, presenter.ErrNeedMoreInput
		}
	}
	if next.img.Width != m.width || next.img.Height != m.height {
		slog.Info("ivf frame size changed", "width", next.img.Width, "height", next.img.Height)
		m.width, m.height = next.img.Width, next.img.Height
		m.output = nil
		m.held = next
		return nil, presenter.ErrFormatChanged
	}
	if len(buf.Data) < len(next.img.Data) {
		return nil, fmt.Errorf("buffer too short: %v < %v", len(buf.Data), len(next.img.Data))
	}
	copy(buf.Data, next.img.Data)

	return &media.Sample{
		Buffer:   buf,
		Time:     next.time,
		HasTime:  true,
		Duration: m.fps.Interval(),
	}, nil
}

func (m *Mixer) SetRate(r float64) {
	m.feed.SetRate(r)
}

// Run demuxes and decodes frames until the end of the file or ctx is done.
func (m *Mixer) Run(ctx context.Context, notify source.NotifyFunc) error {
	return m.feed.Run(ctx, m.nextFrame, notify)
}

func (m *Mixer) Close() error {
	return errors.Join(m.decoder.Close(), m.closer.Close())
}

func (m *Mixer) nextFrame() (*decoded, error) {
	for {
		payload, header, err := m.reader.ParseNextFrame()
		if err != nil {
			return nil, err
		}
		img, err := m.decoder.Decode(payload)
		if errors.Is(err, ErrNoImage) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &decoded{
			img:  img,
			time: m.timestamp(header.Timestamp),
		}, nil
	}
}

// timestamp converts IVF timebase units to a duration.
func (m *Mixer) timestamp(ts uint64) time.Duration {
	num := uint64(m.header.TimebaseNumerator)
	den := uint64(m.header.TimebaseDenominator)
	if num == 0 || den == 0 {
		return time.Duration(ts) * m.fps.Interval()
	}
	return time.Duration(ts * num * uint64(time.Second) / den)
}

func (m *Mixer) format() media.Format {
	return media.Format{
		Pixel:     media.I420,
		Width:     m.width,
		Height:    m.height,
		FrameRate: m.fps,
	}
}
