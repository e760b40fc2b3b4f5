package presenter

import (
	"errors"
	"sync"
	"time"

	"github.com/mengelbart/vpresent/clock"
	"github.com/mengelbart/vpresent/media"
)

var errUnsupportedFormat = errors.New("unsupported by engine")

type fakeMixer struct {
	lock      sync.Mutex
	formats   []media.Format
	rejects   map[int]bool
	committed *media.Format
	tested    []media.Format
	rotation  media.Rotation

	base     time.Duration
	interval time.Duration
	inputs   int
	next     int
	err      error
	buffers  []*media.Buffer
}

func newFakeMixer(formats ...media.Format) *fakeMixer {
	return &fakeMixer{
		formats:  formats,
		rejects:  map[int]bool{},
		interval: 33 * time.Millisecond,
	}
}

func (m *fakeMixer) OutputAvailableType(index int) (media.Format, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if index >= len(m.formats) {
		return media.Format{}, ErrNoMoreTypes
	}
	return m.formats[index], nil
}

func (m *fakeMixer) SetOutputType(f *media.Format, testOnly bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if f == nil {
		m.committed = nil
		return nil
	}
	if m.rejects[f.Width] {
		return errors.New("mixer rejects format")
	}
	if testOnly {
		m.tested = append(m.tested, *f)
		return nil
	}
	c := *f
	m.committed = &c
	return nil
}

func (m *fakeMixer) ProcessOutput(buf *media.Buffer) (*media.Sample, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.err != nil {
		err := m.err
		m.err = nil
		return nil, err
	}
	if m.committed == nil {
		return nil, ErrTypeNotSet
	}
	if m.next >= m.inputs {
		return nil, ErrNeedMoreInput
	}
	s := &media.Sample{
		Buffer:   buf,
		Time:     m.base + time.Duration(m.next)*m.interval,
		HasTime:  true,
		Duration: m.interval,
	}
	m.next++
	m.buffers = append(m.buffers, buf)
	return s, nil
}

func (m *fakeMixer) Rotation() media.Rotation {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.rotation
}

func (m *fakeMixer) addInput(n int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.inputs += n
}

func (m *fakeMixer) produced() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.next
}

func (m *fakeMixer) setError(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.err = err
}

func (m *fakeMixer) setFormats(formats ...media.Format) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.formats = formats
}

func (m *fakeMixer) receivedBuffers() []*media.Buffer {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]*media.Buffer{}, m.buffers...)
}

type shownFrame struct {
	frame *media.VideoFrame
	at    time.Duration
}

type fakeEngine struct {
	lock       sync.Mutex
	clk        clock.Clock
	accept     map[media.PixelFormat]bool
	refresh    int
	format     *media.Format
	batches    int
	batchOf    map[*media.Buffer]int
	shown      []shownFrame
	blacks     int
	releases   int
	presentErr error
}

func newFakeEngine(clk clock.Clock) *fakeEngine {
	return &fakeEngine{
		clk:     clk,
		accept:  map[media.PixelFormat]bool{media.XRGB: true, media.ARGB: true},
		batchOf: map[*media.Buffer]int{},
	}
}

func (e *fakeEngine) CheckFormat(f media.Format) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if !e.accept[f.Pixel] {
		return errUnsupportedFormat
	}
	return nil
}

func (e *fakeEngine) CreateBuffers(f media.Format, count int) ([]*media.Buffer, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.batches++
	e.format = &f
	res := make([]*media.Buffer, count)
	for i := range res {
		res[i] = &media.Buffer{ID: i, Format: f, Data: make([]byte, f.BufferSize())}
		e.batchOf[res[i]] = e.batches
	}
	return res, nil
}

func (e *fakeEngine) MakeFrame(s *media.Sample) (*media.VideoFrame, error) {
	return &media.VideoFrame{
		Format:    s.Buffer.Format,
		HasTime:   s.HasTime,
		StartTime: s.Time,
		EndTime:   s.End(),
	}, nil
}

func (e *fakeEngine) Present(f *media.VideoFrame) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if f == nil {
		e.blacks++
		return nil
	}
	var at time.Duration
	if e.clk != nil {
		at, _ = e.clk.CorrelatedTime()
	}
	e.shown = append(e.shown, shownFrame{frame: f, at: at})
	return e.presentErr
}

func (e *fakeEngine) ReleaseResources() {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.releases++
	e.format = nil
}

func (e *fakeEngine) RefreshRate() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.refresh
}

func (e *fakeEngine) frames() []shownFrame {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]shownFrame{}, e.shown...)
}

func (e *fakeEngine) blackFrames() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.blacks
}

func (e *fakeEngine) batch(b *media.Buffer) int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.batchOf[b]
}

type eventLog struct {
	lock   sync.Mutex
	events []Event
}

func (l *eventLog) ofType(t EventType) []Event {
	l.lock.Lock()
	defer l.lock.Unlock()
	res := []Event{}
	for _, e := range l.events {
		if e.Type == t {
			res = append(res, e)
		}
	}
	return res
}
