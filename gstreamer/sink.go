// Package gstreamer displays presented frames through a GStreamer
// pipeline of the form appsrc ! videoconvert ! <sink>.
package gstreamer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/mengelbart/vpresent/media"
)

const eosTimeout = 5 * time.Second

var (
	ErrClosed           = errors.New("sink closed")
	ErrUnsupportedPixel = errors.New("pixel format has no gstreamer caps")
)

type SinkType uint

const (
	Autovideosink SinkType = iota
	Filesink
	Fakesink
)

func SinkTypeFromString(s string) (SinkType, error) {
	switch s {
	case "auto", "autovideosink":
		return Autovideosink, nil
	case "file", "filesink":
		return Filesink, nil
	case "fake", "fakesink":
		return Fakesink, nil
	}
	return 0, fmt.Errorf("unknown sink type: %v", s)
}

type SinkOption func(*Sink) error

func SinkTypeOption(sinkType SinkType) SinkOption {
	return func(s *Sink) error {
		s.sinkType = sinkType
		return nil
	}
}

// SinkLocation sets the output file of a Filesink.
func SinkLocation(location string) SinkOption {
	return func(s *Sink) error {
		s.location = location
		return nil
	}
}

// Sink pushes frames into a GStreamer pipeline. The pipeline is built on the
// first frame and rebuilt whenever the frame format changes.
type Sink struct {
	sinkType SinkType
	location string

	lock     sync.Mutex
	closed   bool
	caps     string
	pipeline *gst.Pipeline
	src      *app.Source
	mainloop *glib.MainLoop
	errCh    <-chan error
}

func NewSink(opts ...SinkOption) (*Sink, error) {
	s := &Sink{
		sinkType: Autovideosink,
		location: "out.y4m",
		lock:     sync.Mutex{},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	initGStreamer()
	return s, nil
}

func (s *Sink) Supports(p media.PixelFormat) bool {
	if s.sinkType == Filesink {
		// y4menc only takes planar YUV
		return p == media.I420
	}
	_, ok := capsFormat(p)
	return ok
}

func (s *Sink) WriteFrame(frame *media.VideoFrame) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return ErrClosed
	}
	select {
	case err, ok := <-s.errCh:
		if ok && err != nil {
			return err
		}
	default:
	}

	caps, err := capsString(frame.Format)
	if err != nil {
		return err
	}
	if s.pipeline == nil || caps != s.caps {
		if s.pipeline != nil {
			slog.Info("gstreamer caps changed, rebuilding pipeline", "caps", caps)
			s.teardown()
		}
		if err = s.build(caps); err != nil {
			return err
		}
	}

	buffer := gst.NewBufferFromBytes(frame.Data)
	if ret := s.src.PushBuffer(buffer); ret != gst.FlowOK {
		return fmt.Errorf("appsrc push failed: %v", ret)
	}
	return nil
}

func (s *Sink) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.pipeline != nil {
		s.teardown()
	}
	return nil
}

func (s *Sink) build(caps string) error {
	pipeline, err := gst.NewPipeline("vpresent")
	if err != nil {
		return err
	}
	src, err := app.NewAppSrc()
	if err != nil {
		return err
	}
	src.SetCaps(gst.NewCapsFromString(caps))
	if err = SetProperties(src.Element, map[string]any{
		"is-live":      true,
		"do-timestamp": true,
		"format":       gst.FormatTime,
	}); err != nil {
		return err
	}
	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return err
	}
	elements := []*gst.Element{src.Element, convert}

	switch s.sinkType {
	case Autovideosink:
		avs, err := gst.NewElement("autovideosink")
		if err != nil {
			return err
		}
		elements = append(elements, avs)
	case Fakesink:
		fs, err := gst.NewElementWithProperties("fakesink", map[string]any{
			"sync": false,
		})
		if err != nil {
			return err
		}
		elements = append(elements, fs)
	case Filesink:
		enc, err := gst.NewElement("y4menc")
		if err != nil {
			return err
		}
		fs, err := gst.NewElementWithProperties("filesink", map[string]any{
			"location": s.location,
		})
		if err != nil {
			return err
		}
		elements = append(elements, enc, fs)
	default:
		return fmt.Errorf("unknown sink type: %v", s.sinkType)
	}

	if err = pipeline.AddMany(elements...); err != nil {
		return err
	}
	if err = gst.ElementLinkMany(elements...); err != nil {
		return err
	}
	convert.GetStaticPad("src").AddProbe(gst.PadProbeTypeBuffer, getFrameProbe("videoconvert src"))

	mainloop, errCh, err := runPipeline(pipeline)
	if err != nil {
		return err
	}
	s.caps = caps
	s.pipeline = pipeline
	s.src = src
	s.mainloop = mainloop
	s.errCh = errCh
	return nil
}

// teardown sends EOS and waits for the pipeline to drain.
func (s *Sink) teardown() {
	s.src.EndStream()
	select {
	case <-s.errCh:
	case <-time.After(eosTimeout):
		slog.Warn("gstreamer pipeline did not reach EOS, stopping")
		s.mainloop.Quit()
	}
	if err := s.pipeline.BlockSetState(gst.StateNull); err != nil {
		slog.Warn("failed to stop gstreamer pipeline", "error", err)
	}
	s.pipeline = nil
	s.src = nil
	s.mainloop = nil
	s.errCh = nil
	s.caps = ""
}

func capsFormat(p media.PixelFormat) (string, bool) {
	switch p {
	case media.I420:
		return "I420", true
	case media.NV12:
		return "NV12", true
	case media.RGBA:
		return "RGBA", true
	case media.BGRA:
		return "BGRA", true
	case media.XRGB:
		return "xRGB", true
	case media.ARGB:
		return "ARGB", true
	case media.XBGR:
		return "xBGR", true
	case media.ABGR:
		return "ABGR", true
	}
	return "", false
}

func capsString(f media.Format) (string, error) {
	format, ok := capsFormat(f.Pixel)
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedPixel, f.Pixel)
	}
	fps := f.FrameRate
	if !fps.Valid() {
		fps = media.DefaultFrameRate
	}
	return fmt.Sprintf("video/x-raw,format=%s,width=%d,height=%d,framerate=%d/%d",
		format, f.Width, f.Height, fps.Num, fps.Den), nil
}
