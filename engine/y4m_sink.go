package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mengelbart/vpresent/media"
)

var ErrFormatMismatch = errors.New("frame format differs from stream header")

// Y4MSink writes I420 frames as a YUV4MPEG2 stream.
type Y4MSink struct {
	lock          sync.Mutex
	w             io.WriteCloser
	headerWritten bool
	width         int
	height        int
}

func NewY4MSink(w io.WriteCloser) *Y4MSink {
	return &Y4MSink{
		w: w,
	}
}

// NewY4MFileSink creates the file at path and writes the stream to it.
func NewY4MFileSink(path string) (*Y4MSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewY4MSink(file), nil
}

func (s *Y4MSink) Supports(p media.PixelFormat) bool {
	return p == media.I420
}

func (s *Y4MSink) WriteFrame(frame *media.VideoFrame) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	f := frame.Format
	if f.Pixel != media.I420 {
		return fmt.Errorf("y4m: %w: %v", ErrUnsupportedFormat, f.Pixel)
	}
	if !s.headerWritten {
		fps := f.FrameRate
		if !fps.Valid() {
			fps = media.DefaultFrameRate
		}
		// YUV4MPEG2 W<width> H<height> F<fps_num>:<fps_den> Ip A<aspect> C<colorspace>
		header := fmt.Sprintf("YUV4MPEG2 W%d H%d F%d:%d Ip A0:0 C420jpeg\n", f.Width, f.Height, fps.Num, fps.Den)
		if _, err := io.WriteString(s.w, header); err != nil {
			return err
		}
		s.headerWritten = true
		s.width, s.height = f.Width, f.Height
	}
	if f.Width != s.width || f.Height != s.height {
		return fmt.Errorf("y4m: %w: %dx%d, stream is %dx%d", ErrFormatMismatch, f.Width, f.Height, s.width, s.height)
	}

	if _, err := io.WriteString(s.w, "FRAME\n"); err != nil {
		return err
	}
	_, err := s.w.Write(frame.Data)
	return err
}

func (s *Y4MSink) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.w != nil {
		return s.w.Close()
	}
	return nil
}
