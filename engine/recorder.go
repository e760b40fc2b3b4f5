package engine

import (
	"log/slog"
	"sync"

	"github.com/mengelbart/vpresent/media"
)

// Recorder is an in-memory FrameSink. It keeps every frame it receives.
type Recorder struct {
	lock    sync.Mutex
	formats map[media.PixelFormat]bool
	frames  []*media.VideoFrame
	limit   int
}

// NewRecorder returns a recorder accepting the given formats, or every
// known format if none are given.
func NewRecorder(formats ...media.PixelFormat) *Recorder {
	if len(formats) == 0 {
		for p := media.I420; p <= media.ABGR; p++ {
			formats = append(formats, p)
		}
	}
	r := &Recorder{
		lock:    sync.Mutex{},
		formats: map[media.PixelFormat]bool{},
		frames:  []*media.VideoFrame{},
	}
	for _, p := range formats {
		r.formats[p] = true
	}
	return r
}

// SetLimit bounds the number of kept frames. Older frames are dropped
// first. Zero keeps all frames.
func (r *Recorder) SetLimit(n int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.limit = n
}

func (r *Recorder) Supports(p media.PixelFormat) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.formats[p]
}

func (r *Recorder) WriteFrame(frame *media.VideoFrame) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	slog.Debug("recorded frame", "start-time", frame.StartTime, "has-time", frame.HasTime, "format", frame.Format)
	r.frames = append(r.frames, frame)
	if r.limit > 0 && len(r.frames) > r.limit {
		r.frames = r.frames[len(r.frames)-r.limit:]
	}
	return nil
}

func (r *Recorder) Frames() []*media.VideoFrame {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]*media.VideoFrame{}, r.frames...)
}

func (r *Recorder) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.frames)
}
