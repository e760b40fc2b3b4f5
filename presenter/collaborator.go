package presenter

import "github.com/mengelbart/vpresent/media"

// Mixer produces decoded samples into buffers handed out by the presenter.
//
// The presenter calls a Mixer while holding its own lock. Implementations
// must not call back into the presenter (ProcessMessage, Init, Shutdown)
// from inside these methods; notify it from another goroutine instead.
type Mixer interface {
	// OutputAvailableType returns the candidate output format at index, or
	// ErrNoMoreTypes when index is past the last candidate.
	OutputAvailableType(index int) (media.Format, error)

	// SetOutputType commits f, or only checks whether f is acceptable if
	// testOnly is set. A nil format clears the output type.
	SetOutputType(f *media.Format, testOnly bool) error

	// ProcessOutput writes the next frame into buf. It returns
	// ErrNeedMoreInput, ErrFormatChanged or ErrTypeNotSet to signal the
	// corresponding conditions.
	ProcessOutput(buf *media.Buffer) (*media.Sample, error)
}

// Rotator is implemented by mixers whose input carries a display rotation.
type Rotator interface {
	Rotation() media.Rotation
}

// Engine allocates buffers and displays frames.
type Engine interface {
	CheckFormat(media.Format) error
	CreateBuffers(f media.Format, count int) ([]*media.Buffer, error)
	MakeFrame(*media.Sample) (*media.VideoFrame, error)
	// Present displays frame. A nil frame repaints the output black.
	Present(*media.VideoFrame) error
	ReleaseResources()
}

// RefreshRater is implemented by engines that know the display refresh rate
// in Hz.
type RefreshRater interface {
	RefreshRate() int
}

// Host runs presentation work on the thread that owns the display.
type Host interface {
	Post(func())
}

type inlineHost struct{}

func (inlineHost) Post(f func()) {
	f()
}
