package presenter

import (
	"errors"

	"github.com/mengelbart/vpresent/media"
	"github.com/mengelbart/vpresent/scheduler"
	"github.com/pion/logging"
)

const (
	defaultBufferCount    = 3
	defaultEventQueueSize = 64
)

type Option func(*Presenter) error

// WithBufferCount sets the number of pooled buffers allocated per format.
func WithBufferCount(n int) Option {
	return func(p *Presenter) error {
		if n <= 0 {
			return errors.New("buffer count must be positive")
		}
		p.bufferCount = n
		return nil
	}
}

func WithLoggerFactory(lf logging.LoggerFactory) Option {
	return func(p *Presenter) error {
		p.loggerFactory = lf
		return nil
	}
}

func WithHost(h Host) Option {
	return func(p *Presenter) error {
		p.host = h
		return nil
	}
}

func WithEventQueueSize(n int) Option {
	return func(p *Presenter) error {
		p.eventQueueSize = n
		return nil
	}
}

func WithCropRect(r media.Rect) Option {
	return func(p *Presenter) error {
		p.cropRect = &r
		return nil
	}
}

func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(p *Presenter) error {
		p.schedulerOptions = append(p.schedulerOptions, opts...)
		return nil
	}
}
