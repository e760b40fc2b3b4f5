package scheduler

import (
	"time"

	"github.com/mengelbart/vpresent/media"
	"github.com/pion/logging"
)

type Option func(*Scheduler) error

func WithLoggerFactory(lf logging.LoggerFactory) Option {
	return func(s *Scheduler) error {
		s.log = lf.NewLogger("scheduler")
		return nil
	}
}

// WithErrorHandler sets the callback that receives presentation failures.
// It runs on the goroutine that presented the sample.
func WithErrorHandler(f func(*media.Sample, error)) Option {
	return func(s *Scheduler) error {
		s.onError = f
		return nil
	}
}

// WithDropHandler sets the callback for samples discarded as late. It is
// called before the sample is released.
func WithDropHandler(f func(*media.Sample)) Option {
	return func(s *Scheduler) error {
		s.onDrop = f
		return nil
	}
}

func WithStartTimeout(d time.Duration) Option {
	return func(s *Scheduler) error {
		s.startTimeout = d
		return nil
	}
}

func WithFlushTimeout(d time.Duration) Option {
	return func(s *Scheduler) error {
		s.flushTimeout = d
		return nil
	}
}
