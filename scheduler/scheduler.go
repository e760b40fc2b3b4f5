// Package scheduler decides when a decoded sample is handed to the
// presentation callback.
//
// A Scheduler owns one worker goroutine. Samples are queued in arrival order
// and compared against the presentation clock each time the worker wakes
// up. A sample is presented once it is no more than a quarter of a frame
// interval early, and dropped once it is more than a quarter of a frame
// interval late.
package scheduler

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mengelbart/vpresent/clock"
	"github.com/mengelbart/vpresent/media"
	"github.com/pion/logging"
)

const (
	defaultStartTimeout = 5 * time.Second
	defaultFlushTimeout = 5 * time.Second
)

var (
	ErrNotStarted     = errors.New("scheduler not started")
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrStartFailed    = errors.New("scheduler could not start")
	ErrFlushTimeout   = errors.New("scheduler flush timed out")
)

// PresentFunc displays a sample and takes ownership of it, including on
// failure. It is never called concurrently.
type PresentFunc func(*media.Sample) error

// ReleaseFunc receives every sample that leaves the scheduler without being
// presented.
type ReleaseFunc func(*media.Sample)

type Stats struct {
	Presented uint64
	Dropped   uint64
	Failed    uint64
}

type Scheduler struct {
	log          logging.LeveledLogger
	present      PresentFunc
	release      ReleaseFunc
	onError      func(*media.Sample, error)
	onDrop       func(*media.Sample)
	startTimeout time.Duration
	flushTimeout time.Duration

	lock           sync.Mutex
	queue          []*media.Sample
	pending        int
	clk            clock.Clock
	running        bool
	rate           float64
	frameDuration  time.Duration
	quarter        time.Duration
	lastSampleTime time.Duration

	presentLock sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	trigger chan struct{}
	flushCh chan chan struct{}
	done    chan struct{}

	presented atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func New(present PresentFunc, release ReleaseFunc, opts ...Option) (*Scheduler, error) {
	interval := media.DefaultFrameRate.Interval()
	s := &Scheduler{
		log:           logging.NewDefaultLoggerFactory().NewLogger("scheduler"),
		present:       present,
		release:       release,
		onError:       func(*media.Sample, error) {},
		onDrop:        func(*media.Sample) {},
		startTimeout:  defaultStartTimeout,
		flushTimeout:  defaultFlushTimeout,
		lock:          sync.Mutex{},
		queue:         []*media.Sample{},
		rate:          1.0,
		frameDuration: interval,
		quarter:       interval / 4,
		presentLock:   sync.Mutex{},
		trigger:       make(chan struct{}, 1),
		flushCh:       make(chan chan struct{}),
	}
	if s.release == nil {
		s.release = func(*media.Sample) {}
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start spawns the worker and waits until it is ready. clk may be nil, in
// which case every sample is presented on arrival.
func (s *Scheduler) Start(clk clock.Clock) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.running {
		return ErrAlreadyStarted
	}
	s.clk = clk
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
	ready := make(chan struct{})

	beginTimerPeriod(s.log)
	go s.run(ready)

	timer := time.NewTimer(s.startTimeout)
	defer timer.Stop()
	select {
	case <-ready:
	case <-s.done:
		endTimerPeriod(s.log)
		return ErrStartFailed
	case <-timer.C:
		s.cancel()
		<-s.done
		endTimerPeriod(s.log)
		return ErrStartFailed
	}
	s.running = true
	return nil
}

// Stop terminates the worker and releases everything still queued. Calling
// Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.lock.Lock()
	if !s.running {
		s.lock.Unlock()
		return
	}
	s.running = false
	s.cancel()
	done := s.done
	s.lock.Unlock()

	<-done

	s.lock.Lock()
	queued := s.queue
	s.queue = []*media.Sample{}
	s.pending = 0
	s.clk = nil
	s.lock.Unlock()

	for _, sample := range queued {
		s.release(sample)
	}
	endTimerPeriod(s.log)
}

// SetFrameRate updates the tolerance unit of the readiness test.
func (s *Scheduler) SetFrameRate(fps media.Ratio) {
	interval := fps.Interval()
	if interval == 0 {
		interval = media.DefaultFrameRate.Interval()
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.frameDuration = interval
	s.quarter = interval / 4
}

func (s *Scheduler) SetClockRate(rate float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rate = rate
}

func (s *Scheduler) FrameDuration() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.frameDuration
}

// LastSampleTime returns the time stamp of the most recently presented
// sample.
func (s *Scheduler) LastSampleTime() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.lastSampleTime
}

// HasPending reports whether samples are waiting for presentation. A sample
// stops counting as pending right before it is presented or dropped.
func (s *Scheduler) HasPending() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pending > 0
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Presented: s.presented.Load(),
		Dropped:   s.dropped.Load(),
		Failed:    s.failed.Load(),
	}
}

// Schedule hands a sample to the scheduler. If presentNow is set or no clock
// is attached, the sample is presented before Schedule returns.
func (s *Scheduler) Schedule(sample *media.Sample, presentNow bool) error {
	s.lock.Lock()
	if !s.running {
		s.lock.Unlock()
		return ErrNotStarted
	}
	clk := s.clk
	rate := s.rate

	if presentNow || clk == nil {
		s.lock.Unlock()
		s.presentSample(sample)
		return nil
	}

	if rate > 0 && sampleTimePassed(clk, sample) {
		s.lock.Unlock()
		s.log.Debugf("discarding sample %v, it came too late", sample.Time)
		s.drop(sample)
		return nil
	}

	s.queue = append(s.queue, sample)
	s.pending++
	s.lock.Unlock()

	select {
	case s.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Flush discards all queued samples and blocks until the worker has
// acknowledged it.
func (s *Scheduler) Flush() error {
	s.lock.Lock()
	if !s.running {
		s.lock.Unlock()
		return nil
	}
	done := s.done
	s.lock.Unlock()

	timer := time.NewTimer(s.flushTimeout)
	defer timer.Stop()

	ack := make(chan struct{})
	select {
	case s.flushCh <- ack:
	case <-done:
		return nil
	case <-timer.C:
		return ErrFlushTimeout
	}
	select {
	case <-ack:
		return nil
	case <-done:
		return nil
	case <-timer.C:
		return ErrFlushTimeout
	}
}

func (s *Scheduler) run(ready chan<- struct{}) {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	sleeping := false

	close(ready)

	for {
		var timeout <-chan time.Time
		if sleeping {
			timeout = timer.C
		}
		select {
		case <-s.ctx.Done():
			return
		case ack := <-s.flushCh:
			s.flushQueue()
			timer.Stop()
			sleeping = false
			close(ack)
			continue
		case <-s.trigger:
		case <-timeout:
		}
		wait := s.processQueue()
		timer.Stop()
		sleeping = wait > 0
		if sleeping {
			timer.Reset(wait)
		}
	}
}

func (s *Scheduler) flushQueue() {
	s.lock.Lock()
	flushed := s.queue
	s.queue = []*media.Sample{}
	s.pending -= len(flushed)
	s.lock.Unlock()

	if len(flushed) > 0 {
		s.log.Debugf("flushing %v samples", len(flushed))
	}
	for _, sample := range flushed {
		s.release(sample)
	}
}

// processQueue presents every due sample and returns how long to sleep
// until the next one is due. Zero means the queue is empty.
func (s *Scheduler) processQueue() time.Duration {
	s.lock.Lock()
	batch := s.queue
	s.queue = []*media.Sample{}
	s.lock.Unlock()

	var wait time.Duration
	for len(batch) > 0 {
		sample := batch[0]
		batch[0] = nil
		batch = batch[1:]

		ready, sleep := s.ready(sample)
		if !ready && sleep > 0 {
			batch = append([]*media.Sample{sample}, batch...)
			wait = sleep
			break
		}
		s.lock.Lock()
		s.pending--
		s.lock.Unlock()
		if ready {
			s.presentSample(sample)
			continue
		}
		s.log.Debugf("dropping late sample %v", sample.Time)
		s.drop(sample)
	}

	s.lock.Lock()
	s.queue = append(batch, s.queue...)
	s.lock.Unlock()

	return wait
}

// ready classifies a sample against the clock. A sample that is neither
// ready nor early is late.
func (s *Scheduler) ready(sample *media.Sample) (bool, time.Duration) {
	s.lock.Lock()
	clk := s.clk
	rate := s.rate
	quarter := s.quarter
	s.lock.Unlock()

	if clk == nil || !sample.HasTime {
		return true, 0
	}
	now, _ := clk.CorrelatedTime()
	delta := sample.Time - now
	if rate < 0 {
		delta = -delta
	}
	return readiness(delta, quarter, rate)
}

func readiness(delta, quarter time.Duration, rate float64) (bool, time.Duration) {
	if delta < -quarter {
		return false, 0
	}
	if delta > quarter {
		sleep := delta - quarter
		if rate != 0 {
			sleep = time.Duration(float64(sleep) / math.Abs(rate))
		}
		return sleep == 0, sleep
	}
	return true, 0
}

func (s *Scheduler) presentSample(sample *media.Sample) {
	s.presentLock.Lock()
	defer s.presentLock.Unlock()

	if err := s.present(sample); err != nil {
		s.failed.Add(1)
		s.log.Warnf("failed to present sample %v: %v", sample.Time, err)
		s.onError(sample, err)
		return
	}
	s.presented.Add(1)
	if sample.HasTime {
		s.lock.Lock()
		s.lastSampleTime = sample.Time
		s.lock.Unlock()
	}
}

func (s *Scheduler) drop(sample *media.Sample) {
	s.dropped.Add(1)
	s.onDrop(sample)
	s.release(sample)
}

func sampleTimePassed(clk clock.Clock, sample *media.Sample) bool {
	if !sample.HasTime {
		return false
	}
	now, _ := clk.CorrelatedTime()
	return sample.End() < now
}
