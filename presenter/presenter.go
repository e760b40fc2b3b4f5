// Package presenter drives timed presentation of decoded video.
//
// A Presenter pulls samples from a Mixer into pooled buffers, hands them to
// a Scheduler that waits for their presentation time and finally passes
// them to an Engine for display. It reacts to presentation clock state
// changes, negotiates the output format with the mixer and implements
// frame stepping.
//
// All exported methods take the presenter lock. Internal helpers assume it
// is held. Buffers come back asynchronously through a release queue that
// is serviced by a goroutine owned by the presenter, so no callback ever
// re-enters the lock.
package presenter

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mengelbart/vpresent/clock"
	"github.com/mengelbart/vpresent/internal/logging"
	"github.com/mengelbart/vpresent/internal/pubsub"
	"github.com/mengelbart/vpresent/media"
	"github.com/mengelbart/vpresent/pool"
	"github.com/mengelbart/vpresent/scheduler"
	pionlogging "github.com/pion/logging"
)

type frameStep struct {
	state FrameStepState
	steps uint32
	// samples held back while stepping
	samples []*media.Sample
	// sample submitted for the current step
	scheduled *media.Sample
}

type Presenter struct {
	engine           Engine
	host             Host
	bufferCount      int
	eventQueueSize   int
	loggerFactory    pionlogging.LoggerFactory
	schedulerOptions []scheduler.Option

	scheduler *scheduler.Scheduler
	pool      *pool.Pool
	events    *pubsub.Topic[Event]
	freed     *releaseQueue

	lock         sync.Mutex
	renderState  RenderState
	step         frameStep
	mixer        Mixer
	clk          clock.Clock
	format       *media.Format
	cropRect     *media.Rect
	rate         float64
	sampleNotify bool
	endStreaming bool
	prerolled    bool
	closed       bool

	// read by the scheduler goroutine without the lock
	shutdown       atomic.Bool
	positionOffset atomic.Int64
	rotation       atomic.Int32

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a presenter in the shutdown state. Call Init to attach the
// mixer and clock.
func New(engine Engine, opts ...Option) (*Presenter, error) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Presenter{
		engine:           engine,
		host:             inlineHost{},
		bufferCount:      defaultBufferCount,
		eventQueueSize:   defaultEventQueueSize,
		loggerFactory:    logging.NewLoggerFactory(slog.Default()),
		schedulerOptions: []scheduler.Option{},
		freed:            newReleaseQueue(),
		lock:             sync.Mutex{},
		renderState:      RenderShutdown,
		step:             frameStep{},
		rate:             1.0,
		ctx:              ctx,
		cancel:           cancel,
		wg:               sync.WaitGroup{},
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			cancel()
			return nil, err
		}
	}

	var err error
	p.pool, err = pool.New(pool.WithLoggerFactory(p.loggerFactory))
	if err != nil {
		cancel()
		return nil, err
	}
	schedulerOptions := append([]scheduler.Option{
		scheduler.WithLoggerFactory(p.loggerFactory),
		scheduler.WithErrorHandler(p.onPresentError),
		scheduler.WithDropHandler(p.onSampleDropped),
	}, p.schedulerOptions...)
	p.scheduler, err = scheduler.New(p.presentSample, p.releaseSample, schedulerOptions...)
	if err != nil {
		cancel()
		return nil, err
	}
	p.events = pubsub.NewTopic[Event]("presenter-events", pubsub.WithGuaranteed(Event.control))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runReleaseLoop()
	}()
	return p, nil
}

// Init attaches the mixer and the optional clock and moves the presenter to
// the stopped state. It fails while the clock is running or paused.
func (p *Presenter) Init(mixer Mixer, clk clock.Clock) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return ErrShutdown
	}
	if p.renderState.active() {
		return ErrInvalidRequest
	}
	if mixer == nil {
		return fmt.Errorf("%w: missing mixer", ErrInvalidRequest)
	}
	p.mixer = mixer
	p.clk = clk
	return p.setRenderState(RenderStopped)
}

// Shutdown releases all resources. Every later call except Shutdown and
// Close fails with ErrShutdown.
func (p *Presenter) Shutdown() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.shutdown.Store(true)
	if err := p.setRenderState(RenderShutdown); err != nil {
		return err
	}
	p.flush()
	p.setFormat(nil)
	p.mixer = nil
	p.clk = nil
	return nil
}

// Close shuts the presenter down and stops its goroutines.
func (p *Presenter) Close() error {
	err := p.Shutdown()
	p.closeOnce.Do(func() {
		p.scheduler.Stop()
		p.cancel()
		p.wg.Wait()
		p.events.Close()
	})
	return err
}

// Events subscribes to the presenter's event stream. queueSize bounds the
// buffered informational events; a non-positive size uses the configured
// event queue size. Control events are never dropped.
func (p *Presenter) Events(queueSize int) (iter.Seq[Event], error) {
	if queueSize <= 0 {
		queueSize = p.eventQueueSize
	}
	return p.events.Subscribe(queueSize)
}

// ProcessMessage handles a pipeline command. param is the step count for
// MessageStep and ignored otherwise.
func (p *Presenter) ProcessMessage(msg Message, param uint32) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.checkShutdown(); err != nil {
		return err
	}
	slog.Debug("presenter message", "message", msg, "param", param)

	switch msg {
	case MessageFlush:
		p.flush()
		return nil
	case MessageInvalidateFormat:
		return p.renegotiate()
	case MessageInputNotify:
		return p.processInputNotify()
	case MessageBeginStreaming:
		return p.beginStreaming()
	case MessageEndStreaming:
		p.scheduler.Stop()
		return nil
	case MessageEndOfStream:
		p.endStreaming = true
		p.checkEndOfStream()
		return nil
	case MessageStep:
		return p.prepareFrameStep(param)
	case MessageCancelStep:
		p.cancelFrameStep()
		if p.renderState == RenderStarted {
			// deliver samples held back by the step
			if err := p.startFrameStep(); err != nil {
				return err
			}
			p.processOutputLoop()
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnknownMessage, msg)
}

// OnClockStart implements clock.StateSink.
func (p *Presenter) OnClockStart(offset time.Duration) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.checkShutdown(); err != nil {
		return err
	}
	wasActive := p.renderState.active()
	if err := p.setRenderState(RenderStarted); err != nil {
		return err
	}
	if wasActive && offset != clock.CurrentPosition {
		// seek
		p.flush()
	}
	if err := p.startFrameStep(); err != nil {
		return err
	}
	p.processOutputLoop()
	return nil
}

// OnClockRestart implements clock.StateSink.
func (p *Presenter) OnClockRestart() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.checkShutdown(); err != nil {
		return err
	}
	if err := p.setRenderState(RenderStarted); err != nil {
		return err
	}
	if err := p.startFrameStep(); err != nil {
		return err
	}
	p.processOutputLoop()
	return nil
}

// OnClockStop implements clock.StateSink.
func (p *Presenter) OnClockStop() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.checkShutdown(); err != nil {
		return err
	}
	if p.renderState == RenderStopped {
		return nil
	}
	if err := p.setRenderState(RenderStopped); err != nil {
		return err
	}
	p.flush()
	if p.step.state != StepNone {
		p.cancelFrameStep()
	}
	return nil
}

// OnClockPause implements clock.StateSink.
func (p *Presenter) OnClockPause() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.checkShutdown(); err != nil {
		return err
	}
	return p.setRenderState(RenderPaused)
}

// OnClockSetRate implements clock.StateSink. Leaving rate zero cancels a
// frame step and drops the samples it held back. Entering rate zero or
// reversing direction flushes, and switching to reverse playback while the
// clock is active also stops rendering so that reverse playback starts
// from a stopped state. A frame step survives a change of magnitude only.
func (p *Presenter) OnClockSetRate(rate float64) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.checkShutdown(); err != nil {
		return err
	}
	old := p.rate
	enteringZero := old != 0 && rate == 0
	leavingZero := old == 0 && rate != 0
	reversing := (old > 0 && rate < 0) || (old < 0 && rate > 0)

	if leavingZero || enteringZero || reversing {
		p.cancelFrameStep()
	}
	if leavingZero {
		p.releaseStepSamples()
	}

	p.rate = rate
	p.scheduler.SetClockRate(rate)

	if enteringZero || reversing {
		if rate < 0 && p.renderState.active() {
			if err := p.setRenderState(RenderStopped); err != nil {
				return err
			}
		}
		p.flush()
	}
	slog.Debug("presenter rate changed", "old-rate", old, "rate", rate, "render-state", p.renderState)
	return nil
}

// CurrentFormat returns the negotiated output format.
func (p *Presenter) CurrentFormat() (media.Format, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.checkShutdown(); err != nil {
		return media.Format{}, err
	}
	if p.format == nil {
		return media.Format{}, ErrNotInitialized
	}
	return *p.format, nil
}

// SetCropRect sets the source rectangle used by the next format
// negotiation. A nil rect presents the full frame.
func (p *Presenter) SetCropRect(r *media.Rect) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if r == nil {
		p.cropRect = nil
		return
	}
	c := *r
	p.cropRect = &c
}

// SetPositionOffset sets the stream position the clock was started at. It
// is added to the times of presented frames.
func (p *Presenter) SetPositionOffset(offset time.Duration) {
	p.positionOffset.Store(int64(offset))
}

func (p *Presenter) RenderState() RenderState {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.renderState
}

func (p *Presenter) FrameStepState() FrameStepState {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.step.state
}

func (p *Presenter) Rate() float64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.rate
}

func (p *Presenter) checkShutdown() error {
	if p.closed {
		return ErrShutdown
	}
	if p.renderState == RenderShutdown {
		return ErrNotInitialized
	}
	return nil
}

func (p *Presenter) setRenderState(to RenderState) error {
	if !p.renderState.CanTransition(to) {
		return fmt.Errorf("%w: render state %v -> %v", ErrInvalidTransition, p.renderState, to)
	}
	if p.renderState != to {
		slog.Debug("render state", "from", p.renderState, "to", to)
	}
	p.renderState = to
	return nil
}

func (p *Presenter) setStepState(to FrameStepState) error {
	if !p.step.state.CanTransition(to, p.renderState) {
		return fmt.Errorf("%w: frame step %v -> %v in render state %v", ErrInvalidTransition, p.step.state, to, p.renderState)
	}
	p.step.state = to
	return nil
}

func (p *Presenter) beginStreaming() error {
	if err := p.scheduler.Start(p.clk); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyStarted) {
			return nil
		}
		p.publish(Event{Type: EventErrorAbort, Err: err})
		return err
	}
	return nil
}

func (p *Presenter) flush() {
	p.prerolled = false
	if err := p.scheduler.Flush(); err != nil {
		slog.Warn("scheduler flush failed", "error", err)
	}
	p.releaseStepSamples()
	if p.renderState == RenderStopped {
		p.repaint()
	}
}

func (p *Presenter) processInputNotify() error {
	p.sampleNotify = true
	if p.format == nil {
		return ErrTypeNotSet
	}
	p.processOutputLoop()
	return nil
}

// checkEndOfStream publishes EventComplete once the mixer has signalled end
// of stream, has no more input and the scheduler has nothing left.
func (p *Presenter) checkEndOfStream() {
	if !p.endStreaming || p.sampleNotify || p.scheduler.HasPending() {
		return
	}
	slog.Info("presentation complete")
	p.publish(Event{Type: EventComplete})
	p.endStreaming = false
}

func (p *Presenter) publish(e Event) {
	if err := p.events.Publish(e); err != nil {
		slog.Warn("dropping presenter event", "event", e.Type, "error", err)
	}
}

func (p *Presenter) clockTime() (time.Duration, bool) {
	if p.clk == nil {
		return 0, false
	}
	t, _ := p.clk.CorrelatedTime()
	return t, true
}

func (p *Presenter) sampleTimePassed(s *media.Sample) bool {
	now, ok := p.clockTime()
	return ok && s.HasTime && s.End() < now
}
