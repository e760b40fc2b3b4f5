// Package vpresent plays decoded video through a presenter driven by a
// presentation clock.
package vpresent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mengelbart/vpresent/clock"
	"github.com/mengelbart/vpresent/presenter"
	"github.com/mengelbart/vpresent/source"
	"golang.org/x/sync/errgroup"
)

const eventQueueSize = 64

var ErrClosed = errors.New("player closed")

// Mixer is a presenter mixer that decodes its input in Run.
type Mixer interface {
	presenter.Mixer
	Run(ctx context.Context, notify source.NotifyFunc) error
}

// Seeker is implemented by mixers that can restart at a stream position.
type Seeker interface {
	Seek(offset time.Duration) error
}

// RateSetter is implemented by mixers that pace their input.
type RateSetter interface {
	SetRate(rate float64)
}

type PlayerOption func(*Player) error

func WithPresenterOptions(opts ...presenter.Option) PlayerOption {
	return func(p *Player) error {
		p.presenterOptions = append(p.presenterOptions, opts...)
		return nil
	}
}

// WithEventHandler sets a callback for every presenter event seen by Run.
func WithEventHandler(f func(presenter.Event)) PlayerOption {
	return func(p *Player) error {
		p.onEvent = f
		return nil
	}
}

// State is a snapshot of the player.
type State struct {
	Clock    clock.State
	Render   presenter.RenderState
	Step     presenter.FrameStepState
	Rate     float64
	Position time.Duration
}

// Player owns a presentation clock and a presenter and feeds the presenter
// from a mixer.
type Player struct {
	mixer            Mixer
	clock            *clock.PresentationClock
	presenter        *presenter.Presenter
	presenterOptions []presenter.Option
	onEvent          func(presenter.Event)

	// pauseAfterStep is set while a step requested in the paused state runs.
	pauseAfterStep atomic.Bool

	lock   sync.Mutex
	closed bool
}

func NewPlayer(engine presenter.Engine, mixer Mixer, opts ...PlayerOption) (*Player, error) {
	p := &Player{
		mixer:            mixer,
		clock:            clock.New(),
		presenterOptions: []presenter.Option{},
		onEvent:          func(presenter.Event) {},
		lock:             sync.Mutex{},
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	pr, err := presenter.New(engine, p.presenterOptions...)
	if err != nil {
		return nil, err
	}
	p.presenter = pr
	p.clock.AddSink(pr)

	if err = pr.Init(mixer, p.clock); err != nil {
		return nil, errors.Join(err, pr.Close())
	}
	if err = pr.ProcessMessage(presenter.MessageInvalidateFormat, 0); err != nil {
		return nil, errors.Join(err, pr.Close())
	}
	if err = pr.ProcessMessage(presenter.MessageBeginStreaming, 0); err != nil {
		return nil, errors.Join(err, pr.Close())
	}
	return p, nil
}

func (p *Player) Presenter() *presenter.Presenter {
	return p.presenter
}

// Play starts or resumes playback at the current position. Frames held
// back by a frame step are played.
func (p *Player) Play() error {
	if err := p.checkClosed(); err != nil {
		return err
	}
	p.pauseAfterStep.Store(false)
	if err := p.clock.Start(clock.CurrentPosition); err != nil {
		return err
	}
	if p.presenter.FrameStepState() != presenter.StepNone {
		return p.presenter.ProcessMessage(presenter.MessageCancelStep, 0)
	}
	return nil
}

func (p *Player) Pause() error {
	if err := p.checkClosed(); err != nil {
		return err
	}
	return p.clock.Pause()
}

// Stop halts playback, rewinds to the start and blanks the output.
func (p *Player) Stop() error {
	if err := p.checkClosed(); err != nil {
		return err
	}
	if err := p.clock.Stop(); err != nil {
		return err
	}
	if s, ok := p.mixer.(Seeker); ok {
		return s.Seek(0)
	}
	return nil
}

// Seek moves playback to offset. A paused player stays paused.
func (p *Player) Seek(offset time.Duration) error {
	if err := p.checkClosed(); err != nil {
		return err
	}
	if offset < 0 {
		return fmt.Errorf("negative seek offset: %v", offset)
	}
	if s, ok := p.mixer.(Seeker); ok {
		if err := s.Seek(offset); err != nil {
			return err
		}
	}
	state := p.clock.State()
	if err := p.clock.Start(offset); err != nil {
		return err
	}
	if state == clock.Paused {
		return p.clock.Pause()
	}
	return nil
}

// SetRate changes the playback rate. Rates faster than the display can
// show are rejected.
func (p *Player) SetRate(rate float64) error {
	if err := p.checkClosed(); err != nil {
		return err
	}
	if _, err := p.presenter.IsRateSupported(false, rate); err != nil {
		return err
	}
	if err := p.clock.SetRate(rate); err != nil {
		return err
	}
	if rs, ok := p.mixer.(RateSetter); ok {
		rs.SetRate(rate)
	}
	return nil
}

// Step advances n frames. A paused player runs the clock until the step
// completes and pauses again; Run must be running to observe completion.
func (p *Player) Step(n uint32) error {
	if err := p.checkClosed(); err != nil {
		return err
	}
	if err := p.presenter.ProcessMessage(presenter.MessageStep, n); err != nil {
		return err
	}
	if p.clock.State() == clock.Paused {
		p.pauseAfterStep.Store(true)
		return p.clock.Start(clock.CurrentPosition)
	}
	return nil
}

func (p *Player) CancelStep() error {
	if err := p.checkClosed(); err != nil {
		return err
	}
	return p.presenter.ProcessMessage(presenter.MessageCancelStep, 0)
}

func (p *Player) State() State {
	position, _ := p.clock.CorrelatedTime()
	return State{
		Clock:    p.clock.State(),
		Render:   p.presenter.RenderState(),
		Step:     p.presenter.FrameStepState(),
		Rate:     p.clock.Rate(),
		Position: position,
	}
}

// Run feeds the presenter until the stream completes, playback aborts or
// ctx is done. It returns nil once every frame was presented.
func (p *Player) Run(ctx context.Context) error {
	events, err := p.presenter.Events(eventQueueSize)
	if err != nil {
		return err
	}
	eg, ctx := errgroup.WithContext(ctx)
	eventCh := make(chan presenter.Event)
	go func() {
		defer close(eventCh)
		for e := range events {
			select {
			case eventCh <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	eg.Go(func() error {
		err := p.mixer.Run(ctx, p.presenter.ProcessMessage)
		if errors.Is(err, context.Canceled) || errors.Is(err, presenter.ErrShutdown) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case e, ok := <-eventCh:
				if !ok {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return ErrClosed
				}
				p.onEvent(e)
				switch e.Type {
				case presenter.EventComplete:
					slog.Info("playback complete")
					return errComplete
				case presenter.EventStepComplete:
					if p.pauseAfterStep.Swap(false) {
						if err := p.clock.Pause(); err != nil {
							slog.Warn("failed to pause after step", "error", err)
						}
					}
				case presenter.EventErrorAbort:
					return fmt.Errorf("playback aborted: %w", e.Err)
				}
			}
		}
	})
	err = eg.Wait()
	if errors.Is(err, errComplete) {
		return nil
	}
	return err
}

var errComplete = errors.New("complete")

func (p *Player) Close() error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil
	}
	p.closed = true
	p.lock.Unlock()

	errs := []error{p.clock.Stop(), p.presenter.Close()}
	if c, ok := p.mixer.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (p *Player) checkClosed() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}
