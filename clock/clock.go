// Package clock provides the presentation clock that frame timestamps are
// compared against.
//
// A Clock reports the current presentation time together with the system
// time it was sampled at. PresentationClock is a software implementation
// that advances with the system clock scaled by a playback rate and informs
// registered StateSinks about state changes, in the same way a player drives
// its renderers.
package clock

import (
	"errors"
	"math"
	"sync"
	"time"
)

// CurrentPosition passed to Start keeps the current presentation time
// instead of seeking.
const CurrentPosition = time.Duration(math.MinInt64)

type Clock interface {
	CorrelatedTime() (presentation time.Duration, system time.Time)
}

type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// StateSink receives clock state changes.
type StateSink interface {
	OnClockStart(offset time.Duration) error
	OnClockStop() error
	OnClockPause() error
	OnClockRestart() error
	OnClockSetRate(rate float64) error
}

type PresentationClock struct {
	lock  sync.Mutex
	state State
	rate  float64

	// presentation time at base
	position time.Duration
	base     time.Time

	sinks []StateSink
}

func New() *PresentationClock {
	return &PresentationClock{
		lock:  sync.Mutex{},
		state: Stopped,
		rate:  1.0,
		sinks: []StateSink{},
	}
}

func (c *PresentationClock) AddSink(s StateSink) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.sinks = append(c.sinks, s)
}

// CorrelatedTime implements Clock.
func (c *PresentationClock) CorrelatedTime() (time.Duration, time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	now := time.Now()
	return c.timeAt(now), now
}

func (c *PresentationClock) timeAt(now time.Time) time.Duration {
	if c.state != Running {
		return c.position
	}
	elapsed := float64(now.Sub(c.base)) * c.rate
	return c.position + time.Duration(elapsed)
}

func (c *PresentationClock) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

func (c *PresentationClock) Rate() float64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.rate
}

// Start runs the clock from offset, or from the current position if offset
// is CurrentPosition. Starting a paused clock at the current position is a
// restart.
func (c *PresentationClock) Start(offset time.Duration) error {
	c.lock.Lock()
	now := time.Now()
	restart := c.state == Paused && offset == CurrentPosition
	if offset != CurrentPosition {
		c.position = offset
	} else {
		c.position = c.timeAt(now)
	}
	c.base = now
	c.state = Running
	sinks := c.sinks
	c.lock.Unlock()

	if restart {
		return notify(sinks, StateSink.OnClockRestart)
	}
	return notify(sinks, func(s StateSink) error { return s.OnClockStart(offset) })
}

func (c *PresentationClock) Stop() error {
	c.lock.Lock()
	c.state = Stopped
	c.position = 0
	sinks := c.sinks
	c.lock.Unlock()
	return notify(sinks, StateSink.OnClockStop)
}

func (c *PresentationClock) Pause() error {
	c.lock.Lock()
	c.position = c.timeAt(time.Now())
	c.state = Paused
	sinks := c.sinks
	c.lock.Unlock()
	return notify(sinks, StateSink.OnClockPause)
}

func (c *PresentationClock) SetRate(rate float64) error {
	c.lock.Lock()
	now := time.Now()
	c.position = c.timeAt(now)
	c.base = now
	c.rate = rate
	sinks := c.sinks
	c.lock.Unlock()
	return notify(sinks, func(s StateSink) error { return s.OnClockSetRate(rate) })
}

func notify(sinks []StateSink, f func(StateSink) error) error {
	var errs []error
	for _, s := range sinks {
		if err := f(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
