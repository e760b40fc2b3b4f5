package clock

import (
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	calls []string
	err   error
}

func (r *recordingSink) OnClockStart(offset time.Duration) error {
	if offset == CurrentPosition {
		r.calls = append(r.calls, "start(current)")
	} else {
		r.calls = append(r.calls, "start("+offset.String()+")")
	}
	return r.err
}

func (r *recordingSink) OnClockStop() error {
	r.calls = append(r.calls, "stop")
	return r.err
}

func (r *recordingSink) OnClockPause() error {
	r.calls = append(r.calls, "pause")
	return r.err
}

func (r *recordingSink) OnClockRestart() error {
	r.calls = append(r.calls, "restart")
	return r.err
}

func (r *recordingSink) OnClockSetRate(rate float64) error {
	r.calls = append(r.calls, "rate")
	return r.err
}

func TestPresentationClockAdvances(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := New()
		pt, _ := c.CorrelatedTime()
		assert.Equal(t, time.Duration(0), pt)

		assert.NoError(t, c.Start(0))
		time.Sleep(100 * time.Millisecond)
		pt, st := c.CorrelatedTime()
		assert.Equal(t, 100*time.Millisecond, pt)
		assert.Equal(t, time.Now(), st)

		assert.NoError(t, c.Pause())
		time.Sleep(time.Second)
		pt, _ = c.CorrelatedTime()
		assert.Equal(t, 100*time.Millisecond, pt)

		assert.NoError(t, c.Start(CurrentPosition))
		time.Sleep(50 * time.Millisecond)
		pt, _ = c.CorrelatedTime()
		assert.Equal(t, 150*time.Millisecond, pt)
	})
}

func TestPresentationClockRate(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := New()
		assert.NoError(t, c.Start(time.Second))
		assert.NoError(t, c.SetRate(2))
		time.Sleep(100 * time.Millisecond)
		pt, _ := c.CorrelatedTime()
		assert.Equal(t, 1200*time.Millisecond, pt)

		assert.NoError(t, c.SetRate(-1))
		time.Sleep(100 * time.Millisecond)
		pt, _ = c.CorrelatedTime()
		assert.Equal(t, 1100*time.Millisecond, pt)

		assert.NoError(t, c.SetRate(0))
		time.Sleep(time.Second)
		pt, _ = c.CorrelatedTime()
		assert.Equal(t, 1100*time.Millisecond, pt)
	})
}

func TestPresentationClockNotifiesSinks(t *testing.T) {
	c := New()
	s := &recordingSink{}
	c.AddSink(s)

	assert.NoError(t, c.Start(0))
	assert.NoError(t, c.Pause())
	assert.NoError(t, c.Start(CurrentPosition))
	assert.NoError(t, c.SetRate(0.5))
	assert.NoError(t, c.Stop())
	assert.NoError(t, c.Start(CurrentPosition))

	assert.Equal(t, []string{"start(0s)", "pause", "restart", "rate", "stop", "start(current)"}, s.calls)
	assert.Equal(t, Running, c.State())
}

func TestPresentationClockJoinsSinkErrors(t *testing.T) {
	errSink := errors.New("sink failed")
	c := New()
	c.AddSink(&recordingSink{err: errSink})
	c.AddSink(&recordingSink{})

	err := c.Stop()
	assert.ErrorIs(t, err, errSink)
	assert.Equal(t, Stopped, c.State())
}
