package presenter

import (
	"errors"
	"math"
	"testing"
	"testing/synctest"
	"time"

	"github.com/mengelbart/vpresent/clock"
	"github.com/mengelbart/vpresent/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormat = media.Format{
	Pixel:     media.XRGB,
	Width:     64,
	Height:    48,
	FrameRate: media.Ratio{Num: 30, Den: 1},
}

type harness struct {
	p      *Presenter
	clk    *clock.PresentationClock
	mixer  *fakeMixer
	engine *fakeEngine
	events *eventLog
}

// newHarness builds a presenter wired to a running scheduler, a negotiated
// format and a stopped clock.
func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	clk := clock.New()
	h := &harness{
		clk:    clk,
		mixer:  newFakeMixer(testFormat),
		engine: newFakeEngine(clk),
		events: &eventLog{},
	}
	p, err := New(h.engine, append([]Option{WithEventQueueSize(1024)}, opts...)...)
	require.NoError(t, err)
	h.p = p

	events, err := p.Events(1024)
	require.NoError(t, err)
	go func() {
		for e := range events {
			h.events.lock.Lock()
			h.events.events = append(h.events.events, e)
			h.events.lock.Unlock()
		}
	}()

	require.NoError(t, p.Init(h.mixer, clk))
	clk.AddSink(p)
	require.NoError(t, p.ProcessMessage(MessageInvalidateFormat, 0))
	require.NoError(t, p.ProcessMessage(MessageBeginStreaming, 0))
	return h
}

func (h *harness) notify(t *testing.T, n int) {
	t.Helper()
	h.mixer.addInput(n)
	require.NoError(t, h.p.ProcessMessage(MessageInputNotify, 0))
}

func TestPresenterFrameStepWhilePaused(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		require.NoError(t, h.clk.Pause())
		assert.Equal(t, RenderPaused, h.p.RenderState())
		require.NoError(t, h.p.ProcessMessage(MessageStep, 1))
		assert.Equal(t, StepWaitingForClockStart, h.p.FrameStepState())

		h.notify(t, 10)
		synctest.Wait()
		assert.Empty(t, h.engine.frames())

		require.NoError(t, h.clk.Start(clock.CurrentPosition))
		synctest.Wait()
		time.Sleep(time.Second)
		synctest.Wait()

		frames := h.engine.frames()
		require.Len(t, frames, 1)
		assert.Equal(t, time.Duration(0), frames[0].frame.StartTime)
		steps := h.events.ofType(EventStepComplete)
		require.Len(t, steps, 1)
		assert.False(t, steps[0].Cancelled)
		assert.Equal(t, StepComplete, h.p.FrameStepState())
	})
}

func TestPresenterFrameStepSkipsFrames(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		require.NoError(t, h.clk.Start(0))
		require.NoError(t, h.p.ProcessMessage(MessageStep, 3))
		assert.Equal(t, StepPending, h.p.FrameStepState())

		h.notify(t, 20)
		synctest.Wait()

		frames := h.engine.frames()
		require.Len(t, frames, 1)
		assert.Equal(t, 66*time.Millisecond, frames[0].frame.StartTime)
		assert.Len(t, h.events.ofType(EventStepComplete), 1)

		// cancelling resumes normal playback with the held back frames
		require.NoError(t, h.p.ProcessMessage(MessageCancelStep, 0))
		assert.Equal(t, StepNone, h.p.FrameStepState())
		time.Sleep(time.Second)
		synctest.Wait()

		frames = h.engine.frames()
		assert.Greater(t, len(frames), 1)
		for i := 1; i < len(frames); i++ {
			assert.Greater(t, frames[i].frame.StartTime, frames[i-1].frame.StartTime)
		}
		// completed steps are not reported as cancelled
		assert.Len(t, h.events.ofType(EventStepComplete), 1)
	})
}

func TestPresenterFrameStepRequiresActiveClock(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		assert.ErrorIs(t, h.p.ProcessMessage(MessageStep, 1), ErrInvalidTransition)
		assert.Equal(t, StepNone, h.p.FrameStepState())
	})
}

func TestPresenterEndOfStreamOnce(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		require.NoError(t, h.clk.Start(0))
		h.notify(t, 3)
		require.NoError(t, h.p.ProcessMessage(MessageEndOfStream, 0))
		synctest.Wait()
		assert.Empty(t, h.events.ofType(EventComplete))

		time.Sleep(200 * time.Millisecond)
		synctest.Wait()
		assert.Len(t, h.engine.frames(), 3)
		assert.Len(t, h.events.ofType(EventComplete), 1)

		require.NoError(t, h.p.ProcessMessage(MessageInputNotify, 0))
		time.Sleep(100 * time.Millisecond)
		synctest.Wait()
		assert.Len(t, h.events.ofType(EventComplete), 1)
	})
}

func TestPresenterCompleteReachesSlowSubscriber(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		slow, err := h.p.Events(4)
		require.NoError(t, err)

		require.NoError(t, h.clk.Start(0))
		h.notify(t, 40)
		require.NoError(t, h.p.ProcessMessage(MessageEndOfStream, 0))
		time.Sleep(2 * time.Second)
		synctest.Wait()
		assert.Len(t, h.engine.frames(), 40)
		require.NoError(t, h.p.Close())

		complete, informational := 0, 0
		for e := range slow {
			if e.Type == EventComplete {
				complete++
			} else {
				informational++
			}
		}
		assert.Equal(t, 1, complete)
		assert.LessOrEqual(t, informational, 4)
	})
}

func TestPresenterPoolExhaustion(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		h.mixer.base = 10 * time.Second
		require.NoError(t, h.clk.Start(0))
		h.notify(t, 10)
		synctest.Wait()

		assert.Equal(t, 3, h.mixer.produced())
		assert.Equal(t, 3, h.p.pool.Outstanding())
		assert.Equal(t, 0, h.p.pool.Available())
		assert.Empty(t, h.events.ofType(EventErrorAbort))

		time.Sleep(10 * time.Second)
		synctest.Wait()
		assert.GreaterOrEqual(t, h.mixer.produced(), 4)
		assert.LessOrEqual(t, h.p.pool.Outstanding(), 3)
	})
}

func TestPresenterTimedPresentation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		require.NoError(t, h.clk.Start(0))
		h.notify(t, 3)
		time.Sleep(200 * time.Millisecond)
		synctest.Wait()

		frames := h.engine.frames()
		require.Len(t, frames, 3)
		quarter := testFormat.FrameInterval() / 4
		for i, f := range frames {
			assert.Equal(t, time.Duration(i)*33*time.Millisecond, f.frame.StartTime)
			assert.LessOrEqual(t, f.at-f.frame.StartTime, quarter)
			assert.GreaterOrEqual(t, f.at-f.frame.StartTime, -quarter)
		}
	})
}

func TestPresenterScrubbing(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		h.mixer.base = 5 * time.Second
		require.NoError(t, h.clk.Start(0))
		require.NoError(t, h.clk.SetRate(0))
		assert.Equal(t, 0.0, h.p.Rate())

		h.notify(t, 2)
		synctest.Wait()
		frames := h.engine.frames()
		require.Len(t, frames, 2)
		for _, f := range frames {
			assert.Equal(t, time.Duration(0), f.at)
		}

		require.NoError(t, h.clk.SetRate(1))
		h.notify(t, 1)
		synctest.Wait()
		assert.Len(t, h.engine.frames(), 2)

		time.Sleep(5100 * time.Millisecond)
		synctest.Wait()
		frames = h.engine.frames()
		require.Len(t, frames, 3)
		assert.Equal(t, 5*time.Second+66*time.Millisecond, frames[2].frame.StartTime)
		assert.GreaterOrEqual(t, frames[2].at, frames[2].frame.StartTime-testFormat.FrameInterval())
	})
}

func TestPresenterScrubTimeEvent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		require.NoError(t, h.clk.Start(0))
		require.NoError(t, h.clk.SetRate(0))
		require.NoError(t, h.p.ProcessMessage(MessageStep, 2))
		h.notify(t, 5)
		synctest.Wait()

		scrubs := h.events.ofType(EventScrubTime)
		require.Len(t, scrubs, 1)
		assert.Equal(t, 33*time.Millisecond, scrubs[0].Time)
	})
}

func TestPresenterRateChangeDuringStep(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		require.NoError(t, h.clk.Start(0))
		require.NoError(t, h.p.ProcessMessage(MessageStep, 1))
		require.Equal(t, StepPending, h.p.FrameStepState())

		// magnitude only
		require.NoError(t, h.clk.SetRate(2))
		assert.Equal(t, StepPending, h.p.FrameStepState())
		assert.Empty(t, h.events.ofType(EventStepComplete))

		// direction change
		require.NoError(t, h.clk.SetRate(-1))
		synctest.Wait()
		assert.Equal(t, StepNone, h.p.FrameStepState())
		assert.Equal(t, RenderStopped, h.p.RenderState())
		steps := h.events.ofType(EventStepComplete)
		require.Len(t, steps, 1)
		assert.True(t, steps[0].Cancelled)
	})
}

func TestPresenterRateChangeToZeroCancelsStep(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		require.NoError(t, h.clk.Start(0))
		require.NoError(t, h.p.ProcessMessage(MessageStep, 1))
		require.NoError(t, h.clk.SetRate(0))
		synctest.Wait()

		assert.Equal(t, StepNone, h.p.FrameStepState())
		assert.Equal(t, RenderStarted, h.p.RenderState())
		steps := h.events.ofType(EventStepComplete)
		require.Len(t, steps, 1)
		assert.True(t, steps[0].Cancelled)
	})
}

func TestPresenterNegotiation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		clk := clock.New()
		engine := newFakeEngine(clk)
		outside := media.Rect{X: 0, Y: 0, Width: 100, Height: 100}

		i420 := testFormat
		i420.Pixel = media.I420
		compressed := testFormat
		compressed.Compressed = true
		interlaced := testFormat
		interlaced.Interlaced = true
		badAperture := testFormat
		badAperture.Geometric = &outside
		rejectedByMixer := testFormat
		rejectedByMixer.Width = 32
		good := testFormat
		good.Pixel = media.ARGB
		good.PanScanEnabled = true

		mixer := newFakeMixer(i420, compressed, interlaced, badAperture, rejectedByMixer, good)
		mixer.rejects[32] = true

		p, err := New(engine)
		require.NoError(t, err)
		defer p.Close()
		require.NoError(t, p.Init(mixer, clk))

		require.NoError(t, p.ProcessMessage(MessageInvalidateFormat, 0))
		f, err := p.CurrentFormat()
		require.NoError(t, err)
		assert.Equal(t, media.ARGB, f.Pixel)
		assert.False(t, f.PanScanEnabled)
		require.NotNil(t, f.Geometric)
		assert.Equal(t, media.Rect{Width: 64, Height: 48}, *f.Geometric)
		assert.True(t, f.Equal(mixer.committed))
		assert.Equal(t, 3, p.pool.Capacity())
		assert.Equal(t, 1, engine.batches)
	})
}

func TestPresenterNegotiationCropRect(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		clk := clock.New()
		p, err := New(newFakeEngine(clk), WithCropRect(media.Rect{X: 8, Y: 8, Width: 32, Height: 24}))
		require.NoError(t, err)
		defer p.Close()
		require.NoError(t, p.Init(newFakeMixer(testFormat), clk))

		require.NoError(t, p.ProcessMessage(MessageInvalidateFormat, 0))
		f, err := p.CurrentFormat()
		require.NoError(t, err)
		assert.Equal(t, media.Rect{Width: 32, Height: 24}, *f.Geometric)
		assert.Equal(t, media.Rect{Width: 32, Height: 24}, *f.MinimumDisplay)
	})
}

func TestPresenterNoPresentableFormat(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		clk := clock.New()
		i420 := testFormat
		i420.Pixel = media.I420
		p, err := New(newFakeEngine(clk))
		require.NoError(t, err)
		defer p.Close()

		events, err := p.Events(16)
		require.NoError(t, err)
		log := &eventLog{}
		go func() {
			for e := range events {
				log.lock.Lock()
				log.events = append(log.events, e)
				log.lock.Unlock()
			}
		}()

		require.NoError(t, p.Init(newFakeMixer(i420), clk))
		err = p.ProcessMessage(MessageInvalidateFormat, 0)
		assert.ErrorIs(t, err, ErrNoPresentableFormat)
		assert.ErrorIs(t, err, errUnsupportedFormat)

		_, err = p.CurrentFormat()
		assert.ErrorIs(t, err, ErrNotInitialized)
		assert.ErrorIs(t, p.ProcessMessage(MessageInputNotify, 0), ErrTypeNotSet)

		synctest.Wait()
		aborts := log.ofType(EventErrorAbort)
		require.Len(t, aborts, 1)
		assert.ErrorIs(t, aborts[0].Err, ErrNoPresentableFormat)
	})
}

func TestPresenterStaleBuffersAfterFormatChange(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		h.mixer.base = time.Minute
		require.NoError(t, h.clk.Start(0))
		h.notify(t, 3)
		synctest.Wait()
		old := h.mixer.receivedBuffers()
		require.Len(t, old, 3)

		larger := testFormat
		larger.Width, larger.Height = 128, 96
		h.mixer.setFormats(larger)
		require.NoError(t, h.p.ProcessMessage(MessageInvalidateFormat, 0))
		synctest.Wait()

		assert.Equal(t, 3, h.p.pool.Available())
		assert.Equal(t, 0, h.p.pool.Outstanding())

		h.notify(t, 3)
		synctest.Wait()
		fresh := h.mixer.receivedBuffers()[3:]
		require.Len(t, fresh, 3)
		for _, b := range fresh {
			assert.Equal(t, 2, h.engine.batch(b))
			assert.Equal(t, 128, b.Format.Width)
			for _, o := range old {
				assert.NotSame(t, o, b)
			}
		}
	})
}

func TestPresenterMixerFormatChange(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		require.NoError(t, h.clk.Start(0))
		larger := testFormat
		larger.Width, larger.Height = 128, 96
		h.mixer.setFormats(larger)
		h.mixer.setError(ErrFormatChanged)
		h.notify(t, 1)
		synctest.Wait()

		f, err := h.p.CurrentFormat()
		require.NoError(t, err)
		assert.Equal(t, 128, f.Width)
		assert.Equal(t, 1, h.mixer.produced())
		assert.Empty(t, h.events.ofType(EventErrorAbort))
	})
}

func TestPresenterMixerError(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		errDecode := errors.New("decode failed")
		require.NoError(t, h.clk.Start(0))
		h.mixer.setError(errDecode)
		h.notify(t, 1)
		synctest.Wait()

		aborts := h.events.ofType(EventErrorAbort)
		require.Len(t, aborts, 1)
		assert.ErrorIs(t, aborts[0].Err, errDecode)
		assert.Equal(t, 3, h.p.pool.Available())
	})
}

func TestPresenterPresentFailureContinues(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		h.engine.presentErr = errors.New("device lost")
		require.NoError(t, h.clk.Start(0))
		h.notify(t, 3)
		time.Sleep(200 * time.Millisecond)
		synctest.Wait()

		assert.Len(t, h.engine.frames(), 3)
		assert.Len(t, h.events.ofType(EventPresentFailed), 3)
		assert.Empty(t, h.events.ofType(EventErrorAbort))
	})
}

func TestPresenterProcessingLatency(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		require.NoError(t, h.clk.Start(0))
		h.notify(t, 2)
		synctest.Wait()
		latencies := h.events.ofType(EventProcessingLatency)
		assert.NotEmpty(t, latencies)
		for _, e := range latencies {
			assert.Equal(t, time.Duration(0), e.Latency)
		}
	})
}

func TestPresenterStopRepaintsBlack(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		require.NoError(t, h.clk.Start(0))
		blacks := h.engine.blackFrames()
		require.NoError(t, h.clk.Stop())
		assert.Equal(t, RenderStopped, h.p.RenderState())
		assert.Equal(t, blacks+1, h.engine.blackFrames())
	})
}

func TestPresenterPrerollWhileStopped(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		h.notify(t, 5)
		synctest.Wait()
		assert.Len(t, h.engine.frames(), 1)
		assert.Equal(t, 1, h.mixer.produced())
	})
}

func TestPresenterPositionOffsetAndRotation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		h.mixer.rotation = media.Rotation90
		require.NoError(t, h.p.ProcessMessage(MessageInvalidateFormat, 0))
		h.p.SetPositionOffset(time.Second)
		h.notify(t, 1)
		synctest.Wait()

		frames := h.engine.frames()
		require.Len(t, frames, 1)
		assert.Equal(t, time.Second, frames[0].frame.StartTime)
		assert.Equal(t, time.Second+33*time.Millisecond, frames[0].frame.EndTime)
		assert.Equal(t, media.Rotation90, frames[0].frame.Rotation)
	})
}

func TestPresenterSeekFlushes(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		h.mixer.base = time.Minute
		require.NoError(t, h.clk.Start(0))
		h.notify(t, 3)
		synctest.Wait()
		assert.Equal(t, 3, h.p.pool.Outstanding())

		require.NoError(t, h.clk.Start(time.Second))
		synctest.Wait()
		assert.Empty(t, h.engine.frames())
		assert.False(t, h.p.scheduler.HasPending())
	})
}

func TestPresenterShutdown(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		clk := clock.New()
		p, err := New(newFakeEngine(clk))
		require.NoError(t, err)

		assert.ErrorIs(t, p.ProcessMessage(MessageFlush, 0), ErrNotInitialized)
		require.NoError(t, p.Init(newFakeMixer(testFormat), clk))
		require.NoError(t, p.ProcessMessage(MessageInvalidateFormat, 0))
		require.NoError(t, p.ProcessMessage(MessageBeginStreaming, 0))

		require.NoError(t, p.Shutdown())
		require.NoError(t, p.Shutdown())
		assert.Equal(t, RenderShutdown, p.RenderState())

		assert.ErrorIs(t, p.ProcessMessage(MessageFlush, 0), ErrShutdown)
		assert.ErrorIs(t, p.OnClockStart(0), ErrShutdown)
		assert.ErrorIs(t, p.OnClockSetRate(2), ErrShutdown)
		assert.ErrorIs(t, p.Init(newFakeMixer(testFormat), clk), ErrShutdown)
		_, err = p.CurrentFormat()
		assert.ErrorIs(t, err, ErrShutdown)
		_, err = p.FastestRate(false, false)
		assert.ErrorIs(t, err, ErrShutdown)

		assert.NoError(t, p.Close())
		assert.NoError(t, p.Close())
	})
}

func TestPresenterInitWhileActive(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		require.NoError(t, h.clk.Start(0))
		assert.ErrorIs(t, h.p.Init(h.mixer, h.clk), ErrInvalidRequest)
	})
}

func TestPresenterUnknownMessage(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()
		assert.ErrorIs(t, h.p.ProcessMessage(Message(42), 0), ErrUnknownMessage)
	})
}

func TestPresenterRateSupport(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		defer h.p.Close()

		slowest, err := h.p.SlowestRate()
		require.NoError(t, err)
		assert.Equal(t, 0.0, slowest)

		rate, err := h.p.FastestRate(false, false)
		require.NoError(t, err)
		assert.Equal(t, float64(math.MaxFloat32), rate)

		h.engine.refresh = 60
		rate, err = h.p.FastestRate(false, false)
		require.NoError(t, err)
		assert.Equal(t, 2.0, rate)
		rate, err = h.p.FastestRate(true, false)
		require.NoError(t, err)
		assert.Equal(t, -2.0, rate)
		rate, err = h.p.FastestRate(false, true)
		require.NoError(t, err)
		assert.Equal(t, float64(math.MaxFloat32), rate)

		nearest, err := h.p.IsRateSupported(false, 1.5)
		assert.NoError(t, err)
		assert.Equal(t, 1.5, nearest)
		nearest, err = h.p.IsRateSupported(false, 3)
		assert.ErrorIs(t, err, ErrUnsupportedRate)
		assert.Equal(t, 2.0, nearest)
		nearest, err = h.p.IsRateSupported(false, -3)
		assert.ErrorIs(t, err, ErrUnsupportedRate)
		assert.Equal(t, -2.0, nearest)
	})
}
