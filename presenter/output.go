package presenter

import (
	"errors"
	"log/slog"

	"github.com/mengelbart/vpresent/media"
)

// processOutputLoop pulls samples from the mixer until it runs out of
// input, the pool runs out of buffers or an error occurs.
func (p *Presenter) processOutputLoop() {
	for {
		if !p.sampleNotify {
			p.checkEndOfStream()
			return
		}
		more, err := p.processOutput()
		if errors.Is(err, ErrNeedMoreInput) {
			p.checkEndOfStream()
			return
		}
		if err != nil || !more {
			return
		}
	}
}

// processOutput fetches one sample from the mixer. It returns false without
// an error if no sample could be processed for now.
func (p *Presenter) processOutput() (bool, error) {
	// Before the clock starts only the first sample is presented.
	if p.renderState != RenderStarted && p.prerolled {
		return false, nil
	}
	if p.mixer == nil {
		return false, ErrInvalidRequest
	}
	buf, ok := p.pool.Take()
	if !ok {
		return false, nil
	}

	start, timed := p.clockTime()
	sample, err := p.mixer.ProcessOutput(buf)
	if err != nil {
		if _, rerr := p.pool.Return(buf); rerr != nil {
			slog.Warn("failed to return buffer", "buffer", buf.ID, "error", rerr)
		}
		switch {
		case errors.Is(err, ErrTypeNotSet):
			err = p.renegotiate()
			return err == nil, err
		case errors.Is(err, ErrFormatChanged):
			slog.Info("mixer format changed, renegotiating")
			p.setFormat(nil)
			err = p.renegotiate()
			return err == nil, err
		case errors.Is(err, ErrNeedMoreInput):
			p.sampleNotify = false
		default:
			slog.Error("mixer failed to process output", "error", err)
			p.publish(Event{Type: EventErrorAbort, Err: err})
		}
		return false, err
	}
	if sample.Buffer == nil {
		sample.Buffer = buf
	}

	if timed {
		end, _ := p.clockTime()
		p.publish(Event{Type: EventProcessingLatency, Latency: end - start})
	}

	if p.step.state == StepNone {
		err = p.deliverSample(sample, false)
	} else {
		err = p.deliverFrameStepSample(sample)
	}
	if err != nil {
		return false, err
	}
	p.prerolled = true
	return true, nil
}

// deliverSample hands a sample to the scheduler. It is presented right away
// if the clock is not running, if the presenter is scrubbing or if force is
// set.
func (p *Presenter) deliverSample(s *media.Sample, force bool) error {
	presentNow := force || p.renderState != RenderStarted || p.rate == 0
	if err := p.scheduler.Schedule(s, presentNow); err != nil {
		slog.Error("failed to schedule sample", "sample-time", s.Time, "error", err)
		p.releaseSample(s)
		p.publish(Event{Type: EventErrorAbort, Err: err})
		return err
	}
	return nil
}
