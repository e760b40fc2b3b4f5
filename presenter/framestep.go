package presenter

import (
	"log/slog"

	"github.com/mengelbart/vpresent/media"
)

// prepareFrameStep adds steps to the pending step count. Stepping starts
// right away if the clock is running, otherwise once it starts.
func (p *Presenter) prepareFrameStep(steps uint32) error {
	if err := p.setStepState(StepWaitingForClockStart); err != nil {
		return err
	}
	p.step.steps += steps
	if p.renderState == RenderStarted {
		return p.startFrameStep()
	}
	return nil
}

func (p *Presenter) startFrameStep() error {
	switch p.step.state {
	case StepWaitingForClockStart:
		if err := p.setStepState(StepPending); err != nil {
			return err
		}
		for len(p.step.samples) > 0 && p.step.state == StepPending {
			s := p.popStepSample()
			if err := p.deliverFrameStepSample(s); err != nil {
				return err
			}
		}
	case StepNone:
		// not stepping, samples held back by an earlier step play normally
		for len(p.step.samples) > 0 {
			s := p.popStepSample()
			if err := p.deliverSample(s, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Presenter) deliverFrameStepSample(s *media.Sample) error {
	switch {
	case p.rate == 0 && p.sampleTimePassed(s):
		p.releaseSample(s)
	case p.step.state >= StepScheduled:
		// keep it in case another step is requested
		p.step.samples = append(p.step.samples, s)
	default:
		if p.step.steps > 0 {
			p.step.steps--
		}
		switch {
		case p.step.steps > 0:
			// skipped over
			p.releaseSample(s)
		case p.step.state == StepWaitingForClockStart:
			p.step.samples = append(p.step.samples, s)
		default:
			if err := p.deliverSample(s, true); err != nil {
				return err
			}
			p.step.scheduled = s
			return p.setStepState(StepScheduled)
		}
	}
	return nil
}

func (p *Presenter) completeFrameStep(s *media.Sample) {
	if err := p.setStepState(StepComplete); err != nil {
		slog.Warn("failed to complete frame step", "error", err)
		return
	}
	p.step.scheduled = nil
	p.publish(Event{Type: EventStepComplete})

	if p.rate == 0 {
		t := s.Time
		if !s.HasTime {
			t, _ = p.clockTime()
		}
		p.publish(Event{Type: EventScrubTime, Time: t})
	}
}

// cancelFrameStep resets stepping. Held back samples are kept because
// another step may follow.
func (p *Presenter) cancelFrameStep() {
	old := p.step.state
	p.step.state = StepNone
	p.step.steps = 0
	p.step.scheduled = nil
	if old > StepNone && old < StepComplete {
		p.publish(Event{Type: EventStepComplete, Cancelled: true})
	}
}

func (p *Presenter) popStepSample() *media.Sample {
	s := p.step.samples[0]
	p.step.samples[0] = nil
	p.step.samples = p.step.samples[1:]
	return s
}

func (p *Presenter) releaseStepSamples() {
	for _, s := range p.step.samples {
		p.releaseSample(s)
	}
	p.step.samples = nil
}
