package presenter

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mengelbart/vpresent/media"
)

// releaseQueue collects samples that are done with their buffer. Pushing
// never blocks.
type releaseQueue struct {
	lock    sync.Mutex
	samples []*media.Sample
	trigger chan struct{}
}

func newReleaseQueue() *releaseQueue {
	return &releaseQueue{
		lock:    sync.Mutex{},
		samples: []*media.Sample{},
		trigger: make(chan struct{}, 1),
	}
}

func (q *releaseQueue) push(s *media.Sample) {
	q.lock.Lock()
	q.samples = append(q.samples, s)
	q.lock.Unlock()

	select {
	case q.trigger <- struct{}{}:
	default:
	}
}

func (q *releaseQueue) drain() []*media.Sample {
	q.lock.Lock()
	defer q.lock.Unlock()
	samples := q.samples
	q.samples = []*media.Sample{}
	return samples
}

func (p *Presenter) runReleaseLoop() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.freed.trigger:
			for _, s := range p.freed.drain() {
				p.onSampleFree(s)
			}
		}
	}
}

// releaseSample gives up a sample. Its buffer goes back to the pool
// asynchronously.
func (p *Presenter) releaseSample(s *media.Sample) {
	p.freed.push(s)
}

func (p *Presenter) onSampleFree(s *media.Sample) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.step.state == StepScheduled && p.step.scheduled == s {
		p.completeFrameStep(s)
	}
	if s.Buffer == nil {
		return
	}
	repooled, err := p.pool.Return(s.Buffer)
	if err != nil {
		slog.Warn("failed to return buffer", "buffer", s.Buffer.ID, "error", err)
		return
	}
	if repooled && !p.closed {
		p.processOutputLoop()
	}
}

// presentSample is called by the scheduler. It must not take the presenter
// lock.
func (p *Presenter) presentSample(s *media.Sample) error {
	defer p.releaseSample(s)

	if p.shutdown.Load() {
		return nil
	}
	frame, err := p.engine.MakeFrame(s)
	if err != nil {
		return err
	}
	if offset := time.Duration(p.positionOffset.Load()); offset != 0 && frame.HasTime {
		frame.StartTime += offset
		frame.EndTime += offset
	}
	frame.Rotation = media.Rotation(p.rotation.Load())

	p.host.Post(func() {
		if err := p.engine.Present(frame); err != nil {
			p.onPresentError(s, err)
		}
	})
	return nil
}

// repaint paints the output black.
func (p *Presenter) repaint() {
	p.host.Post(func() {
		if err := p.engine.Present(nil); err != nil {
			slog.Debug("repaint failed", "error", err)
		}
	})
}

func (p *Presenter) onPresentError(s *media.Sample, err error) {
	slog.Warn("failed to present sample", "sample-time", s.Time, "error", err)
	p.publish(Event{Type: EventPresentFailed, Err: err, Time: s.Time})
}

func (p *Presenter) onSampleDropped(s *media.Sample) {
	slog.Debug("sample dropped", "sample-time", s.Time)
	p.publish(Event{Type: EventSampleDropped, Time: s.Time})
}
