package presenter

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mengelbart/vpresent/media"
)

// renegotiate walks the mixer's candidate output types and commits the
// first one that the engine can present and the mixer accepts.
func (p *Presenter) renegotiate() error {
	if p.mixer == nil {
		return ErrInvalidRequest
	}
	var lastErr error
	for i := 0; ; i++ {
		candidate, err := p.mixer.OutputAvailableType(i)
		if errors.Is(err, ErrNoMoreTypes) {
			break
		}
		if err != nil {
			lastErr = err
			break
		}
		if err = p.tryFormat(candidate); err != nil {
			slog.Debug("rejecting output format", "index", i, "format", candidate, "error", err)
			lastErr = err
			continue
		}
		slog.Info("negotiated output format", "format", candidate)
		return nil
	}
	err := ErrNoPresentableFormat
	if lastErr != nil {
		err = fmt.Errorf("%w: %w", ErrNoPresentableFormat, lastErr)
	}
	slog.Error("format negotiation failed", "error", err)
	p.publish(Event{Type: EventErrorAbort, Err: err})
	return err
}

func (p *Presenter) tryFormat(candidate media.Format) error {
	if err := p.checkFormat(candidate); err != nil {
		return err
	}
	optimal := p.optimalFormat(candidate)
	if err := p.mixer.SetOutputType(&optimal, true); err != nil {
		return err
	}
	if err := p.setFormat(&optimal); err != nil {
		return err
	}
	if err := p.mixer.SetOutputType(&optimal, false); err != nil {
		p.setFormat(nil)
		return err
	}
	return nil
}

// checkFormat rejects formats the presenter cannot display.
func (p *Presenter) checkFormat(f media.Format) error {
	if f.Pixel == media.Invalid {
		return fmt.Errorf("%w: unknown pixel format", ErrInvalidFormat)
	}
	if f.Compressed {
		return fmt.Errorf("%w: compressed", ErrInvalidFormat)
	}
	if err := p.engine.CheckFormat(f); err != nil {
		return err
	}
	if f.Interlaced {
		return fmt.Errorf("%w: interlaced", ErrInvalidFormat)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return nil
}

// optimalFormat copies f with the output area set to the crop rectangle or
// the full frame, and pan/scan disabled.
func (p *Presenter) optimalFormat(f media.Format) media.Format {
	out := media.Rect{Width: f.Width, Height: f.Height}
	if p.cropRect != nil && !p.cropRect.Empty() && p.cropRect.Within(f.Width, f.Height) {
		out = *p.cropRect
	}
	area := media.Rect{Width: out.Width, Height: out.Height}

	optimal := f
	optimal.PanScanEnabled = false
	geometric, panScan, minimum := area, area, area
	optimal.Geometric = &geometric
	optimal.PanScan = &panScan
	optimal.MinimumDisplay = &minimum
	return optimal
}

// setFormat switches to format f and allocates buffers for it. A nil format
// releases all resources and is legal in every state.
func (p *Presenter) setFormat(f *media.Format) error {
	if f == nil {
		p.format = nil
		p.releaseResources()
		return nil
	}
	if err := p.checkShutdown(); err != nil {
		return err
	}
	rotation := media.RotationNone
	if r, ok := p.mixer.(Rotator); ok {
		rotation = r.Rotation()
	}
	p.rotation.Store(int32(rotation))

	if p.format.Equal(f) {
		return nil
	}

	p.format = nil
	p.releaseResources()

	buffers, err := p.engine.CreateBuffers(*f, p.bufferCount)
	if err != nil {
		p.releaseResources()
		return fmt.Errorf("create buffers: %w", err)
	}
	if err = p.pool.Initialize(buffers); err != nil {
		p.releaseResources()
		return err
	}

	fps := f.FrameRate
	if !fps.Valid() {
		fps = media.DefaultFrameRate
	}
	p.scheduler.SetFrameRate(fps)

	format := *f
	p.format = &format
	return nil
}

// releaseResources invalidates all buffers in flight before flushing, so
// that they are discarded instead of recycled when they come back.
func (p *Presenter) releaseResources() {
	p.pool.Invalidate()
	p.flush()
	p.pool.Clear()
	p.engine.ReleaseResources()
}
