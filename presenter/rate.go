package presenter

import (
	"math"
)

// SlowestRate returns the slowest supported playback rate. Any rate down to
// zero is supported.
func (p *Presenter) SlowestRate() (float64, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.checkShutdown(); err != nil {
		return 0, err
	}
	return 0, nil
}

// FastestRate returns the fastest supported playback rate in the given
// direction.
func (p *Presenter) FastestRate(reverse, thin bool) (float64, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.checkShutdown(); err != nil {
		return 0, err
	}
	rate := p.maxRate(thin)
	if reverse {
		rate = -rate
	}
	return rate, nil
}

// IsRateSupported checks rate and returns the nearest supported rate. The
// nearest rate is returned together with ErrUnsupportedRate if rate is too
// fast.
func (p *Presenter) IsRateSupported(thin bool, rate float64) (float64, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.checkShutdown(); err != nil {
		return 0, err
	}
	limit := p.maxRate(thin)
	if math.Abs(rate) <= limit {
		return rate, nil
	}
	if rate < 0 {
		return -limit, ErrUnsupportedRate
	}
	return limit, ErrUnsupportedRate
}

// maxRate is the display refresh rate divided by the frame rate, so that no
// frame has to be shown for less than one refresh. It is unbounded when
// thinning or when either rate is unknown.
func (p *Presenter) maxRate(thin bool) float64 {
	if thin || p.format == nil {
		return math.MaxFloat32
	}
	rr, ok := p.engine.(RefreshRater)
	if !ok {
		return math.MaxFloat32
	}
	hz := rr.RefreshRate()
	fps := p.format.FrameRate
	if hz <= 0 || !fps.Valid() {
		return math.MaxFloat32
	}
	return math.Round(float64(hz) * float64(fps.Den) / float64(fps.Num))
}
