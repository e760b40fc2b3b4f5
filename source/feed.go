// Package source provides mixers that feed the presenter with decoded
// frames.
package source

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/mengelbart/vpresent/presenter"
	"golang.org/x/time/rate"
)

const defaultLookahead = 4

// NotifyFunc delivers pipeline messages to the presenter.
// presenter.Presenter.ProcessMessage satisfies it.
type NotifyFunc func(msg presenter.Message, param uint32) error

// Feed paces decoded input at the frame rate and buffers at most lookahead
// items ahead of the consumer.
type Feed[T any] struct {
	interval  time.Duration
	lookahead int
	limiter   *rate.Limiter

	lock  sync.Mutex
	queue []T
	space chan struct{}
}

func NewFeed[T any](interval time.Duration, lookahead int) *Feed[T] {
	if lookahead <= 0 {
		lookahead = defaultLookahead
	}
	return &Feed[T]{
		interval:  interval,
		lookahead: lookahead,
		limiter:   rate.NewLimiter(rate.Every(interval), lookahead),
		lock:      sync.Mutex{},
		queue:     []T{},
		space:     make(chan struct{}, 1),
	}
}

// Run calls next for every input item and notifies the presenter of new
// input. When next returns io.EOF, Run sends end of stream and returns.
func (f *Feed[T]) Run(ctx context.Context, next func() (T, error), notify NotifyFunc) error {
	for {
		for f.Len() >= f.lookahead {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.space:
			}
		}
		if err := f.wait(ctx); err != nil {
			return err
		}
		item, err := next()
		if errors.Is(err, io.EOF) {
			return notify(presenter.MessageEndOfStream, 0)
		}
		if err != nil {
			return err
		}

		f.lock.Lock()
		f.queue = append(f.queue, item)
		f.lock.Unlock()

		if err = notify(presenter.MessageInputNotify, 0); err != nil {
			return err
		}
	}
}

// Pop removes the oldest buffered item.
func (f *Feed[T]) Pop() (T, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	var item T
	if len(f.queue) == 0 {
		return item, false
	}
	item, f.queue = f.queue[0], f.queue[1:]
	f.signal()
	return item, true
}

// Flush drops all buffered items.
func (f *Feed[T]) Flush() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.queue = f.queue[:0]
	f.signal()
}

func (f *Feed[T]) Len() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.queue)
}

// SetRate scales the input pace to the playback rate. A zero rate keeps
// the current pace.
func (f *Feed[T]) SetRate(r float64) {
	r = math.Abs(r)
	if r == 0 {
		return
	}
	f.limiter.SetLimit(rate.Every(f.interval) * rate.Limit(r))
}

// wait blocks until the limiter grants the next input. Unlike
// rate.Limiter.Wait it does not fail early on a context deadline.
func (f *Feed[T]) wait(ctx context.Context) error {
	r := f.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (f *Feed[T]) signal() {
	select {
	case f.space <- struct{}{}:
	default:
	}
}
