// Package pubsub fans messages out to independent subscriber queues.
package pubsub

import (
	"errors"
	"iter"
	"log/slog"
	"sync"
)

var (
	ErrQueueOverflow = errors.New("queue overflow")
	ErrClosed        = errors.New("topic closed")
)

type TopicOption[M any] func(*Topic[M])

// WithGuaranteed marks messages for which f returns true as guaranteed.
// Guaranteed messages are queued even when a subscriber's queue is full.
func WithGuaranteed[M any](f func(M) bool) TopicOption[M] {
	return func(t *Topic[M]) {
		t.guaranteed = f
	}
}

// Topic delivers every published message to all current subscribers. A
// slow subscriber loses ordinary messages instead of stalling the
// publisher. Guaranteed messages are never lost.
type Topic[M any] struct {
	name             string
	guaranteed       func(M) bool
	nextSubscriberID int
	lock             sync.Mutex
	subscribers      map[int]*subscriber[M]
	closed           bool
}

func NewTopic[M any](name string, opts ...TopicOption[M]) *Topic[M] {
	t := &Topic[M]{
		name:             name,
		guaranteed:       func(M) bool { return false },
		nextSubscriberID: 0,
		lock:             sync.Mutex{},
		subscribers:      map[int]*subscriber[M]{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Subscribe returns a sequence of messages published after the call. At
// most queueSize ordinary messages are buffered. The sequence ends when the
// topic is closed and the buffer is drained. Breaking out of the loop
// unsubscribes.
func (t *Topic[M]) Subscribe(queueSize int) (iter.Seq[M], error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	id := t.nextSubscriberID
	t.nextSubscriberID++
	s := newSubscriber[M](queueSize)
	t.subscribers[id] = s

	return func(yield func(M) bool) {
		for {
			msg, ok, done := s.pop()
			if ok {
				if !yield(msg) {
					t.unsubscribe(id)
					return
				}
				continue
			}
			if done {
				return
			}
			<-s.signal
		}
	}, nil
}

func (t *Topic[M]) unsubscribe(id int) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if s, ok := t.subscribers[id]; ok {
		delete(t.subscribers, id)
		s.close()
	}
}

// Publish hands msg to every subscriber without blocking. It returns
// ErrQueueOverflow if at least one subscriber had to drop it.
func (t *Topic[M]) Publish(msg M) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.closed {
		return ErrClosed
	}
	keep := t.guaranteed(msg)
	var err error
	for id, s := range t.subscribers {
		if !s.push(msg, keep) {
			slog.Warn("subscriber queue overflow", "topic", t.name, "subscriber", id)
			err = ErrQueueOverflow
		}
	}
	return err
}

// Close ends all subscriptions once their queues are drained. It is safe to
// call more than once.
func (t *Topic[M]) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for id, s := range t.subscribers {
		delete(t.subscribers, id)
		s.close()
	}
	return nil
}

type subscriber[M any] struct {
	lock      sync.Mutex
	queue     []M
	queueSize int
	closed    bool
	signal    chan struct{}
}

func newSubscriber[M any](queueSize int) *subscriber[M] {
	return &subscriber[M]{
		lock:      sync.Mutex{},
		queue:     []M{},
		queueSize: queueSize,
		signal:    make(chan struct{}, 1),
	}
}

func (s *subscriber[M]) push(msg M, keep bool) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return true
	}
	if !keep && len(s.queue) >= s.queueSize {
		return false
	}
	s.queue = append(s.queue, msg)
	s.notify()
	return true
}

func (s *subscriber[M]) pop() (msg M, ok bool, done bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.queue) > 0 {
		msg = s.queue[0]
		s.queue = s.queue[1:]
		return msg, true, false
	}
	return msg, false, s.closed
}

func (s *subscriber[M]) close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	s.notify()
}

func (s *subscriber[M]) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}
