// Package host runs posted work on a single OS thread, the way a UI
// toolkit requires display calls to happen on the thread that owns the
// window.
package host

import (
	"runtime"
	"sync"
)

// Loop executes posted functions in FIFO order on one locked OS thread.
// Post never blocks.
type Loop struct {
	lock    sync.Mutex
	queue   []func()
	closed  bool
	trigger chan struct{}
	done    chan struct{}
}

func NewLoop() *Loop {
	l := &Loop{
		lock:    sync.Mutex{},
		queue:   []func(){},
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Post queues f. Functions posted after Close are dropped.
func (l *Loop) Post(f func()) {
	l.lock.Lock()
	if l.closed {
		l.lock.Unlock()
		return
	}
	l.queue = append(l.queue, f)
	l.lock.Unlock()

	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Close runs the remaining queued functions and stops the loop.
func (l *Loop) Close() error {
	l.lock.Lock()
	if l.closed {
		l.lock.Unlock()
		<-l.done
		return nil
	}
	l.closed = true
	l.lock.Unlock()

	select {
	case l.trigger <- struct{}{}:
	default:
	}
	<-l.done
	return nil
}

func (l *Loop) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)

	for range l.trigger {
		l.lock.Lock()
		batch := l.queue
		l.queue = []func(){}
		closed := l.closed
		l.lock.Unlock()

		for _, f := range batch {
			f()
		}
		if closed {
			l.lock.Lock()
			empty := len(l.queue) == 0
			l.lock.Unlock()
			if empty {
				return
			}
		}
	}
}
