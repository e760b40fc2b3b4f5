// Package pool implements a bounded pool of reusable frame buffers.
//
// Every buffer carries the generation token that was current when the pool
// was seeded. Invalidate bumps the generation so that buffers still in
// flight are discarded on return instead of being handed out again.
package pool

import (
	"errors"
	"sync"

	"github.com/mengelbart/vpresent/media"
	"github.com/pion/logging"
)

var (
	ErrAlreadyInitialized = errors.New("pool already initialized")
	ErrNotInitialized     = errors.New("pool not initialized")
	ErrDoubleReturn       = errors.New("buffer returned twice")
)

type Option func(*Pool) error

func WithLoggerFactory(lf logging.LoggerFactory) Option {
	return func(p *Pool) error {
		p.log = lf.NewLogger("pool")
		return nil
	}
}

type Pool struct {
	log logging.LeveledLogger

	lock        sync.Mutex
	initialized bool
	generation  uint32
	capacity    int

	// idle buffers, taken from the front and returned to the back
	idle []*media.Buffer
	// checked out buffers by identity
	out map[*media.Buffer]struct{}
}

func New(opts ...Option) (*Pool, error) {
	p := &Pool{
		log:  logging.NewDefaultLoggerFactory().NewLogger("pool"),
		lock: sync.Mutex{},
		idle: []*media.Buffer{},
		out:  map[*media.Buffer]struct{}{},
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Initialize seeds the pool with buffers and stamps each of them with the
// current generation.
func (p *Pool) Initialize(buffers []*media.Buffer) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.initialized {
		return ErrAlreadyInitialized
	}
	for _, b := range buffers {
		b.Token = p.generation
		p.idle = append(p.idle, b)
	}
	p.capacity = len(buffers)
	p.initialized = true
	p.log.Debugf("initialized with %v buffers, generation %v", len(buffers), p.generation)
	return nil
}

// Take hands out the next idle buffer. It returns false if no buffer is
// available, which callers treat as a transient condition.
func (p *Pool) Take() (*media.Buffer, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.initialized {
		p.log.Warn("take on uninitialized pool")
		return nil, false
	}
	if len(p.idle) == 0 {
		return nil, false
	}
	b := p.idle[0]
	p.idle[0] = nil
	p.idle = p.idle[1:]
	p.out[b] = struct{}{}
	return b, true
}

// Return puts a buffer back. Buffers from an older generation are dropped
// and Return reports false.
func (p *Pool) Return(b *media.Buffer) (bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if b.Token != p.generation || !p.initialized {
		p.log.Tracef("discarding stale buffer %v (token %v, generation %v)", b.ID, b.Token, p.generation)
		delete(p.out, b)
		return false, nil
	}
	if _, ok := p.out[b]; !ok {
		return false, ErrDoubleReturn
	}
	delete(p.out, b)
	p.idle = append(p.idle, b)
	return true, nil
}

// Clear empties the pool and marks it uninitialized. Buffers still checked
// out are forgotten; return them after Invalidate to have them discarded.
func (p *Pool) Clear() {
	p.lock.Lock()
	defer p.lock.Unlock()

	clear(p.idle)
	p.idle = p.idle[:0]
	clear(p.out)
	p.capacity = 0
	p.initialized = false
}

// Invalidate starts a new generation and returns it.
func (p *Pool) Invalidate() uint32 {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.generation++
	return p.generation
}

func (p *Pool) Generation() uint32 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.generation
}

func (p *Pool) Initialized() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.initialized
}

func (p *Pool) Available() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.idle)
}

func (p *Pool) Outstanding() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.out)
}

func (p *Pool) Capacity() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.capacity
}
