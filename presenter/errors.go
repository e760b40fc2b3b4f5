package presenter

import "errors"

var (
	ErrShutdown            = errors.New("presenter is shut down")
	ErrNotInitialized      = errors.New("presenter not initialized")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNoPresentableFormat = errors.New("no presentable format")
	ErrInvalidFormat       = errors.New("invalid format")
	ErrUnsupportedRate     = errors.New("unsupported rate")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrUnknownMessage      = errors.New("unknown message")
)

// Errors returned by a Mixer.
var (
	ErrNeedMoreInput = errors.New("mixer needs more input")
	ErrFormatChanged = errors.New("mixer output format changed")
	ErrTypeNotSet    = errors.New("mixer output type not set")
	ErrNoMoreTypes   = errors.New("no more output types")
)
