package presenter

import (
	"fmt"
	"time"
)

type EventType int

const (
	// EventComplete is sent once after end of stream when every sample was
	// presented.
	EventComplete EventType = iota
	// EventStepComplete ends a frame step. Cancelled is set if the step was
	// aborted.
	EventStepComplete
	// EventScrubTime carries the time of a frame stepped to at rate zero.
	EventScrubTime
	// EventErrorAbort reports an error that stops the pipeline.
	EventErrorAbort
	// EventProcessingLatency carries the clock time the mixer spent
	// producing a sample.
	EventProcessingLatency
	EventSampleDropped
	// EventPresentFailed reports a frame that could not be displayed.
	// Playback continues.
	EventPresentFailed
)

func (t EventType) String() string {
	switch t {
	case EventComplete:
		return "complete"
	case EventStepComplete:
		return "step-complete"
	case EventScrubTime:
		return "scrub-time"
	case EventErrorAbort:
		return "error-abort"
	case EventProcessingLatency:
		return "processing-latency"
	case EventSampleDropped:
		return "sample-dropped"
	case EventPresentFailed:
		return "present-failed"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

type Event struct {
	Type      EventType
	Err       error
	Cancelled bool
	Time      time.Duration
	Latency   time.Duration
}

// control reports whether the pipeline depends on seeing e.
func (e Event) control() bool {
	switch e.Type {
	case EventComplete, EventStepComplete, EventErrorAbort:
		return true
	}
	return false
}

// Message is a command sent to the presenter by the pipeline.
type Message int

const (
	MessageFlush Message = iota
	MessageInvalidateFormat
	MessageBeginStreaming
	MessageEndStreaming
	MessageInputNotify
	MessageEndOfStream
	MessageStep
	MessageCancelStep
)

func (m Message) String() string {
	switch m {
	case MessageFlush:
		return "flush"
	case MessageInvalidateFormat:
		return "invalidate-format"
	case MessageBeginStreaming:
		return "begin-streaming"
	case MessageEndStreaming:
		return "end-streaming"
	case MessageInputNotify:
		return "input-notify"
	case MessageEndOfStream:
		return "end-of-stream"
	case MessageStep:
		return "step"
	case MessageCancelStep:
		return "cancel-step"
	}
	return fmt.Sprintf("Message(%d)", int(m))
}
