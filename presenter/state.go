package presenter

type RenderState int

const (
	RenderShutdown RenderState = iota
	RenderStopped
	RenderStarted
	RenderPaused
)

func (s RenderState) String() string {
	switch s {
	case RenderShutdown:
		return "shutdown"
	case RenderStopped:
		return "stopped"
	case RenderStarted:
		return "started"
	case RenderPaused:
		return "paused"
	}
	return "unknown"
}

// active reports whether the clock is running or paused.
func (s RenderState) active() bool {
	return s == RenderStarted || s == RenderPaused
}

var renderTransitions = map[RenderState][]RenderState{
	RenderShutdown: {RenderStopped},
	RenderStopped:  {RenderStarted, RenderPaused},
	RenderStarted:  {RenderStopped, RenderPaused},
	RenderPaused:   {RenderStarted, RenderStopped},
}

// CanTransition reports whether the render state may change from s to to.
// Shutdown is reachable from every state and staying put is always legal.
func (s RenderState) CanTransition(to RenderState) bool {
	if s == to || to == RenderShutdown {
		return true
	}
	for _, next := range renderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type FrameStepState int

const (
	StepNone FrameStepState = iota
	StepWaitingForClockStart
	StepPending
	StepScheduled
	StepComplete
)

func (s FrameStepState) String() string {
	switch s {
	case StepNone:
		return "none"
	case StepWaitingForClockStart:
		return "waiting-for-clock-start"
	case StepPending:
		return "pending"
	case StepScheduled:
		return "scheduled"
	case StepComplete:
		return "complete"
	}
	return "unknown"
}

var stepTransitions = map[FrameStepState][]FrameStepState{
	StepNone:                 {StepWaitingForClockStart},
	StepWaitingForClockStart: {StepPending},
	StepPending:              {StepScheduled, StepWaitingForClockStart},
	StepScheduled:            {StepComplete, StepWaitingForClockStart},
	StepComplete:             {StepWaitingForClockStart},
}

// CanTransition reports whether the frame step state may change from s to
// to while rendering is in state render. A step can only begin while the
// clock is started or paused. Returning to None is always legal.
func (s FrameStepState) CanTransition(to FrameStepState, render RenderState) bool {
	if s == to || to == StepNone {
		return true
	}
	if s == StepNone && !render.active() {
		return false
	}
	for _, next := range stepTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
