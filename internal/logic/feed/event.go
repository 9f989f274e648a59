package feed

import "fmt"

// EventKind classifies sequencer events.
type EventKind uint8

const (
	EventPhase         EventKind = iota // a phase was entered
	EventFeedRequested                  // a trigger was consumed in Idle
	EventCycleDone                      // rewind finished; cycle complete
	EventFault                          // a phase exceeded the step limit
)

func (k EventKind) String() string {
	switch k {
	case EventPhase:
		return "phase"
	case EventFeedRequested:
		return "feed"
	case EventCycleDone:
		return "done"
	case EventFault:
		return "fault"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is published on every phase transition for log collaborators.
type Event struct {
	Kind    EventKind
	Phase   Phase  // entered phase, or the phase that faulted
	Cycle   uint64 // feed cycle ordinal; 0 before the first trigger
	CycleID string
	Steps   int // EventFault: steps issued in the faulted phase
	Gear    int // EventCycleDone: gear steps in the cycle
	Rewind  int // EventCycleDone: rewinder steps in the cycle
}

// Observer receives events synchronously from Resume and must not block.
type Observer func(Event)

// Message is the operator-facing log line for the event.
func (e Event) Message() string {
	switch e.Kind {
	case EventFeedRequested:
		return "Feed signal received"
	case EventCycleDone:
		return fmt.Sprintf("Feed cycle complete (gear=%d, rewinder=%d)", e.Gear, e.Rewind)
	case EventFault:
		return fmt.Sprintf("Fault: %s gave up after %d steps, press feed to acknowledge", e.Phase, e.Steps)
	}
	switch e.Phase {
	case PhaseIdle:
		return "Idle"
	case PhaseAdvanceClear:
		return "Gear forwarding until tape hole is not being detected"
	case PhaseAdvanceDetect:
		return "Gear forwarding until tape hole is being detected"
	case PhaseRewind:
		return "Film rewinding"
	default:
		return e.Phase.String()
	}
}
