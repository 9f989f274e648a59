package feed

import "fmt"

// Phase is a top-level state of the feed cycle.
type Phase uint8

const (
	PhaseIdle          Phase = iota // waiting for a feed request
	PhaseAdvanceClear               // gear forward until two "no hole" samples
	PhaseAdvanceDetect              // gear forward until two "hole" samples
	PhaseRewind                     // rewinder backward until tension is adequate
	PhaseFault                      // step limit exceeded; waiting for operator acknowledge
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAdvanceClear:
		return "advance-clear"
	case PhaseAdvanceDetect:
		return "advance-detect"
	case PhaseRewind:
		return "rewind"
	case PhaseFault:
		return "fault"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Stage is the suspension point inside a motor phase.
type Stage uint8

const (
	StageSample Stage = iota // about to read the phase's sensor
	StageStep                // sensor read did not satisfy the exit condition; step pending
	StageWait                // step issued; consuming time-base ticks
)

func (s Stage) String() string {
	switch s {
	case StageSample:
		return "sample"
	case StageStep:
		return "step"
	case StageWait:
		return "wait"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// Position identifies exactly where the sequencer will resume.
type Position struct {
	Phase  Phase
	Stage  Stage
	Waited uint8 // ticks consumed so far in StageWait
	Steps  int   // steps issued in the current phase
}

func (p Position) String() string {
	if p.Phase == PhaseIdle || p.Phase == PhaseFault {
		return p.Phase.String()
	}
	return fmt.Sprintf("%s/%s waited=%d steps=%d", p.Phase, p.Stage, p.Waited, p.Steps)
}
