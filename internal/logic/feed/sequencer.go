// Package feed implements the feed cycle as a resumable state machine.
//
// The sequencer is driven by repeated calls to Resume from a single main loop.
// Every call runs until the next suspension point (a latch that is not yet set)
// and returns; the next call continues from exactly that point. There is one
// live suspension point at a time and the sequencer never blocks.
//
// One cycle:
//
//	Idle           wait for the trigger latch
//	AdvanceClear   gear forward until two consecutive "no hole" samples
//	AdvanceDetect  gear forward until two consecutive "hole" samples
//	Rewind         rewinder backward until tension is adequate
//	Idle           (cycle complete)
//
// Inside a motor phase, each step is followed by StepWait time-base tick
// consumptions before the sensor is sampled again.
package feed

import (
	"fmt"

	"github.com/cjeanneret/tapefeeder/internal/hw/stepper"
	"github.com/cjeanneret/tapefeeder/internal/logic/motion"
	"github.com/google/uuid"
)

// DefaultStepWait is the number of time-base ticks between two steps.
const DefaultStepWait = 10

// Signal is a consume-once latch.
type Signal interface {
	TestAndClear() bool
}

// Actuator issues one step on either or both axes.
type Actuator interface {
	Step(cmd motion.Command) error
}

// Sensors are the two photo-interrupter predicates.
type Sensors interface {
	HoleDetected() (bool, error)
	TensionAdequate() (bool, error)
}

// Inputs groups what the sequencer reads.
type Inputs struct {
	Trigger Signal // feed requested (trigger line or debounced button)
	Tick    Signal // time base
	Sensors Sensors
}

// Config tunes the cycle.
type Config struct {
	StepWait       uint8         // ticks between steps; 0 selects DefaultStepWait
	FaultStepLimit int           // steps a phase may issue before faulting; 0 never faults
	CycleID        func() string // feed cycle ID generator; nil uses UUIDv7
}

// Sequencer is the feed cycle state machine.
type Sequencer struct {
	in         Inputs
	act        Actuator
	observe    Observer
	stepWait   uint8
	faultLimit int
	cycleID    func() string

	started bool
	pos     Position
	history HoleHistory

	cycle       uint64
	currentID   string
	gearSteps   int
	rewindSteps int
}

// New creates a sequencer positioned at Idle.
func New(in Inputs, act Actuator, cfg Config) *Sequencer {
	if cfg.StepWait == 0 {
		cfg.StepWait = DefaultStepWait
	}
	if cfg.CycleID == nil {
		cfg.CycleID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	return &Sequencer{
		in:         in,
		act:        act,
		observe:    func(Event) {},
		stepWait:   cfg.StepWait,
		faultLimit: cfg.FaultStepLimit,
		cycleID:    cfg.CycleID,
	}
}

// OnEvent sets the observer for phase transitions.
func (s *Sequencer) OnEvent(o Observer) {
	if o == nil {
		o = func(Event) {}
	}
	s.observe = o
}

// Position returns the current suspension point.
func (s *Sequencer) Position() Position {
	return s.pos
}

// Phase returns the current phase.
func (s *Sequencer) Phase() Phase {
	return s.pos.Phase
}

// Cycle returns the number of feed requests accepted so far.
func (s *Sequencer) Cycle() uint64 {
	return s.cycle
}

// Resume runs the cycle until the next suspension point.
//
// A sensor or actuator error aborts only this call: the position is left at the
// failed sample or pending step, so the next call retries exactly there.
func (s *Sequencer) Resume() error {
	if !s.started {
		s.started = true
		s.emit(Event{Kind: EventPhase, Phase: PhaseIdle})
	}

	for {
		switch s.pos.Phase {
		case PhaseIdle:
			if !s.in.Trigger.TestAndClear() {
				return nil
			}
			s.cycle++
			s.currentID = s.cycleID()
			s.gearSteps, s.rewindSteps = 0, 0
			s.emit(Event{Kind: EventFeedRequested})
			s.enter(PhaseAdvanceClear)

		case PhaseFault:
			// one trigger acknowledges the fault; feeding needs another
			if !s.in.Trigger.TestAndClear() {
				return nil
			}
			s.enter(PhaseIdle)
			return nil

		case PhaseAdvanceClear, PhaseAdvanceDetect, PhaseRewind:
			suspended, err := s.runPhase()
			if err != nil {
				return fmt.Errorf("feed %s at %s: %w", s.pos.Phase, s.pos.Stage, err)
			}
			if suspended {
				return nil
			}

		default:
			return fmt.Errorf("feed: invalid phase %d", s.pos.Phase)
		}
	}
}

// runPhase drives the current motor phase. It returns suspended=false only when
// the phase exited into another phase that must run in the same call.
func (s *Sequencer) runPhase() (suspended bool, err error) {
	for {
		switch s.pos.Stage {
		case StageSample:
			done, err := s.sample()
			if err != nil {
				return true, err
			}
			if done {
				return s.exitPhase(), nil
			}
			s.pos.Stage = StageStep

		case StageStep:
			if s.faultLimit > 0 && s.pos.Steps >= s.faultLimit {
				s.fault()
				return true, nil
			}
			cmd := s.command()
			if err := s.act.Step(cmd); err != nil {
				return true, err
			}
			s.pos.Steps++
			if cmd.Gear != stepper.None {
				s.gearSteps++
			}
			if cmd.Rewinder != stepper.None {
				s.rewindSteps++
			}
			s.pos.Waited = 0
			s.pos.Stage = StageWait

		case StageWait:
			for s.pos.Waited < s.stepWait {
				if !s.in.Tick.TestAndClear() {
					return true, nil
				}
				s.pos.Waited++
			}
			s.pos.Stage = StageSample

		default:
			return true, fmt.Errorf("invalid stage %d", s.pos.Stage)
		}
	}
}

// sample reads the phase's sensor and reports whether the exit condition holds.
// The sample is recorded only when the read succeeds.
func (s *Sequencer) sample() (bool, error) {
	switch s.pos.Phase {
	case PhaseAdvanceClear, PhaseAdvanceDetect:
		hole, err := s.in.Sensors.HoleDetected()
		if err != nil {
			return false, err
		}
		s.history.Push(hole)
		return s.history.Settled(s.pos.Phase == PhaseAdvanceDetect), nil
	case PhaseRewind:
		return s.in.Sensors.TensionAdequate()
	}
	return false, fmt.Errorf("no sensor for phase %s", s.pos.Phase)
}

func (s *Sequencer) command() motion.Command {
	if s.pos.Phase == PhaseRewind {
		return motion.RewindBackward
	}
	return motion.GearForward
}

// exitPhase moves to the successor phase and reports whether to suspend.
func (s *Sequencer) exitPhase() bool {
	switch s.pos.Phase {
	case PhaseAdvanceClear:
		s.enter(PhaseAdvanceDetect)
		return false
	case PhaseAdvanceDetect:
		s.enter(PhaseRewind)
		return false
	default:
		s.emit(Event{Kind: EventCycleDone, Gear: s.gearSteps, Rewind: s.rewindSteps})
		s.enter(PhaseIdle)
		return true
	}
}

func (s *Sequencer) fault() {
	s.emit(Event{Kind: EventFault, Phase: s.pos.Phase, Steps: s.pos.Steps})
	s.pos = Position{Phase: PhaseFault}
}

func (s *Sequencer) enter(p Phase) {
	s.pos = Position{Phase: p}
	s.history.Reset()
	s.emit(Event{Kind: EventPhase, Phase: p})
}

func (s *Sequencer) emit(e Event) {
	// Idle belongs to no cycle
	if e.Kind != EventPhase || e.Phase != PhaseIdle {
		e.Cycle, e.CycleID = s.cycle, s.currentID
	}
	s.observe(e)
}
