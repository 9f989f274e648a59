package feed

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cjeanneret/tapefeeder/internal/hw/irq"
	"github.com/cjeanneret/tapefeeder/internal/logic/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSensors replays sample streams; the last sample repeats once exhausted.
type scriptedSensors struct {
	holes, tensions   []bool
	holeReads, tReads int
	failNext          error
}

func (s *scriptedSensors) HoleDetected() (bool, error) {
	if err := s.failNext; err != nil {
		s.failNext = nil
		return false, err
	}
	v := s.holes[min(s.holeReads, len(s.holes)-1)]
	s.holeReads++
	return v, nil
}

func (s *scriptedSensors) TensionAdequate() (bool, error) {
	if err := s.failNext; err != nil {
		s.failNext = nil
		return false, err
	}
	v := s.tensions[min(s.tReads, len(s.tensions)-1)]
	s.tReads++
	return v, nil
}

// countingLatch counts successful consumptions.
type countingLatch struct {
	irq.Latch
	consumed int
}

func (c *countingLatch) TestAndClear() bool {
	if c.Latch.TestAndClear() {
		c.consumed++
		return true
	}
	return false
}

type stepRecord struct {
	cmd   motion.Command
	phase Phase
	ticks int // tick consumptions before this step
}

type recordingActuator struct {
	steps    []stepRecord
	phaseOf  func() Phase
	ticks    *countingLatch
	failNext error
}

func (a *recordingActuator) Step(cmd motion.Command) error {
	if err := a.failNext; err != nil {
		a.failNext = nil
		return err
	}
	a.steps = append(a.steps, stepRecord{cmd: cmd, phase: a.phaseOf(), ticks: a.ticks.consumed})
	return nil
}

func (a *recordingActuator) count(p Phase) int {
	n := 0
	for _, s := range a.steps {
		if s.phase == p {
			n++
		}
	}
	return n
}

type rig struct {
	trigger irq.Latch
	tick    countingLatch
	sensors *scriptedSensors
	act     *recordingActuator
	seq     *Sequencer
	events  []Event
}

func newRig(holes, tensions []bool, cfg Config) *rig {
	r := &rig{sensors: &scriptedSensors{holes: holes, tensions: tensions}}
	r.act = &recordingActuator{ticks: &r.tick}
	n := 0
	if cfg.CycleID == nil {
		cfg.CycleID = func() string { n++; return fmt.Sprintf("cycle-%d", n) }
	}
	r.seq = New(Inputs{Trigger: &r.trigger, Tick: &r.tick, Sensors: r.sensors}, r.act, cfg)
	r.act.phaseOf = r.seq.Phase
	r.seq.OnEvent(func(e Event) { r.events = append(r.events, e) })
	return r
}

func (r *rig) resume(t *testing.T) {
	t.Helper()
	require.NoError(t, r.seq.Resume())
}

// runCycle requests a feed and resumes with one tick per call until Idle again.
func (r *rig) runCycle(t *testing.T) int {
	t.Helper()
	r.trigger.Set()
	r.resume(t)
	calls := 1
	for r.seq.Phase() != PhaseIdle {
		require.Less(t, calls, 100000, "cycle did not complete")
		r.tick.Set()
		r.resume(t)
		calls++
	}
	return calls
}

func (r *rig) phaseEvents() []Phase {
	var out []Phase
	for _, e := range r.events {
		if e.Kind == EventPhase {
			out = append(out, e.Phase)
		}
	}
	return out
}

func bools(s string) []bool {
	out := make([]bool, 0, len(s))
	for _, c := range s {
		out = append(out, c == '1')
	}
	return out
}

func TestSequencer_IdleWithoutTrigger(t *testing.T) {
	r := newRig(bools("0"), bools("1"), Config{})
	for i := 0; i < 10; i++ {
		r.tick.Set()
		r.resume(t)
	}
	assert.Equal(t, PhaseIdle, r.seq.Phase())
	assert.Empty(t, r.act.steps)
	assert.Equal(t, []Phase{PhaseIdle}, r.phaseEvents(), "Idle is announced once")
}

func TestSequencer_HoleClearExitIndex(t *testing.T) {
	cases := []struct {
		name  string
		holes string
		want  int // steps = index of the second consecutive "no hole" sample
	}{
		{"immediate", "00", 1},
		{"single_noise", "0100", 3},
		{"over_hole", "1100", 3},
		{"flicker", "110100", 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// after clearing, a solid hole stream ends phase 3 after one step
			r := newRig(bools(tc.holes+"11"), bools("1"), Config{StepWait: 1})
			r.runCycle(t)
			assert.Equal(t, tc.want, r.act.count(PhaseAdvanceClear))
			assert.Equal(t, 1, r.act.count(PhaseAdvanceDetect))
		})
	}
}

func TestSequencer_HoleDetectExitIndex(t *testing.T) {
	cases := []struct {
		name  string
		holes string
		want  int
	}{
		{"immediate", "11", 1},
		{"single_noise", "1011", 3},
		{"long_web", "0000011", 6},
		{"flicker", "0101011", 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig(bools("00"+tc.holes), bools("1"), Config{StepWait: 1})
			r.runCycle(t)
			assert.Equal(t, 1, r.act.count(PhaseAdvanceClear))
			assert.Equal(t, tc.want, r.act.count(PhaseAdvanceDetect))
		})
	}
}

func TestSequencer_AlreadyOverHoleStillClearsFirst(t *testing.T) {
	r := newRig(bools("11"+"00"+"11"), bools("1"), Config{StepWait: 2})
	r.runCycle(t)

	assert.Equal(t, []Phase{PhaseIdle, PhaseAdvanceClear, PhaseAdvanceDetect, PhaseRewind, PhaseIdle}, r.phaseEvents())
	assert.Equal(t, 3, r.act.count(PhaseAdvanceClear))
	assert.Equal(t, 1, r.act.count(PhaseAdvanceDetect))
	for _, s := range r.act.steps {
		assert.Equal(t, motion.GearForward, s.cmd)
	}
}

func TestSequencer_TensionAlreadyAdequate(t *testing.T) {
	r := newRig(bools("0011"), bools("1"), Config{StepWait: 1})
	r.trigger.Set()
	r.resume(t)

	// drive until rewind is about to be entered, then check it passes in one call
	for r.seq.Phase() != PhaseIdle {
		before := len(r.events)
		r.tick.Set()
		r.resume(t)
		for _, e := range r.events[before:] {
			if e.Kind == EventPhase && e.Phase == PhaseRewind {
				assert.Equal(t, PhaseIdle, r.seq.Phase(), "rewind with adequate tension completes in the same resumption")
			}
		}
	}
	assert.Zero(t, r.act.count(PhaseRewind))
	assert.Equal(t, 1, r.sensors.tReads)
	last := r.events[len(r.events)-2]
	assert.Equal(t, EventCycleDone, last.Kind)
	assert.Equal(t, 0, last.Rewind)
}

func TestSequencer_FullCycleCounts(t *testing.T) {
	holes := bools("110100" + "0101011")
	tension := bools("00001")
	r := newRig(holes, tension, Config{StepWait: 3})
	r.runCycle(t)

	assert.Equal(t, 5, r.act.count(PhaseAdvanceClear))
	assert.Equal(t, 6, r.act.count(PhaseAdvanceDetect))
	assert.Equal(t, 4, r.act.count(PhaseRewind))
	for _, s := range r.act.steps {
		if s.phase == PhaseRewind {
			assert.Equal(t, motion.RewindBackward, s.cmd)
		}
	}

	// exactly StepWait tick consumptions separate consecutive steps
	for i := 1; i < len(r.act.steps); i++ {
		assert.Equal(t, 3, r.act.steps[i].ticks-r.act.steps[i-1].ticks, "between step %d and %d", i-1, i)
	}

	done := r.events[len(r.events)-2]
	require.Equal(t, EventCycleDone, done.Kind)
	assert.Equal(t, 11, done.Gear)
	assert.Equal(t, 4, done.Rewind)
	assert.Equal(t, uint64(1), done.Cycle)
	assert.Equal(t, "cycle-1", done.CycleID)
}

func TestSequencer_ResumesAtExactPosition(t *testing.T) {
	r := newRig(bools("1100"+"11"), bools("01"), Config{StepWait: 2})
	r.resume(t)
	require.Equal(t, Position{Phase: PhaseIdle}, r.seq.Position())

	r.trigger.Set()
	r.resume(t)
	assert.Equal(t, Position{Phase: PhaseAdvanceClear, Stage: StageWait, Waited: 0, Steps: 1}, r.seq.Position())
	assert.Len(t, r.act.steps, 1)

	// no tick: nothing moves, nothing is re-run
	for i := 0; i < 5; i++ {
		r.resume(t)
	}
	assert.Equal(t, Position{Phase: PhaseAdvanceClear, Stage: StageWait, Waited: 0, Steps: 1}, r.seq.Position())
	assert.Len(t, r.act.steps, 1)
	assert.Equal(t, 1, r.sensors.holeReads)

	r.tick.Set()
	r.resume(t)
	assert.Equal(t, Position{Phase: PhaseAdvanceClear, Stage: StageWait, Waited: 1, Steps: 1}, r.seq.Position())

	r.resume(t)
	assert.Equal(t, uint8(1), r.seq.Position().Waited)

	r.tick.Set()
	r.resume(t)
	assert.Equal(t, Position{Phase: PhaseAdvanceClear, Stage: StageWait, Waited: 0, Steps: 2}, r.seq.Position())
	assert.Len(t, r.act.steps, 2)
	assert.Equal(t, 2, r.sensors.holeReads)
}

func TestSequencer_ScriptedTicksExactCommands(t *testing.T) {
	r := newRig(bools("0"+"00"+"11"), bools("001"), Config{StepWait: 2})
	r.trigger.Set()
	// one tick on every third iteration
	for i := 0; i < 60 && (i == 0 || r.seq.Phase() != PhaseIdle); i++ {
		if i%3 == 2 {
			r.tick.Set()
		}
		r.resume(t)
	}
	require.Equal(t, PhaseIdle, r.seq.Phase())

	var got []motion.Command
	for _, s := range r.act.steps {
		got = append(got, s.cmd)
	}
	want := []motion.Command{
		motion.GearForward, // clear: "0" then "0" -> one step
		motion.GearForward, // detect: "0" -> step
		motion.GearForward, // detect: "1" -> step, then "1" exits
		motion.RewindBackward,
		motion.RewindBackward,
	}
	assert.Equal(t, want, got)
}

func TestSequencer_StaleTickConsumedWithoutSuspending(t *testing.T) {
	r := newRig(bools("1"), bools("1"), Config{StepWait: 1})
	r.tick.Set() // set long before the cycle starts
	r.trigger.Set()
	r.resume(t)

	// step, stale tick consumed, sample, step: two steps in one resumption
	assert.Len(t, r.act.steps, 2)
}

func TestSequencer_TriggerCoalescesDuringCycle(t *testing.T) {
	r := newRig(bools("0011"), bools("1"), Config{StepWait: 1})
	r.trigger.Set()
	r.resume(t)
	r.trigger.Set()
	r.trigger.Set()
	for r.seq.Phase() != PhaseIdle {
		r.tick.Set()
		r.resume(t)
	}
	assert.Equal(t, uint64(1), r.seq.Cycle())

	r.sensors.holeReads = 0
	r.resume(t) // the pending trigger starts exactly one more cycle
	for r.seq.Phase() != PhaseIdle {
		r.tick.Set()
		r.resume(t)
	}
	r.resume(t)
	assert.Equal(t, uint64(2), r.seq.Cycle())
	assert.Equal(t, PhaseIdle, r.seq.Phase())
}

func TestSequencer_SensorErrorRetriesSameSample(t *testing.T) {
	sentinel := errors.New("gpio read")
	r := newRig(bools("1100"+"11"), bools("1"), Config{StepWait: 1})
	r.sensors.failNext = sentinel
	r.trigger.Set()

	err := r.seq.Resume()
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "advance-clear at sample")
	assert.Equal(t, Position{Phase: PhaseAdvanceClear, Stage: StageSample}, r.seq.Position())
	assert.Zero(t, r.sensors.holeReads)

	r.runCycleAfterTrigger(t)
	assert.Equal(t, 3, r.act.count(PhaseAdvanceClear))
}

func TestSequencer_ActuatorErrorRetriesPendingStep(t *testing.T) {
	sentinel := errors.New("bus error")
	r := newRig(bools("1100"+"11"), bools("1"), Config{StepWait: 1})
	r.act.failNext = sentinel
	r.trigger.Set()

	err := r.seq.Resume()
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, Position{Phase: PhaseAdvanceClear, Stage: StageStep}, r.seq.Position())
	assert.Equal(t, 1, r.sensors.holeReads)

	r.resume(t)
	assert.Equal(t, 1, r.sensors.holeReads, "pending step is retried without resampling")
	assert.Len(t, r.act.steps, 1)

	r.runCycleAfterTrigger(t)
	assert.Equal(t, 3, r.act.count(PhaseAdvanceClear))
	assert.Equal(t, 1, r.act.count(PhaseAdvanceDetect))
}

func (r *rig) runCycleAfterTrigger(t *testing.T) {
	t.Helper()
	for i := 0; r.seq.Phase() != PhaseIdle || i == 0; i++ {
		require.Less(t, i, 100000)
		r.tick.Set()
		r.resume(t)
	}
}

func TestSequencer_FaultAfterStepLimit(t *testing.T) {
	r := newRig(bools("1"), bools("1"), Config{StepWait: 1, FaultStepLimit: 3})
	r.trigger.Set()
	for i := 0; i < 20; i++ {
		r.tick.Set()
		r.resume(t)
	}
	assert.Equal(t, PhaseFault, r.seq.Phase())
	assert.Equal(t, 3, r.act.count(PhaseAdvanceClear))

	var fault *Event
	for i := range r.events {
		if r.events[i].Kind == EventFault {
			fault = &r.events[i]
		}
	}
	require.NotNil(t, fault)
	assert.Equal(t, PhaseAdvanceClear, fault.Phase)
	assert.Equal(t, 3, fault.Steps)

	// first press acknowledges, no motion
	r.trigger.Set()
	r.resume(t)
	assert.Equal(t, PhaseIdle, r.seq.Phase())
	assert.Equal(t, 3, len(r.act.steps))

	// second press feeds again
	r.trigger.Set()
	r.resume(t)
	assert.Equal(t, PhaseAdvanceClear, r.seq.Phase())
	assert.Equal(t, uint64(2), r.seq.Cycle())
}

func TestSequencer_NoFaultWhenDisabled(t *testing.T) {
	r := newRig(bools("1"), bools("1"), Config{StepWait: 1})
	r.trigger.Set()
	r.resume(t)
	for i := 1; i < 500; i++ {
		r.tick.Set()
		r.resume(t)
	}
	assert.Equal(t, PhaseAdvanceClear, r.seq.Phase(), "without a limit a stuck sensor suspends forever")
	assert.Equal(t, 500, r.act.count(PhaseAdvanceClear))
}

func TestSequencer_DefaultCycleIDIsUUID(t *testing.T) {
	var trigger, tick irq.Latch
	s := New(Inputs{Trigger: &trigger, Tick: &tick, Sensors: &scriptedSensors{holes: bools("1"), tensions: bools("1")}},
		&recordingActuator{phaseOf: func() Phase { return 0 }, ticks: &countingLatch{}}, Config{})
	var got []Event
	s.OnEvent(func(e Event) { got = append(got, e) })

	trigger.Set()
	require.NoError(t, s.Resume())
	require.GreaterOrEqual(t, len(got), 2)
	assert.Len(t, got[1].CycleID, 36)
	assert.Equal(t, uint64(1), got[1].Cycle)
	assert.Empty(t, got[0].CycleID, "startup Idle carries no cycle")
}
