package sim

import (
	"fmt"
	"strings"

	"github.com/cjeanneret/tapefeeder/internal/config"
	"github.com/cjeanneret/tapefeeder/internal/feeder"
	"github.com/cjeanneret/tapefeeder/internal/hw/gpio"
	"github.com/cjeanneret/tapefeeder/internal/hw/stepper"
	"github.com/cjeanneret/tapefeeder/internal/logic/feed"
)

// Trace is the observable outcome of a scenario.
type Trace struct {
	Name     string
	Lines    []string
	Cycles   uint64
	Gear     int
	Rewinder int
	Errors   int
	Final    feed.Position
}

func (t *Trace) add(frame int, format string, args ...any) {
	t.Lines = append(t.Lines, fmt.Sprintf("%04d ", frame)+fmt.Sprintf(format, args...))
}

func (t *Trace) event(frame int, e feed.Event) {
	var b strings.Builder
	b.WriteString("event ")
	b.WriteString(e.Kind.String())
	if e.Kind == feed.EventPhase {
		b.WriteString(" " + e.Phase.String())
	}
	if e.Cycle > 0 {
		fmt.Fprintf(&b, " cycle=%d", e.Cycle)
	}
	fmt.Fprintf(&b, " %q", e.Message())
	t.add(frame, "%s", b.String())
}

// String renders the trace in the golden file format.
func (t *Trace) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s\n", t.Name)
	for _, l := range t.Lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "summary cycles=%d gear=%d rewinder=%d errors=%d final=%s\n",
		t.Cycles, t.Gear, t.Rewinder, t.Errors, t.Final)
	return b.String()
}

// Run executes sc against the default board wiring on a simulated driver.
func Run(sc *Scenario) (*Trace, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	cfg := config.Default()
	cfg.Timing.FaultStepLimit = sc.FaultStepLimit
	cfg.Apply(config.Overrides{StepWaitTicks: sc.StepWaitTicks, MaxBounce: sc.MaxBounce})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wiring := feeder.ConfigFrom(&cfg)
	wiring.LoopIdle = 0

	tr := &Trace{Name: sc.Name}
	frame := 0
	ids := 0

	drv := NewDriver()
	clock := &feeder.ManualClock{}
	f, err := feeder.New(drv, wiring,
		feeder.WithClock(clock),
		feeder.WithCycleID(func() string { ids++; return fmt.Sprintf("sim-%d", ids) }),
		feeder.WithObserver(func(e feed.Event) { tr.event(frame, e) }),
	)
	if err != nil {
		return nil, fmt.Errorf("build feeder: %w", err)
	}

	axes := map[int]stepper.Config{
		wiring.Gear.StepPin:     wiring.Gear,
		wiring.Rewinder.StepPin: wiring.Rewinder,
	}
	drv.OnPulse(func(pin int) {
		axis, ok := axes[pin]
		if !ok {
			return
		}
		dir := direction(drv.Level(axis.DirPin), axis.InvertDir)
		if axis.Name == wiring.Gear.Name {
			tr.Gear++
		} else {
			tr.Rewinder++
		}
		tr.add(frame, "step %s %s", axis.Name, dir)
	})

	setHole(drv, wiring, sc.Hole)
	setTension(drv, wiring, sc.Tension)
	drv.Set(wiring.ButtonPin, gpio.High)

	for _, fr := range sc.Frames {
		for r := 0; r < max(fr.Repeat, 1); r++ {
			apply(drv, wiring, fr)
			if fr.Trigger {
				f.Trigger().Set()
			}
			if fr.Tick {
				f.Tick().Set()
			}
			if err := f.Iterate(); err != nil {
				tr.Errors++
				tr.add(frame, "error %v", err)
			}
			clock.Advance(1)
			frame++
		}
	}

	tr.Cycles = f.Cycle()
	tr.Final = f.Position()
	return tr, nil
}

func apply(drv *Driver, w feeder.Config, fr Frame) {
	if fr.Button != nil {
		// active low
		drv.Set(w.ButtonPin, gpio.Level(!*fr.Button))
	}
	if fr.Hole != nil {
		setHole(drv, w, *fr.Hole)
	}
	if fr.Tension != nil {
		setTension(drv, w, *fr.Tension)
	}
	pins := map[string]int{"hole": w.Sensors.HolePin, "tension": w.Sensors.TensionPin, "button": w.ButtonPin}
	if pin, ok := pins[fr.Fail]; ok {
		drv.FailNextRead(pin, fmt.Errorf("sim: injected read failure on pin %d", pin))
	}
}

func setHole(drv *Driver, w feeder.Config, hole bool) {
	drv.Set(w.Sensors.HolePin, gpio.Level(!hole))
}

func setTension(drv *Driver, w feeder.Config, adequate bool) {
	drv.Set(w.Sensors.TensionPin, gpio.Level(adequate))
}

// direction decodes a DIR level the way stepper.SetDirection encodes it.
func direction(dir gpio.Level, invert bool) stepper.Direction {
	forward := dir == gpio.High
	if invert {
		forward = !forward
	}
	if forward {
		return stepper.Forward
	}
	return stepper.Backward
}
