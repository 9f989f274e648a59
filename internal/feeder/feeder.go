// Package feeder owns the feeder's runtime state and runs the main loop.
//
// Every iteration resumes the feed sequencer once and, on each new millisecond,
// polls the button monitor. Interrupt producers only ever set the two latches.
package feeder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/tapefeeder/internal/debug"
	"github.com/cjeanneret/tapefeeder/internal/events"
	"github.com/cjeanneret/tapefeeder/internal/hw/gpio"
	"github.com/cjeanneret/tapefeeder/internal/hw/irq"
	"github.com/cjeanneret/tapefeeder/internal/hw/sensor"
	"github.com/cjeanneret/tapefeeder/internal/hw/stepper"
	"github.com/cjeanneret/tapefeeder/internal/logic/feed"
	"github.com/cjeanneret/tapefeeder/internal/logic/motion"
	"github.com/cjeanneret/tapefeeder/internal/logic/trigger"
)

// Config is the wiring of one feeder.
type Config struct {
	ButtonPin      int
	InputPin       int
	MaxBounce      uint8
	Gear           stepper.Config
	Rewinder       stepper.Config
	Sensors        sensor.Config
	Timing         motion.Timing
	StepWait       uint8
	FaultStepLimit int
	TickPeriod     time.Duration
	LoopIdle       time.Duration
}

// Option customises a Feeder.
type Option func(*Feeder)

// WithClock replaces the millisecond clock.
func WithClock(c Clock) Option {
	return func(f *Feeder) { f.clock = c }
}

// WithBus publishes sequencer events on b.
func WithBus(b *events.Bus) Option {
	return func(f *Feeder) { f.bus = b }
}

// WithCycleID replaces the feed cycle ID generator.
func WithCycleID(gen func() string) Option {
	return func(f *Feeder) { f.cycleID = gen }
}

// WithObserver adds a synchronous event observer, called after logging.
func WithObserver(o feed.Observer) Option {
	return func(f *Feeder) { f.observers = append(f.observers, o) }
}

// Feeder is the owning context: latches, monitor, sequencer, actuator and sensors.
type Feeder struct {
	cfg Config

	trigger irq.Latch
	tick    irq.Latch

	monitor *trigger.Monitor
	motion  *motion.Controller
	sensors *sensor.Sampler
	seq     *feed.Sequencer

	clock     Clock
	bus       *events.Bus
	cycleID   func() string
	observers []feed.Observer

	lastMs  uint64
	polled  bool
	errs    uint64
	lastErr string
}

// New configures all pins on g and builds the feeder at Idle.
func New(g gpio.Driver, cfg Config, opts ...Option) (*Feeder, error) {
	f := &Feeder{cfg: cfg}
	for _, opt := range opts {
		opt(f)
	}
	if f.clock == nil {
		f.clock = NewSystemClock()
	}

	gear := stepper.NewStepper(g, cfg.Gear)
	rewinder := stepper.NewStepper(g, cfg.Rewinder)
	f.motion = motion.NewController(gear, rewinder, cfg.Timing)

	var err error
	if f.sensors, err = sensor.NewSampler(g, cfg.Sensors); err != nil {
		return nil, err
	}
	if f.monitor, err = trigger.NewMonitor(g, cfg.ButtonPin, cfg.MaxBounce, &f.trigger); err != nil {
		return nil, err
	}
	if err := g.SetupPin(cfg.InputPin, gpio.InputPullUp); err != nil {
		return nil, fmt.Errorf("setup trigger input pin %d: %w", cfg.InputPin, err)
	}

	f.seq = feed.New(feed.Inputs{
		Trigger: &f.trigger,
		Tick:    &f.tick,
		Sensors: f.sensors,
	}, f.motion, feed.Config{
		StepWait:       cfg.StepWait,
		FaultStepLimit: cfg.FaultStepLimit,
		CycleID:        f.cycleID,
	})
	f.seq.OnEvent(f.publish)
	return f, nil
}

func (f *Feeder) publish(e feed.Event) {
	events.Log(e)
	if f.bus != nil {
		f.bus.Publish(e)
	}
	for _, o := range f.observers {
		o(e)
	}
}

// Trigger is the feed request latch, set by the trigger line producer and the button monitor.
func (f *Feeder) Trigger() *irq.Latch { return &f.trigger }

// Tick is the time base latch.
func (f *Feeder) Tick() *irq.Latch { return &f.tick }

// Position returns where the sequencer will resume.
func (f *Feeder) Position() feed.Position { return f.seq.Position() }

// Cycle returns the number of accepted feed requests.
func (f *Feeder) Cycle() uint64 { return f.seq.Cycle() }

// Errors returns how many iterations reported an I/O error.
func (f *Feeder) Errors() uint64 { return f.errs }

// Iterate runs one main loop iteration: one sequencer resumption, then a
// button poll if the millisecond counter moved since the last poll.
func (f *Feeder) Iterate() error {
	err := f.seq.Resume()

	now := f.clock.Millis()
	if !f.polled || now != f.lastMs {
		f.polled = true
		f.lastMs = now
		if perr := f.monitor.Poll(); perr != nil {
			err = errors.Join(err, perr)
		}
	}
	return err
}

// Run enables the drivers and iterates until ctx is done. I/O errors are
// logged and never stop the loop.
func (f *Feeder) Run(ctx context.Context) error {
	if err := f.motion.EnableMotors(); err != nil {
		return fmt.Errorf("enable motors: %w", err)
	}
	defer func() {
		if err := f.motion.DisableMotors(); err != nil {
			debug.Error(fmt.Errorf("disable motors: %w", err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		f.report(f.Iterate())
		if f.cfg.LoopIdle > 0 {
			time.Sleep(f.cfg.LoopIdle)
		}
	}
}

// report logs err, repeating a message only after a different one.
func (f *Feeder) report(err error) {
	if err == nil {
		f.lastErr = ""
		return
	}
	f.errs++
	if msg := err.Error(); msg != f.lastErr {
		f.lastErr = msg
		debug.Error(err)
	}
}
