package motion

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/tapefeeder/internal/debug"
	"github.com/cjeanneret/tapefeeder/internal/hw/stepper"
)

// Command is one step request for both axes. It is consumed by Step and never stored.
type Command struct {
	Gear     stepper.Direction
	Rewinder stepper.Direction
}

// GearForward and RewindBackward are the two commands the feed cycle issues.
var (
	GearForward    = Command{Gear: stepper.Forward}
	RewindBackward = Command{Rewinder: stepper.Backward}
)

func (c Command) String() string {
	return fmt.Sprintf("gear=%s rewinder=%s", c.Gear, c.Rewinder)
}

// Timing is the pulse envelope shared by both axes.
type Timing struct {
	DirSettle  time.Duration // DIR setup time before the STEP edge
	PulseWidth time.Duration // STEP high time
}

// DefaultTiming matches common A4988/DRV8825 minimums.
var DefaultTiming = Timing{
	DirSettle:  300 * time.Nanosecond,
	PulseWidth: 1 * time.Microsecond,
}

// Controller drives the gear (film sprocket) and rewinder (take-up) steppers.
// It's the layer between the feed sequencer and low-level STEP/DIR GPIO.
type Controller struct {
	gear     *stepper.Stepper
	rewinder *stepper.Stepper
	timing   Timing
}

func NewController(gear, rewinder *stepper.Stepper, timing Timing) *Controller {
	return &Controller{
		gear:     gear,
		rewinder: rewinder,
		timing:   timing,
	}
}

// Step sets both DIR outputs, waits for the settle time, raises STEP on every axis
// whose direction is not None, holds for the pulse width, then lowers both STEP outputs.
// It busy-waits for the (sub-)microsecond delays.
func (c *Controller) Step(cmd Command) error {
	if err := c.gear.SetDirection(cmd.Gear); err != nil {
		return fmt.Errorf("gear direction: %w", err)
	}
	if err := c.rewinder.SetDirection(cmd.Rewinder); err != nil {
		return fmt.Errorf("rewinder direction: %w", err)
	}
	spin(c.timing.DirSettle)

	var errs []error
	if cmd.Gear != stepper.None {
		debug.Motor(c.gear.Name(), cmd.Gear.String())
		if err := c.gear.StepHigh(); err != nil {
			errs = append(errs, fmt.Errorf("gear step: %w", err))
		}
	}
	if cmd.Rewinder != stepper.None {
		debug.Motor(c.rewinder.Name(), cmd.Rewinder.String())
		if err := c.rewinder.StepHigh(); err != nil {
			errs = append(errs, fmt.Errorf("rewinder step: %w", err))
		}
	}
	spin(c.timing.PulseWidth)

	// Both STEP lines always return to idle, even after a failed rising edge.
	if err := c.gear.StepLow(); err != nil {
		errs = append(errs, fmt.Errorf("gear step release: %w", err))
	}
	if err := c.rewinder.StepLow(); err != nil {
		errs = append(errs, fmt.Errorf("rewinder step release: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Controller) EnableMotors() error {
	if err := c.gear.Enable(); err != nil {
		return err
	}
	return c.rewinder.Enable()
}

// DisableMotors releases holding torque on both axes (used on shutdown).
func (c *Controller) DisableMotors() error {
	return errors.Join(c.gear.Disable(), c.rewinder.Disable())
}

// spin busy-waits for d. time.Sleep cannot resolve sub-microsecond delays.
func spin(d time.Duration) {
	if d <= 0 {
		return
	}
	start := time.Now()
	for time.Since(start) < d {
	}
}
