//go:build !tinygo

package feeder

import (
	"context"

	"github.com/cjeanneret/tapefeeder/internal/config"
	"github.com/cjeanneret/tapefeeder/internal/debug"
	"github.com/cjeanneret/tapefeeder/internal/hw/gpio"
	"github.com/cjeanneret/tapefeeder/internal/hw/irq"
	"github.com/cjeanneret/tapefeeder/internal/hw/sensor"
	"github.com/cjeanneret/tapefeeder/internal/hw/stepper"
	"github.com/cjeanneret/tapefeeder/internal/logic/motion"
)

// ConfigFrom maps the YAML configuration onto the feeder wiring.
func ConfigFrom(c *config.Config) Config {
	return Config{
		ButtonPin: c.Trigger.ButtonPin,
		InputPin:  c.Trigger.InputPin,
		MaxBounce: c.MaxBounce(),
		Gear: stepper.Config{
			Name:      "gear",
			StepPin:   c.GearStepper.StepPin,
			DirPin:    c.GearStepper.DirPin,
			EnablePin: c.GearStepper.EnablePin,
			InvertDir: c.GearStepper.InvertDir,
		},
		Rewinder: stepper.Config{
			Name:      "rewinder",
			StepPin:   c.RewinderStepper.StepPin,
			DirPin:    c.RewinderStepper.DirPin,
			EnablePin: c.RewinderStepper.EnablePin,
			InvertDir: c.RewinderStepper.InvertDir,
		},
		Sensors: sensor.Config{
			HolePin:    c.Sensors.HolePin,
			TensionPin: c.Sensors.TensionPin,
		},
		Timing: motion.Timing{
			DirSettle:  c.DirSettle(),
			PulseWidth: c.PulseWidth(),
		},
		StepWait:       c.StepWait(),
		FaultStepLimit: c.Timing.FaultStepLimit,
		TickPeriod:     c.TickPeriod(),
		LoopIdle:       c.LoopIdle(),
	}
}

// StartProducers starts the time base and, when g can detect edges, the trigger
// line watcher. Both stop with ctx.
func (f *Feeder) StartProducers(ctx context.Context, g gpio.Driver) error {
	irq.StartTimeBase(ctx, f.cfg.TickPeriod, &f.tick)
	det, ok := g.(gpio.EdgeDetector)
	if !ok {
		debug.Info("GPIO driver has no edge detection, trigger line disabled")
		return nil
	}
	return irq.WatchFallingEdge(ctx, det, f.cfg.InputPin, irq.DefaultEdgePoll, &f.trigger)
}
