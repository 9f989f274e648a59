//go:build tinygo

// Command tapefeeder-fw is the microcontroller firmware of the feeder.
// Build with: tinygo flash -target=arduino ./cmd/tapefeeder-fw
package main

import (
	"context"
	"machine"
	"strconv"
	"time"

	"github.com/cjeanneret/tapefeeder/internal/debug"
	"github.com/cjeanneret/tapefeeder/internal/events"
	"github.com/cjeanneret/tapefeeder/internal/feeder"
	"github.com/cjeanneret/tapefeeder/internal/hw/gpio"
	"github.com/cjeanneret/tapefeeder/internal/hw/irq"
	"github.com/cjeanneret/tapefeeder/internal/hw/sensor"
	"github.com/cjeanneret/tapefeeder/internal/hw/stepper"
	"github.com/cjeanneret/tapefeeder/internal/logic/feed"
	"github.com/cjeanneret/tapefeeder/internal/logic/motion"
	"github.com/cjeanneret/tapefeeder/internal/logic/trigger"
)

// Board pin map.
var wiring = feeder.Config{
	ButtonPin: int(machine.D3),
	InputPin:  int(machine.D2),
	MaxBounce: trigger.DefaultMaxBounce,
	Gear: stepper.Config{
		Name:    "gear",
		StepPin: int(machine.D5),
		DirPin:  int(machine.D4),
	},
	Rewinder: stepper.Config{
		Name:      "rewinder",
		StepPin:   int(machine.D7),
		DirPin:    int(machine.D6),
		InvertDir: true,
	},
	Sensors: sensor.Config{
		HolePin:    int(machine.D8),
		TensionPin: int(machine.D9),
	},
	Timing:     motion.DefaultTiming,
	StepWait:   feed.DefaultStepWait,
	TickPeriod: irq.DefaultTickPeriod,
	LoopIdle:   50 * time.Microsecond,
}

func main() {
	// The serial line carries the phase log only.
	debug.Init(0)
	sink := events.NewSink(machine.Serial, events.FormatText)

	var cycles uint64
	drv := gpio.NewMachineDriver()
	f, err := feeder.New(drv, wiring,
		feeder.WithCycleID(func() string {
			cycles++
			return strconv.FormatUint(cycles, 10)
		}),
		feeder.WithObserver(func(e feed.Event) { _ = sink.Write(e) }),
	)
	if err != nil {
		halt(err)
	}
	if err := drv.OnFallingEdge(wiring.InputPin, f.Trigger().Set); err != nil {
		halt(err)
	}

	ctx := context.Background()
	irq.StartTimeBase(ctx, wiring.TickPeriod, f.Tick())
	halt(f.Run(ctx))
}

// halt reports err on the serial line forever.
func halt(err error) {
	for {
		println("tapefeeder:", err.Error())
		time.Sleep(time.Second)
	}
}
