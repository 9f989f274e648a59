package stepper

import (
	"github.com/cjeanneret/tapefeeder/internal/debug"
	"github.com/cjeanneret/tapefeeder/internal/hw/gpio"
)

// Direction is the commanded direction of a single step.
type Direction int8

const (
	Backward Direction = -1
	None     Direction = 0
	Forward  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Backward:
		return "backward"
	case None:
		return "none"
	case Forward:
		return "forward"
	default:
		return "invalid"
	}
}

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	Name      string // axis name used in logs ("gear", "rewinder")
	StepPin   int
	DirPin    int
	EnablePin int  // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	InvertDir bool // false: DIR high = forward. true: DIR high = backward.
}

// Stepper drives the STEP/DIR inputs of one stepper driver.
// Pulse timing is owned by the caller so that several axes can share one envelope.
type Stepper struct {
	gpio gpio.Driver
	cfg  Config
}

// NewStepper creates a new stepper motor output and parks STEP low.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)
	_ = g.WritePin(cfg.StepPin, gpio.Low)

	s := &Stepper{
		gpio: g,
		cfg:  cfg,
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low) // enable by default
	}

	return s
}

// Name returns the axis name.
func (s *Stepper) Name() string {
	return s.cfg.Name
}

// SetDirection drives the DIR output for the next step.
// The DIR line is asserted only for the direction it encodes; None leaves it deasserted.
func (s *Stepper) SetDirection(d Direction) error {
	asserted := Forward
	if s.cfg.InvertDir {
		asserted = Backward
	}
	return s.gpio.WritePin(s.cfg.DirPin, gpio.Level(d == asserted))
}

// StepHigh raises the STEP output (rising edge = one step on A4988/DRV8825).
func (s *Stepper) StepHigh() error {
	return s.gpio.WritePin(s.cfg.StepPin, gpio.High)
}

// StepLow returns the STEP output to idle.
func (s *Stepper) StepLow() error {
	return s.gpio.WritePin(s.cfg.StepPin, gpio.Low)
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	debug.Verbose("Stepper %s: enable", s.cfg.Name)
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). Motors freewheel, no holding torque.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	debug.Verbose("Stepper %s: disable", s.cfg.Name)
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
