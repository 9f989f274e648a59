// Package sensor reads the feeder's two photo-interrupters.
// It holds no state: debouncing of the hole signal belongs to the feed sequencer.
package sensor

import (
	"fmt"

	"github.com/cjeanneret/tapefeeder/internal/hw/gpio"
)

// Config holds the input pins (BCM numbering).
type Config struct {
	HolePin    int // tape hole photo-interrupter, active LOW
	TensionPin int // film tension photo-interrupter, active HIGH
}

// Sampler provides the two logical sensor predicates.
type Sampler struct {
	gpio gpio.Driver
	cfg  Config
}

// NewSampler configures both inputs with pull-ups.
func NewSampler(g gpio.Driver, cfg Config) (*Sampler, error) {
	if err := g.SetupPin(cfg.HolePin, gpio.InputPullUp); err != nil {
		return nil, fmt.Errorf("setup hole sensor pin %d: %w", cfg.HolePin, err)
	}
	if err := g.SetupPin(cfg.TensionPin, gpio.InputPullUp); err != nil {
		return nil, fmt.Errorf("setup tension sensor pin %d: %w", cfg.TensionPin, err)
	}
	return &Sampler{gpio: g, cfg: cfg}, nil
}

// HoleDetected reports whether a sprocket hole is in front of the sensor.
func (s *Sampler) HoleDetected() (bool, error) {
	lvl, err := s.gpio.ReadPin(s.cfg.HolePin)
	if err != nil {
		return false, fmt.Errorf("read hole sensor: %w", err)
	}
	return lvl == gpio.Low, nil
}

// TensionAdequate reports whether the take-up film is tight enough.
func (s *Sampler) TensionAdequate() (bool, error) {
	lvl, err := s.gpio.ReadPin(s.cfg.TensionPin)
	if err != nil {
		return false, fmt.Errorf("read tension sensor: %w", err)
	}
	return lvl == gpio.High, nil
}
