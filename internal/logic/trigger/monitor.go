// Package trigger turns the polled feed button into a single "feed requested" event.
package trigger

import (
	"fmt"

	"github.com/cjeanneret/tapefeeder/internal/hw/gpio"
)

// DefaultMaxBounce is the debounce window in monitor polls (1 ms each).
const DefaultMaxBounce = 10

// Setter is the latch the monitor raises on a confirmed press.
type Setter interface {
	Set()
}

// Monitor debounces an active-low push button. It must be polled once per
// time-base period; the counter is only touched from the main loop.
type Monitor struct {
	gpio      gpio.Driver
	pin       int
	maxBounce uint8
	counter   uint8
	out       Setter
}

// NewMonitor configures the button pin with a pull-up.
func NewMonitor(g gpio.Driver, pin int, maxBounce uint8, out Setter) (*Monitor, error) {
	if maxBounce == 0 {
		maxBounce = DefaultMaxBounce
	}
	if maxBounce == 255 {
		return nil, fmt.Errorf("max bounce must be below 255, got %d", maxBounce)
	}
	if err := g.SetupPin(pin, gpio.InputPullUp); err != nil {
		return nil, fmt.Errorf("setup button pin %d: %w", pin, err)
	}
	return &Monitor{gpio: g, pin: pin, maxBounce: maxBounce, out: out}, nil
}

// Poll reads the button and advances the debounce counter.
func (m *Monitor) Poll() error {
	lvl, err := m.gpio.ReadPin(m.pin)
	if err != nil {
		return fmt.Errorf("read button: %w", err)
	}
	m.Update(lvl == gpio.Low)
	return nil
}

// Update advances the debounce counter with one button sample and reports whether
// this sample fired the trigger. A press fires once, on its (maxBounce+1)-th
// consecutive pressed sample; holding it longer never fires again.
func (m *Monitor) Update(pressed bool) bool {
	switch {
	case !pressed:
		m.counter = 0
	case m.counter > m.maxBounce:
		// already fired, button still held
	case m.counter == m.maxBounce:
		m.counter++
		m.out.Set()
		return true
	default:
		m.counter++
	}
	return false
}

// Counter returns the current debounce count.
func (m *Monitor) Counter() uint8 {
	return m.counter
}
