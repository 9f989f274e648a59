// Package sim runs the feeder against scripted hardware.
package sim

import (
	"sync"

	"github.com/cjeanneret/tapefeeder/internal/hw/gpio"
)

// Driver is an in-memory gpio.Driver whose input levels are set by the caller.
// Pull-up inputs read High until set otherwise.
type Driver struct {
	mu      sync.Mutex
	levels  map[int]gpio.Level
	modes   map[int]gpio.PinMode
	fail    map[int]error
	onPulse func(pin int)
}

// NewDriver creates an empty driver.
func NewDriver() *Driver {
	return &Driver{
		levels: make(map[int]gpio.Level),
		modes:  make(map[int]gpio.PinMode),
		fail:   make(map[int]error),
	}
}

// OnPulse registers fn to be called on every rising edge written to an output.
func (d *Driver) OnPulse(fn func(pin int)) {
	d.mu.Lock()
	d.onPulse = fn
	d.mu.Unlock()
}

// Set drives an input pin.
func (d *Driver) Set(pin int, level gpio.Level) {
	d.mu.Lock()
	d.levels[pin] = level
	d.mu.Unlock()
}

// Level returns the current level of pin.
func (d *Driver) Level(pin int) gpio.Level {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.levels[pin]
}

// FailNextRead makes the next ReadPin on pin return err.
func (d *Driver) FailNextRead(pin int, err error) {
	d.mu.Lock()
	d.fail[pin] = err
	d.mu.Unlock()
}

func (d *Driver) SetupPin(pin int, mode gpio.PinMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modes[pin] = mode
	if _, ok := d.levels[pin]; !ok && mode == gpio.InputPullUp {
		d.levels[pin] = gpio.High
	}
	return nil
}

func (d *Driver) WritePin(pin int, level gpio.Level) error {
	d.mu.Lock()
	prev := d.levels[pin]
	d.levels[pin] = level
	fn := d.onPulse
	rising := d.modes[pin] == gpio.Output && prev == gpio.Low && level == gpio.High
	d.mu.Unlock()

	if rising && fn != nil {
		fn(pin)
	}
	return nil
}

func (d *Driver) ReadPin(pin int) (gpio.Level, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.fail[pin]; ok {
		delete(d.fail, pin)
		return gpio.Low, err
	}
	return d.levels[pin], nil
}

func (d *Driver) Close() error { return nil }
