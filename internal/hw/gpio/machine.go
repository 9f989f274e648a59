//go:build tinygo

package gpio

import (
	"machine"
)

// MachineDriver implements Driver on top of TinyGo's machine package.
type MachineDriver struct {
	// Track configured pins to prevent conflicts
	configured map[int]machine.Pin
}

// NewMachineDriver creates a GPIO driver for the running microcontroller.
func NewMachineDriver() *MachineDriver {
	return &MachineDriver{
		configured: make(map[int]machine.Pin),
	}
}

func (d *MachineDriver) SetupPin(pin int, mode PinMode) error {
	p := machine.Pin(pin)
	switch mode {
	case Input:
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
	case InputPullUp:
		p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	case Output:
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	default:
		return errUnknownMode
	}
	d.configured[pin] = p
	return nil
}

func (d *MachineDriver) WritePin(pin int, level Level) error {
	p, ok := d.configured[pin]
	if !ok {
		if err := d.SetupPin(pin, Output); err != nil {
			return err
		}
		p = d.configured[pin]
	}
	p.Set(bool(level))
	return nil
}

func (d *MachineDriver) ReadPin(pin int) (Level, error) {
	p, ok := d.configured[pin]
	if !ok {
		// Pin not configured
		return Low, nil
	}
	return Level(p.Get()), nil
}

// OnFallingEdge attaches fn as the pin-change interrupt handler for a falling edge.
// fn runs in interrupt context and must only set a latch.
func (d *MachineDriver) OnFallingEdge(pin int, fn func()) error {
	p, ok := d.configured[pin]
	if !ok {
		if err := d.SetupPin(pin, InputPullUp); err != nil {
			return err
		}
		p = d.configured[pin]
	}
	return p.SetInterrupt(machine.PinFalling, func(machine.Pin) { fn() })
}

func (d *MachineDriver) Close() error {
	return nil
}

type driverError string

func (e driverError) Error() string { return string(e) }

const errUnknownMode = driverError("unknown pin mode")
