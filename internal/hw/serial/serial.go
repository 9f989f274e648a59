// Package serial opens the diagnostic serial port the phase log is written to.
package serial

import (
	"errors"
	"fmt"
	"io"

	goserial "go.bug.st/serial"
)

// DefaultBaud matches the feeder board's console speed.
const DefaultBaud = 115200

// ErrNoDevice is returned by Open when no device path is configured.
var ErrNoDevice = errors.New("serial: no device configured")

// Config selects the port.
type Config struct {
	Device string // e.g. /dev/ttyUSB0
	Baud   int    // 0 selects DefaultBaud
}

// Mode returns the 8N1 line settings for cfg.
func Mode(cfg Config) *goserial.Mode {
	baud := cfg.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	return &goserial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	}
}

// Open opens the configured port for writing.
func Open(cfg Config) (io.WriteCloser, error) {
	if cfg.Device == "" {
		return nil, ErrNoDevice
	}
	port, err := goserial.Open(cfg.Device, Mode(cfg))
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return port, nil
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := goserial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
