package gpio

import (
	"sync"

	"github.com/cjeanneret/tapefeeder/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
	InputPullUp
)

func (m PinMode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	case InputPullUp:
		return "input-pullup"
	default:
		return "unknown"
	}
}

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation,
// a TinyGo machine implementation, or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// EdgeDetector is implemented by drivers that can latch a falling edge
// on an input pin in hardware. EdgeDetected reports and clears the latched edge.
type EdgeDetector interface {
	DetectFallingEdge(pin int) error
	EdgeDetected(pin int) (bool, error)
}

// MockDriver is a test implementation that simply logs actions.
// Pull-up inputs read High (nothing connected), everything else reads Low.
type MockDriver struct {
	mu    sync.Mutex
	modes map[int]PinMode
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modes == nil {
		m.modes = make(map[int]PinMode)
	}
	m.modes[pin] = mode
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modes[pin] == InputPullUp {
		return High, nil
	}
	return Low, nil
}

// DetectFallingEdge arms edge detection; the mock never sees an edge.
func (m *MockDriver) DetectFallingEdge(pin int) error {
	debug.GPIO("DetectFallingEdge", pin, nil)
	return nil
}

func (m *MockDriver) EdgeDetected(pin int) (bool, error) {
	return false, nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
