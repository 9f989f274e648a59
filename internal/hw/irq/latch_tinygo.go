//go:build tinygo

// Package irq holds the signals shared between interrupt context and the main loop:
// single-bit latches and the producers that set them.
package irq

import (
	"runtime/interrupt"
	"runtime/volatile"
)

// Latch is a capacity-1 flag set from an interrupt handler and consumed once by the
// main loop. Repeated Set calls before a consume collapse into one pending event.
type Latch struct {
	v volatile.Register8
}

// Set raises the latch. Called from interrupt context.
func (l *Latch) Set() {
	l.v.Set(1)
}

// TestAndClear reads and clears the latch with interrupts disabled for the
// single read-modify-write.
func (l *Latch) TestAndClear() bool {
	state := interrupt.Disable()
	v := l.v.Get()
	l.v.Set(0)
	interrupt.Restore(state)
	return v != 0
}
