//go:build !tinygo

// Package irq holds the signals shared between interrupt context and the main loop:
// single-bit latches and the producers that set them.
package irq

import "sync/atomic"

// Latch is a capacity-1 flag set from interrupt context and consumed once by the
// main loop. Repeated Set calls before a consume collapse into one pending event.
// The zero value is a cleared latch.
type Latch struct {
	v atomic.Bool
}

// Set raises the latch. Safe to call concurrently with TestAndClear.
func (l *Latch) Set() {
	l.v.Store(true)
}

// TestAndClear returns the value at call time and leaves the latch cleared.
// It must only be called from the single main-loop context.
func (l *Latch) TestAndClear() bool {
	return l.v.Swap(false)
}
