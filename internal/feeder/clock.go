package feeder

import (
	"sync/atomic"
	"time"
)

// Clock is a free-running millisecond counter.
type Clock interface {
	Millis() uint64
}

// SystemClock counts milliseconds since it was created.
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts a clock at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Millis() uint64 {
	return uint64(time.Since(c.start) / time.Millisecond)
}

// ManualClock only moves when told to.
type ManualClock struct {
	ms atomic.Uint64
}

func (c *ManualClock) Millis() uint64 {
	return c.ms.Load()
}

// Advance moves the clock forward by n milliseconds.
func (c *ManualClock) Advance(n uint64) {
	c.ms.Add(n)
}
