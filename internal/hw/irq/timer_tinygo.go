//go:build tinygo

package irq

import (
	"context"
	"time"
)

// DefaultTickPeriod is the time base period.
const DefaultTickPeriod = time.Millisecond

// StartTimeBase sets tick once per period until ctx is done.
// The scheduler is cooperative, so the main loop must sleep or yield for the
// producer goroutine to run.
func StartTimeBase(ctx context.Context, period time.Duration, tick *Latch) {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	go func() {
		next := time.Now()
		for ctx.Err() == nil {
			next = next.Add(period)
			time.Sleep(time.Until(next))
			tick.Set()
		}
	}()
}
