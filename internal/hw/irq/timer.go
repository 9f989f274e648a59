//go:build !tinygo

package irq

import (
	"context"
	"time"
)

// DefaultTickPeriod is the time base period.
const DefaultTickPeriod = time.Millisecond

// StartTimeBase sets tick once per period until ctx is done.
// The goroutine stands in for the fixed-period timer interrupt: it does nothing but Set.
func StartTimeBase(ctx context.Context, period time.Duration, tick *Latch) {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	t := time.NewTicker(period)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				tick.Set()
			}
		}
	}()
}
