//go:build !tinygo

package irq

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/tapefeeder/internal/debug"
	"github.com/cjeanneret/tapefeeder/internal/hw/gpio"
)

// DefaultEdgePoll is how often the hardware edge-detect status is sampled.
const DefaultEdgePoll = 100 * time.Microsecond

// WatchFallingEdge arms falling-edge detection on pin and sets trigger whenever the
// hardware reports a latched edge. Linux user space has no GPIO interrupt handler, so
// a goroutine polls the BCM event status register; the edge itself is captured in
// hardware and cannot be missed between polls.
func WatchFallingEdge(ctx context.Context, det gpio.EdgeDetector, pin int, poll time.Duration, trigger *Latch) error {
	if err := det.DetectFallingEdge(pin); err != nil {
		return fmt.Errorf("arm falling edge on pin %d: %w", pin, err)
	}
	if poll <= 0 {
		poll = DefaultEdgePoll
	}

	t := time.NewTicker(poll)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				edge, err := det.EdgeDetected(pin)
				if err != nil {
					debug.Error(err)
					continue
				}
				if edge {
					debug.Trace("falling edge on pin %d", pin)
					trigger.Set()
				}
			}
		}
	}()
	return nil
}
