// Package events fans feed cycle events out to log collaborators.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/cjeanneret/tapefeeder/internal/logic/feed"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Bus distributes sequencer events to any number of subscribers.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[chan feed.Event]struct{}
	dropped atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan feed.Event]struct{})}
}

// Subscribe returns a channel of events and a cleanup function that must be
// called when the subscriber goes away.
func (b *Bus) Subscribe() (<-chan feed.Event, func()) {
	ch := make(chan feed.Event, DefaultBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish sends e to every subscriber.
func (b *Bus) Publish(e feed.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Observer adapts the bus to the sequencer's observer hook.
func (b *Bus) Observer() feed.Observer {
	return b.Publish
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
