package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/tapefeeder/internal/debug"
	"github.com/cjeanneret/tapefeeder/internal/logic/feed"
)

// Format selects how a Sink renders events.
type Format int

const (
	// FormatText writes "S: <message>" lines, one per event.
	FormatText Format = iota
	// FormatJSON writes one Record per line.
	FormatJSON
)

// ParseFormat maps "text" or "json" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown event format %q (want text or json)", s)
}

// Record is the JSON form of an event.
type Record struct {
	Time    string `json:"t"`
	Kind    string `json:"kind"`
	Phase   string `json:"phase,omitempty"`
	Cycle   uint64 `json:"cycle,omitempty"`
	CycleID string `json:"cycle_id,omitempty"`
	Msg     string `json:"msg"`
}

// NewRecord converts e, stamped with now.
func NewRecord(e feed.Event, now time.Time) Record {
	r := Record{
		Time:    now.Format(time.RFC3339),
		Kind:    e.Kind.String(),
		Cycle:   e.Cycle,
		CycleID: e.CycleID,
		Msg:     e.Message(),
	}
	if e.Kind == feed.EventPhase || e.Kind == feed.EventFault {
		r.Phase = e.Phase.String()
	}
	return r
}

// Sink writes events to a line-oriented device such as the diagnostic serial port.
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	now    func() time.Time
}

// NewSink creates a sink writing to w.
func NewSink(w io.Writer, format Format) *Sink {
	return &Sink{w: w, format: format, now: time.Now}
}

// Write renders one event.
func (s *Sink) Write(e feed.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var line string
	switch s.format {
	case FormatJSON:
		data, err := json.Marshal(NewRecord(e, s.now()))
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		line = string(data) + "\n"
	default:
		line = "S: " + e.Message() + "\r\n"
	}
	if _, err := io.WriteString(s.w, line); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Drain writes events from ch until ch is closed or ctx is done.
// Write errors are logged and do not stop the sink.
func (s *Sink) Drain(ctx context.Context, ch <-chan feed.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.Write(e); err != nil {
				debug.Error(err)
			}
		}
	}
}

// Log mirrors an event into the debug log.
func Log(e feed.Event) {
	switch e.Kind {
	case feed.EventPhase, feed.EventFeedRequested:
		debug.Phase(e.Message())
	case feed.EventCycleDone:
		debug.Cycle(e.CycleID, e.Gear, e.Rewind)
	case feed.EventFault:
		debug.Error(errors.New(e.Message()))
	}
}
