package observe

import (
	"fmt"
	"time"
)

// EventKind categorizes orchestration events.
type EventKind string

const (
	EventSession  EventKind = "session"
	EventPhase    EventKind = "phase"
	EventTask     EventKind = "task"
	EventMerge    EventKind = "merge"
	EventConflict EventKind = "conflict"
	EventArtifact EventKind = "artifact"
)

// Event is one observation emitted during execution. Consumers are strictly
// read-only: nothing they do feeds back into scheduling.
type Event struct {
	Kind      EventKind
	SessionID string
	Phase     string
	Task      string
	Status    string
	Message   string
	At        time.Time
}

// Reporter emits events through a buffered channel.
type Reporter struct {
	ch chan Event
}

// NewReporter creates a Reporter with a buffered channel of size 256.
func NewReporter() *Reporter {
	return &Reporter{ch: make(chan Event, 256)}
}

// Emit sends an event in a non-blocking fashion. If the channel is full the
// event is silently dropped; a slow consumer must never stall execution.
func (r *Reporter) Emit(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	select {
	case r.ch <- event:
	default:
		// Drop the event if the channel is full.
	}
}

// Subscribe returns a read-only channel for consuming events.
func (r *Reporter) Subscribe() <-chan Event {
	return r.ch
}

// Close closes the event channel.
func (r *Reporter) Close() {
	close(r.ch)
}

// FormatEvent formats an Event as a human-readable status line.
func FormatEvent(e Event) string {
	switch e.Kind {
	case EventPhase:
		return fmt.Sprintf("  ● phase %s: %s", e.Phase, e.Status)
	case EventTask:
		if e.Message != "" {
			return fmt.Sprintf("    %s/%s: %s (%s)", e.Phase, e.Task, e.Status, e.Message)
		}
		return fmt.Sprintf("    %s/%s: %s", e.Phase, e.Task, e.Status)
	case EventConflict:
		return fmt.Sprintf("  ≠ %s: %s", e.Phase, e.Message)
	case EventMerge:
		return fmt.Sprintf("  ✓ merge %s: %s", e.Phase, e.Message)
	default:
		return fmt.Sprintf("  %s %s: %s", e.Kind, e.SessionID, e.Message)
	}
}
