package controller

import (
	"sync"
	"time"

	"github.com/oshokin/anchor-watch/internal/domain/anchor"
)

// EventKind tells subscribers why they were notified.
type EventKind int

const (
	// EventAnchorDropped is sent when an anchor is set, manually or on a deferred fix.
	EventAnchorDropped EventKind = iota + 1
	// EventReset is sent when an active or pending watch is cleared.
	EventReset
	// EventTransition is sent on Safe <-> Alarmed changes.
	EventTransition
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case EventAnchorDropped:
		return "anchor_dropped"
	case EventReset:
		return "reset"
	case EventTransition:
		return "transition"
	default:
		return "unknown"
	}
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, bool) {
	switch s {
	case "anchor_dropped":
		return EventAnchorDropped, true
	case "reset":
		return EventReset, true
	case "transition":
		return EventTransition, true
	default:
		return 0, false
	}
}

// Event is one change notification.
type Event struct {
	// Kind is the reason for the event.
	Kind EventKind
	// Previous is the status before the change.
	Previous anchor.Status
	// Current is the status after the change.
	Current anchor.Status
	// Verdict is a copy of the verdict after the change; nil after a reset.
	Verdict *anchor.Verdict
	// At is when the controller emitted the event.
	At time.Time
}

// DefaultSubscriptionBuffer is the event buffer of a subscription.
const DefaultSubscriptionBuffer = 16

// Subscription receives change events until Close is called.
type Subscription struct {
	id     uint64
	events chan Event
	owner  *Controller
	once   sync.Once
}

// Events returns the channel events are delivered on. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unregisters the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.owner.unsubscribe(s)
	})
}

// deliver never blocks: when the buffer is full the oldest event is dropped
// so the newest state always gets through. Called with subMu held.
func (s *Subscription) deliver(e Event) bool {
	select {
	case s.events <- e:
		return true
	default:
	}

	select {
	case <-s.events:
	default:
	}

	select {
	case s.events <- e:
	default:
	}

	return false
}
