package engine

import (
	"sync"

	"github.com/roach88/raycorr/internal/geom"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeCast registers a request and issues its ray.
	EventTypeCast EventType = iota + 1
	// EventTypeHit delivers an oracle hit.
	EventTypeHit
	// EventTypeMiss delivers an oracle miss.
	EventTypeMiss
	// EventTypePrune runs a full prune sweep.
	EventTypePrune
)

// String returns the lowercase event name.
func (t EventType) String() string {
	switch t {
	case EventTypeCast:
		return "cast"
	case EventTypeHit:
		return "hit"
	case EventTypeMiss:
		return "miss"
	case EventTypePrune:
		return "prune"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the Loop.
type Event struct {
	Type     EventType
	Subject  Subject
	Start    geom.Point3 // cast
	End      geom.Point3 // cast
	Handlers Handlers    // cast
	Point    geom.Point3 // hit
	Normal   geom.Point3 // hit
}

// CastEvent builds an EventTypeCast event.
func CastEvent(subject Subject, start, end geom.Point3, h Handlers) Event {
	return Event{Type: EventTypeCast, Subject: subject, Start: start, End: end, Handlers: h}
}

// HitEvent builds an EventTypeHit event.
func HitEvent(subject Subject, point, normal geom.Point3) Event {
	return Event{Type: EventTypeHit, Subject: subject, Point: point, Normal: normal}
}

// MissEvent builds an EventTypeMiss event.
func MissEvent(subject Subject) Event {
	return Event{Type: EventTypeMiss, Subject: subject}
}

// PruneEvent builds an EventTypePrune event.
func PruneEvent() Event {
	return Event{Type: EventTypePrune}
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so oracle callbacks and timer ticks never block
// on a slow consumer.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Clear the slot so the handler closures it holds can be collected.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
