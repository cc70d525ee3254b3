package engine

import (
	"context"
	"fmt"

	"github.com/roach88/raycorr/internal/geom"
	"github.com/roach88/raycorr/internal/schedule"
)

// Loop serializes all engine work onto one goroutine.
//
// Hosts with many producers (oracle callbacks on network goroutines, timer
// ticks, request handlers) enqueue events from anywhere; Run applies them one
// at a time in arrival order. Events for a subject are therefore processed
// in delivery order and handlers never run concurrently.
//
// Thread-safety model:
//   - Enqueue, OnRayHit, OnRayMiss: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Loop struct {
	engine *Engine
	queue  *eventQueue
}

// NewLoop wraps e in a single-writer event loop.
func NewLoop(e *Engine) *Loop {
	return &Loop{
		engine: e,
		queue:  newEventQueue(),
	}
}

// Engine returns the wrapped engine, for introspection.
func (l *Loop) Engine() *Engine {
	return l.engine
}

// Enqueue submits an event. Returns false once the loop has been stopped.
func (l *Loop) Enqueue(ev Event) bool {
	return l.queue.Enqueue(ev)
}

// OnRayHit implements Reporter by enqueueing a hit event.
func (l *Loop) OnRayHit(subject Subject, point, normal geom.Point3) {
	l.Enqueue(HitEvent(subject, point, normal))
}

// OnRayMiss implements Reporter by enqueueing a miss event.
func (l *Loop) OnRayMiss(subject Subject) {
	l.Enqueue(MissEvent(subject))
}

// StartPruning schedules a prune event every prune interval. The sweep runs
// on the loop goroutine, not the timer's.
func (l *Loop) StartPruning(s schedule.Scheduler) schedule.Handle {
	return s.Every(l.engine.PruneInterval(), func() {
		l.Enqueue(PruneEvent())
	})
}

// QueueLen returns the number of events waiting to be processed.
func (l *Loop) QueueLen() int {
	return l.queue.Len()
}

// Stop closes the queue; Run drains what is left and returns.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Run processes events until ctx is cancelled or Stop is called.
//
// An event that cannot be processed is logged and skipped; one bad event
// must not stall every subject behind it.
func (l *Loop) Run(ctx context.Context) error {
	l.engine.logger.Info("event loop starting")

	for {
		if ev, ok := l.queue.TryDequeue(); ok {
			if err := l.process(ev); err != nil {
				l.engine.logger.Error("event processing failed",
					"error", err,
					"event_type", ev.Type,
					"subject", ev.Subject,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			l.engine.logger.Info("event loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel closes with the queue, so this also fires
			// on Stop.
			if l.queue.Len() == 0 && l.queue.Closed() {
				l.engine.logger.Info("event loop stopping: queue closed")
				return nil
			}
		}
	}
}

func (l *Loop) process(ev Event) error {
	switch ev.Type {
	case EventTypeCast:
		l.engine.Cast(ev.Subject, ev.Start, ev.End, ev.Handlers)
	case EventTypeHit:
		l.engine.HandleHit(ev.Subject, ev.Point, ev.Normal)
	case EventTypeMiss:
		l.engine.HandleMiss(ev.Subject)
	case EventTypePrune:
		l.engine.PruneAll()
	default:
		return fmt.Errorf("unknown event type: %d", ev.Type)
	}
	return nil
}
