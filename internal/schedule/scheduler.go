// Package schedule provides the timer primitive the correlation engine uses
// for periodic pruning.
//
// Two implementations are provided:
//   - Wall: backed by the runtime timers (production, demo).
//   - Manual: driven explicitly by Advance, for tests and scenario replays.
//     Manual also acts as the time source, so engine time and timer time
//     cannot drift apart in a simulation.
package schedule

import (
	"sync"
	"time"
)

// Handle cancels a scheduled task. Cancel is idempotent.
type Handle interface {
	Cancel()
}

// Scheduler runs functions later.
//
// After fires fn once after d. Every fires fn repeatedly, every d, until the
// returned handle is cancelled. Neither call blocks.
type Scheduler interface {
	After(d time.Duration, fn func()) Handle
	Every(d time.Duration, fn func()) Handle
}

// Wall schedules on real timers. The zero value is ready to use.
//
// Callbacks run on timer goroutines; callers that need single-writer
// semantics should route them through engine.Loop.
type Wall struct{}

// After implements Scheduler.
func (Wall) After(d time.Duration, fn func()) Handle {
	return &wallTimer{t: time.AfterFunc(d, fn)}
}

// Every implements Scheduler.
func (Wall) Every(d time.Duration, fn func()) Handle {
	h := &wallTicker{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go h.loop(fn)
	return h
}

type wallTimer struct {
	t *time.Timer
}

func (w *wallTimer) Cancel() {
	w.t.Stop()
}

type wallTicker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (w *wallTicker) loop(fn func()) {
	for {
		select {
		case <-w.done:
			return
		case <-w.ticker.C:
			fn()
		}
	}
}

func (w *wallTicker) Cancel() {
	w.once.Do(func() {
		w.ticker.Stop()
		close(w.done)
	})
}
