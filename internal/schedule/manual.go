package schedule

import (
	"sync"
	"time"
)

// Epoch is the instant a Manual scheduler starts at unless told otherwise.
// Any fixed value works; a fixed one keeps golden traces stable.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Manual is a deterministic Scheduler and time source.
//
// Time only moves when Advance is called. Due tasks run synchronously inside
// Advance, on the caller's goroutine, in due-time order; tasks due at the same
// instant run in registration order. Now reports the due time of the task
// being run, so code reading the clock from inside a task sees a consistent
// instant.
//
// Thread-safety: all methods may be called concurrently, but tasks are only
// ever executed by the goroutine calling Advance.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int64
	tasks map[int64]*manualTask
}

type manualTask struct {
	id       int64
	at       time.Time
	interval time.Duration // 0 for one-shot
	fn       func()
	m        *Manual
}

func (t *manualTask) Cancel() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	delete(t.m.tasks, t.id)
}

// NewManual creates a Manual scheduler starting at Epoch.
func NewManual() *Manual {
	return NewManualAt(Epoch)
}

// NewManualAt creates a Manual scheduler starting at start.
func NewManualAt(start time.Time) *Manual {
	return &Manual{
		now:   start,
		tasks: make(map[int64]*manualTask),
	}
}

// Now returns the current simulated time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After implements Scheduler.
func (m *Manual) After(d time.Duration, fn func()) Handle {
	return m.add(d, 0, fn)
}

// Every implements Scheduler. A non-positive interval is treated as one
// nanosecond so Advance always makes progress.
func (m *Manual) Every(d time.Duration, fn func()) Handle {
	if d <= 0 {
		d = time.Nanosecond
	}
	return m.add(d, d, fn)
}

func (m *Manual) add(d, interval time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTask{
		id:       m.seq,
		at:       m.now.Add(d),
		interval: interval,
		fn:       fn,
		m:        m,
	}
	m.tasks[t.id] = t
	return t
}

// Pending returns the number of scheduled (uncancelled, unfired) tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves time forward by d, running every task that falls due on
// the way. Tasks scheduled by running tasks are honoured if they fall due
// before the target time.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	if target.After(m.now) {
		m.now = target
	}
	m.mu.Unlock()
}

// nextDue pops the earliest task due at or before target, moving the clock to
// its due time and re-arming it if it repeats.
func (m *Manual) nextDue(target time.Time) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next *manualTask
	for _, t := range m.tasks {
		if t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.id < next.id) {
			next = t
		}
	}
	if next == nil {
		return nil
	}

	if next.at.After(m.now) {
		m.now = next.at
	}
	if next.interval > 0 {
		next.at = next.at.Add(next.interval)
	} else {
		delete(m.tasks, next.id)
	}
	return next
}
