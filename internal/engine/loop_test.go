package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/raycorr/internal/geom"
	"github.com/roach88/raycorr/internal/schedule"
)

// runLoop starts l.Run on its own goroutine and returns a channel carrying
// its result.
func runLoop(ctx context.Context, l *Loop) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx)
	}()
	return done
}

func waitLoop(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
		return nil
	}
}

func TestLoop_ProcessesEventsInOrder(t *testing.T) {
	e, _, rays := setupTestEngine(t)
	l := NewLoop(e)
	a, b := &spy{}, &spy{}

	require.True(t, l.Enqueue(CastEvent("p1", origin, tenX, a.handlers())))
	require.True(t, l.Enqueue(CastEvent("p1", geom.P(0, 5, 0), geom.P(10, 5, 0), b.handlers())))
	l.OnRayMiss("p1")
	l.OnRayHit("p1", geom.P(5, 0, 0), up)
	l.Stop()

	err := waitLoop(t, runLoop(context.Background(), l))

	require.NoError(t, err)
	assert.Len(t, *rays, 2)
	assert.Len(t, a.hits, 1)
	assert.Len(t, b.misses, 1)
	assert.Equal(t, 0, l.QueueLen())
	assert.Equal(t, 0, l.Engine().Tracked())
}

func TestLoop_ContextCancel(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	l := NewLoop(e)
	ctx, cancel := context.WithCancel(context.Background())

	done := runLoop(ctx, l)
	cancel()

	err := waitLoop(t, done)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, l.Enqueue(MissEvent("p1")), "loop refuses events once stopped")
}

func TestLoop_StopWhileRunning(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	l := NewLoop(e)
	p := &spy{}

	done := runLoop(context.Background(), l)
	l.Enqueue(CastEvent("p1", origin, tenX, p.handlers()))
	l.Enqueue(HitEvent("p1", geom.P(1, 0, 0), up))
	l.Stop()

	require.NoError(t, waitLoop(t, done))
	assert.Len(t, p.hits, 1)
}

func TestLoop_UnknownEventSkipped(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	l := NewLoop(e)
	p := &spy{}

	l.Enqueue(Event{Type: EventType(42)})
	l.Enqueue(CastEvent("p1", origin, tenX, p.handlers()))
	l.Stop()

	require.NoError(t, waitLoop(t, runLoop(context.Background(), l)))
	assert.Equal(t, 1, e.TrackedFor("p1"), "later events still processed")
}

func TestLoop_ProcessUnknownEvent(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	l := NewLoop(e)

	err := l.process(Event{Type: EventType(42)})

	assert.ErrorContains(t, err, "unknown event type")
}

func TestLoop_StartPruning(t *testing.T) {
	sched := schedule.NewManual()
	e := New(nil,
		WithClock(sched),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	l := NewLoop(e)
	p := &spy{}

	e.Cast("p1", origin, tenX, p.handlers())
	h := l.StartPruning(sched)
	sched.Advance(DefaultPruneInterval)
	h.Cancel()

	assert.Equal(t, 0, p.total(), "tick enqueues a prune event rather than sweeping inline")
	assert.Equal(t, 1, l.QueueLen())

	l.Stop()
	require.NoError(t, waitLoop(t, runLoop(context.Background(), l)))

	require.Len(t, p.misses, 1)
	assert.Equal(t, MissStale, p.misses[0].Reason)
	assert.Equal(t, 0, e.Tracked())
}
