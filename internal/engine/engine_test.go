package engine

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/raycorr/internal/geom"
	"github.com/roach88/raycorr/internal/schedule"
	"github.com/roach88/raycorr/internal/testutil"
)

// spy records every handler invocation for one or more requests.
type spy struct {
	mu     sync.Mutex
	hits   []Hit
	misses []Miss
}

func (p *spy) handlers() Handlers {
	return Handlers{
		OnHit: func(h Hit) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.hits = append(p.hits, h)
			return nil
		},
		OnMiss: func(m Miss) error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.misses = append(p.misses, m)
			return nil
		},
	}
}

func (p *spy) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.hits) + len(p.misses)
}

type ray struct {
	subject    Subject
	start, end geom.Point3
}

// setupTestEngine builds an engine on a manual clock with a recording oracle
// and discarded logs.
func setupTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *testutil.ManualClock, *[]ray) {
	t.Helper()
	clock := testutil.NewManualClock()
	var rays []ray
	oracle := OracleFunc(func(s Subject, start, end geom.Point3) {
		rays = append(rays, ray{s, start, end})
	})
	base := []EngineOption{
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSessionGenerator(testutil.NewFixedSessionGenerator("test-session")),
	}
	e := New(oracle, append(base, opts...)...)
	return e, clock, &rays
}

var (
	origin = geom.P(0, 0, 0)
	tenX   = geom.P(10, 0, 0)
	up     = geom.P(0, 1, 0)
)

func TestEngine_New_Defaults(t *testing.T) {
	e := New(nil)

	assert.Equal(t, DefaultEpsilon, e.Epsilon())
	assert.Equal(t, DefaultTTL, e.TTL())
	assert.Equal(t, DefaultPruneInterval, e.PruneInterval())
	assert.Equal(t, 0, e.Tracked())
	assert.NotEmpty(t, e.Session())
}

func TestEngine_New_Options(t *testing.T) {
	e := New(nil,
		WithEpsilon(0.1),
		WithTTL(time.Second),
		WithPruneInterval(3*time.Second),
	)

	assert.Equal(t, 0.1, e.Epsilon())
	assert.Equal(t, time.Second, e.TTL())
	assert.Equal(t, 3*time.Second, e.PruneInterval())
}

func TestEngine_Cast_RegistersAndIssuesRay(t *testing.T) {
	e, _, rays := setupTestEngine(t)
	p := &spy{}

	id, ok := e.Cast("p1", origin, tenX, p.handlers())

	require.True(t, ok)
	assert.Equal(t, RequestID(1), id)
	assert.Equal(t, 1, e.Tracked())
	assert.Equal(t, 1, e.TrackedFor("p1"))
	require.Len(t, *rays, 1, "exactly one oracle call per registration")
	assert.Equal(t, ray{"p1", origin, tenX}, (*rays)[0])

	reqs := e.Requests("p1")
	require.Len(t, reqs, 1)
	assert.Equal(t, 10.0, reqs[0].TotalDistance, "total distance precomputed")
	assert.Equal(t, testutil.Epoch, reqs[0].CreatedAt)
}

func TestEngine_Cast_RejectsWithoutHandlers(t *testing.T) {
	e, _, rays := setupTestEngine(t)

	id, ok := e.Cast("p1", origin, tenX, Handlers{})

	assert.False(t, ok)
	assert.Equal(t, RequestID(0), id)
	assert.Equal(t, 0, e.Tracked())
	assert.Empty(t, *rays, "no oracle call for a rejected cast")
	assert.Equal(t, uint64(1), e.Stats().Rejected)
}

func TestEngine_Cast_SingleHandlerAccepted(t *testing.T) {
	e, _, _ := setupTestEngine(t)

	_, ok := e.Cast("p1", origin, tenX, Handlers{OnMiss: func(Miss) error { return nil }})
	assert.True(t, ok)

	_, ok = e.Cast("p1", origin, tenX, Handlers{OnHit: func(Hit) error { return nil }})
	assert.True(t, ok)

	assert.Equal(t, 2, e.TrackedFor("p1"))
}

func TestEngine_Cast_IDsIncrease(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	p := &spy{}

	var last RequestID
	for _, s := range []Subject{"a", "b", "a", "c"} {
		id, ok := e.Cast(s, origin, tenX, p.handlers())
		require.True(t, ok)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestEngine_HandleHit_ExactHit(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	p := &spy{}

	id, _ := e.Cast("p1", origin, tenX, p.handlers())
	e.HandleHit("p1", geom.P(5, 0, 0), up)

	require.Len(t, p.hits, 1)
	assert.Empty(t, p.misses)
	hit := p.hits[0]
	assert.Equal(t, id, hit.RequestID)
	assert.Equal(t, Subject("p1"), hit.Subject)
	assert.Equal(t, geom.P(5, 0, 0), hit.Point)
	assert.Equal(t, up, hit.Normal)
	assert.Equal(t, 0.0, hit.Score)
	assert.Equal(t, 0, e.Tracked(), "resolved request leaves the registry")
	assert.Empty(t, e.Subjects())
}

func TestEngine_HandleHit_EpsilonBoundary(t *testing.T) {
	t.Run("exactly epsilon is accepted", func(t *testing.T) {
		e, _, _ := setupTestEngine(t)
		p := &spy{}
		e.Cast("p1", origin, tenX, p.handlers())

		// 10.25 + 0.25 - 10 = 0.5 exactly.
		e.HandleHit("p1", geom.P(10.25, 0, 0), up)

		require.Len(t, p.hits, 1)
		assert.Equal(t, 0.5, p.hits[0].Score)
	})

	t.Run("just above epsilon is rejected", func(t *testing.T) {
		e, _, _ := setupTestEngine(t)
		p := &spy{}
		e.Cast("p1", origin, tenX, p.handlers())

		e.HandleHit("p1", geom.P(10.25000005, 0, 0), up)

		assert.Empty(t, p.hits)
		assert.Equal(t, 1, e.TrackedFor("p1"), "dropped hit changes nothing")
		assert.Equal(t, uint64(1), e.Stats().DroppedHits)
	})

	t.Run("custom epsilon", func(t *testing.T) {
		e, _, _ := setupTestEngine(t, WithEpsilon(0.1))
		p := &spy{}
		e.Cast("p1", origin, tenX, p.handlers())

		e.HandleHit("p1", geom.P(10.25, 0, 0), up)
		assert.Empty(t, p.hits)
	})
}

func TestEngine_HandleHit_BestFitWins(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	a, b := &spy{}, &spy{}

	e.Cast("p1", origin, tenX, a.handlers())
	idB, _ := e.Cast("p1", geom.P(0, 0.2, 0), geom.P(10, 0.2, 0), b.handlers())

	// On B's segment exactly; A scores ~0.008.
	e.HandleHit("p1", geom.P(5, 0.2, 0), up)

	assert.Empty(t, a.hits)
	require.Len(t, b.hits, 1)
	assert.Equal(t, idB, b.hits[0].RequestID)
	assert.Equal(t, 1, e.TrackedFor("p1"))
}

func TestEngine_HandleHit_TieBreakOldestFirst(t *testing.T) {
	for run := 0; run < 20; run++ {
		e, _, _ := setupTestEngine(t)
		first, second := &spy{}, &spy{}

		idFirst, _ := e.Cast("p1", origin, tenX, first.handlers())
		e.Cast("p1", origin, tenX, second.handlers())

		e.HandleHit("p1", geom.P(5, 0, 0), up)

		require.Len(t, first.hits, 1, "run %d: equal scores resolve to the lowest id", run)
		assert.Equal(t, idFirst, first.hits[0].RequestID)
		assert.Empty(t, second.hits)
	}
}

func TestEngine_HandleHit_SubjectsIsolated(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	p := &spy{}

	e.Cast("p1", origin, tenX, p.handlers())
	e.HandleHit("p2", geom.P(5, 0, 0), up)

	assert.Empty(t, p.hits)
	assert.Equal(t, 1, e.TrackedFor("p1"))
}

func TestEngine_TTL_StaleNeverMatched(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	p := &spy{}

	e.Cast("p1", origin, tenX, p.handlers())
	clock.Advance(DefaultTTL + time.Millisecond)

	e.HandleHit("p1", geom.P(5, 0, 0), up)
	assert.Empty(t, p.hits, "stale request is not a candidate")
	assert.Empty(t, p.misses, "stale request is not called back before a prune")
	assert.Equal(t, 1, e.TrackedFor("p1"))

	e.PruneAll()
	require.Len(t, p.misses, 1)
	assert.Equal(t, MissStale, p.misses[0].Reason)
	assert.Empty(t, p.hits)
	assert.Equal(t, 0, e.Tracked())
}

func TestEngine_TTL_BoundaryIsLive(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	p := &spy{}

	e.Cast("p1", origin, tenX, p.handlers())
	clock.Advance(DefaultTTL)

	e.HandleHit("p1", geom.P(5, 0, 0), up)
	assert.Len(t, p.hits, 1, "a request exactly TTL old is still live")
}

func TestEngine_HandleMiss_ResolvesWhenCountReached(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	a, b := &spy{}, &spy{}

	e.Cast("p1", origin, tenX, a.handlers())
	e.Cast("p1", geom.P(0, 5, 0), geom.P(10, 5, 0), b.handlers())

	e.HandleMiss("p1")
	assert.Equal(t, 1, e.PendingMisses("p1"))
	assert.Equal(t, 0, a.total()+b.total(), "one miss for two requests resolves nothing")

	e.HandleMiss("p1")
	require.Len(t, a.misses, 1)
	require.Len(t, b.misses, 1)
	assert.Equal(t, MissReported, a.misses[0].Reason)
	assert.Equal(t, MissReported, b.misses[0].Reason)
	assert.Equal(t, 0, e.PendingMisses("p1"))
	assert.Equal(t, 0, e.Tracked())

	stats := e.Stats()
	assert.Equal(t, uint64(2), stats.Misses)
}

func TestEngine_PartialMissThenHit(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	a, b := &spy{}, &spy{}

	idA, _ := e.Cast("p1", origin, tenX, a.handlers())
	idB, _ := e.Cast("p1", geom.P(0, 5, 0), geom.P(10, 5, 0), b.handlers())

	e.HandleMiss("p1")
	require.Equal(t, 1, e.PendingMisses("p1"))

	e.HandleHit("p1", geom.P(5, 0, 0), up)

	require.Len(t, a.hits, 1)
	assert.Equal(t, idA, a.hits[0].RequestID)
	require.Len(t, b.misses, 1, "re-check after the hit resolves the remainder")
	assert.Equal(t, idB, b.misses[0].RequestID)
	assert.Equal(t, 0, e.Tracked())
	assert.Equal(t, 0, e.PendingMisses("p1"))
}

func TestEngine_PruneAll_Idempotent(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	p := &spy{}

	e.Cast("p1", origin, tenX, p.handlers())
	e.Cast("p2", origin, tenX, p.handlers())
	clock.Advance(3 * time.Second)

	e.PruneAll()
	require.Equal(t, 2, p.total())

	e.PruneAll()
	assert.Equal(t, 2, p.total(), "second sweep fires nothing")
	assert.Equal(t, uint64(2), e.Stats().Stale)
	assert.Empty(t, e.Subjects(), "empty subjects are garbage collected")
}

func TestEngine_PruneAll_KeepsLiveRequests(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	old, fresh := &spy{}, &spy{}

	e.Cast("p1", origin, tenX, old.handlers())
	clock.Advance(1500 * time.Millisecond)
	e.Cast("p1", origin, tenX, fresh.handlers())
	clock.Advance(1000 * time.Millisecond)

	e.PruneAll()

	assert.Len(t, old.misses, 1)
	assert.Equal(t, 0, fresh.total())
	assert.Equal(t, 1, e.TrackedFor("p1"))
}

func TestEngine_EmptyStateSafety(t *testing.T) {
	e, _, _ := setupTestEngine(t)

	assert.NotPanics(t, func() {
		e.HandleMiss("nobody")
		e.HandleHit("nobody", origin, up)
		e.PruneSubject("nobody")
		e.PruneAll()
	})

	assert.Equal(t, 0, e.Tracked())
	assert.Empty(t, e.Subjects())
	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.DroppedMisses)
	assert.Equal(t, uint64(1), stats.DroppedHits)
}

func TestEngine_OrphanMissDoesNotLeak(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	a, b := &spy{}, &spy{}

	e.Cast("p1", origin, tenX, a.handlers())
	e.HandleHit("p1", geom.P(5, 0, 0), up)
	require.Len(t, a.hits, 1)

	// Late miss for a subject that has already drained.
	e.HandleMiss("p1")
	assert.Equal(t, 0, e.PendingMisses("p1"))

	e.Cast("p1", origin, tenX, b.handlers())
	assert.Equal(t, 0, b.total(), "new request is not resolved by the orphan miss")
	assert.Equal(t, 0, e.PendingMisses("p1"))
	assert.Equal(t, 1, e.TrackedFor("p1"))
}

func TestEngine_OrphanResetAfterStaleDrain(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	a, b, c := &spy{}, &spy{}, &spy{}

	e.Cast("p1", origin, tenX, a.handlers())
	e.Cast("p1", origin, tenX, b.handlers())
	e.HandleMiss("p1")
	require.Equal(t, 1, e.PendingMisses("p1"))

	clock.Advance(3 * time.Second)
	e.PruneSubject("p1")
	require.Len(t, a.misses, 1)
	require.Len(t, b.misses, 1)

	e.Cast("p1", origin, tenX, c.handlers())
	assert.Equal(t, 0, e.PendingMisses("p1"))
	assert.Equal(t, 0, c.total())
}

func TestEngine_LazyPruneOnCast(t *testing.T) {
	e, clock, rays := setupTestEngine(t)
	old, fresh := &spy{}, &spy{}

	e.Cast("p1", origin, tenX, old.handlers())
	clock.Advance(2500 * time.Millisecond)

	e.Cast("p1", origin, tenX, fresh.handlers())

	require.Len(t, old.misses, 1, "stale request pruned by the next cast for its subject")
	assert.Equal(t, MissStale, old.misses[0].Reason)
	assert.Equal(t, 1, e.TrackedFor("p1"))
	assert.Len(t, *rays, 2)
}

func TestEngine_LazyPruneOnlyTouchesCastSubject(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	other := &spy{}

	e.Cast("p2", origin, tenX, other.handlers())
	clock.Advance(2500 * time.Millisecond)
	e.Cast("p1", origin, tenX, (&spy{}).handlers())

	assert.Equal(t, 0, other.total())
	assert.Equal(t, 1, e.TrackedFor("p2"))
}

func TestEngine_LazyPruneRetiresPendingMisses(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	a, b, c := &spy{}, &spy{}, &spy{}

	e.Cast("p1", origin, tenX, a.handlers())
	e.Cast("p1", origin, tenX, b.handlers())
	e.HandleMiss("p1")
	clock.Advance(2500 * time.Millisecond)

	e.Cast("p1", origin, tenX, c.handlers())

	assert.Len(t, a.misses, 1)
	assert.Len(t, b.misses, 1)
	assert.Equal(t, 0, c.total())
	assert.Equal(t, 0, e.PendingMisses("p1"), "pruning floors pending misses at zero")
}

func TestEngine_Remove(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	p := &spy{}

	id, _ := e.Cast("p1", origin, tenX, p.handlers())

	assert.True(t, e.Remove("p1", id))
	assert.False(t, e.Remove("p1", id))
	assert.False(t, e.Remove("nobody", id))
	assert.Equal(t, 0, p.total(), "remove fires no handler")
	assert.Empty(t, e.Subjects())
}

func TestEngine_RemoveSettlesPendingMisses(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	a, b := &spy{}, &spy{}

	idA, _ := e.Cast("p1", origin, tenX, a.handlers())
	e.Cast("p1", geom.P(0, 5, 0), geom.P(10, 5, 0), b.handlers())
	e.HandleMiss("p1")
	require.Equal(t, 1, e.PendingMisses("p1"), "one miss cannot settle two requests")

	require.True(t, e.Remove("p1", idA))

	assert.Equal(t, 0, a.total(), "removed request fires nothing")
	require.Len(t, b.misses, 1, "remaining request settled by the pending miss")
	assert.Equal(t, MissReported, b.misses[0].Reason)
	assert.Equal(t, 0, e.Tracked())
	assert.Equal(t, 0, e.PendingMisses("p1"))
	assert.Equal(t, uint64(1), e.Stats().Misses)
}

func TestEngine_HandlerErrorIsolated(t *testing.T) {
	var diag []error
	e, _, _ := setupTestEngine(t, WithDiagnostics(func(err error) { diag = append(diag, err) }))
	good := &spy{}

	failing := Handlers{OnMiss: func(Miss) error { return errors.New("boom") }}
	e.Cast("p1", origin, tenX, failing)
	e.Cast("p1", origin, tenX, good.handlers())

	e.HandleMiss("p1")
	e.HandleMiss("p1")

	require.Len(t, diag, 1)
	var he *HandlerError
	require.True(t, errors.As(diag[0], &he))
	assert.Equal(t, ErrCodeHandlerFailed, he.Code)
	assert.Equal(t, RequestID(1), he.RequestID)
	assert.Equal(t, OutcomeMiss, he.Outcome)
	assert.EqualError(t, errors.Unwrap(diag[0]), "boom")

	assert.Len(t, good.misses, 1, "later handlers still run")
	assert.Equal(t, 0, e.Tracked())
	assert.Equal(t, uint64(1), e.Stats().HandlerFailures)
}

func TestEngine_HandlerPanicIsolated(t *testing.T) {
	var diag []error
	e, _, _ := setupTestEngine(t, WithDiagnostics(func(err error) { diag = append(diag, err) }))
	good := &spy{}

	e.Cast("p1", origin, tenX, Handlers{OnHit: func(Hit) error { panic("handler exploded") }})
	e.Cast("p1", geom.P(0, 5, 0), geom.P(10, 5, 0), good.handlers())
	e.HandleMiss("p1")

	assert.NotPanics(t, func() {
		e.HandleHit("p1", geom.P(5, 0, 0), up)
	})

	require.Len(t, diag, 1)
	assert.True(t, IsHandlerPanic(diag[0]))
	assert.Contains(t, diag[0].Error(), "handler exploded")
	assert.Len(t, good.misses, 1, "re-check still resolves the remaining request")
	assert.Equal(t, 0, e.Tracked())
}

func TestEngine_MissingHandlerForOutcome(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	var hits int

	e.Cast("p1", origin, tenX, Handlers{OnHit: func(Hit) error { hits++; return nil }})
	e.HandleMiss("p1")

	assert.Equal(t, 0, hits)
	assert.Equal(t, 0, e.Tracked(), "request resolves even with no miss handler")
}

func TestEngine_HandlerMayReenter(t *testing.T) {
	e, _, rays := setupTestEngine(t)
	retried := &spy{}

	e.Cast("p1", origin, tenX, Handlers{
		OnMiss: func(m Miss) error {
			_, ok := e.Cast(m.Subject, m.Start, m.End, retried.handlers())
			if !ok {
				return errors.New("retry rejected")
			}
			return nil
		},
	})

	e.HandleMiss("p1")

	assert.Equal(t, 1, e.TrackedFor("p1"), "retry registered from inside a handler")
	assert.Len(t, *rays, 2)

	e.HandleHit("p1", geom.P(2, 0, 0), up)
	assert.Len(t, retried.hits, 1)
}

func TestEngine_ObserverReceivesResolutions(t *testing.T) {
	var got []Resolution
	e, clock, _ := setupTestEngine(t, WithObserver(ObserverFunc(func(r Resolution) {
		got = append(got, r)
	})))
	p := &spy{}

	e.Cast("p1", origin, tenX, p.handlers())
	e.Cast("p1", geom.P(0, 5, 0), geom.P(10, 5, 0), p.handlers())
	clock.Advance(100 * time.Millisecond)
	e.HandleMiss("p1")
	e.HandleHit("p1", geom.P(5, 0, 0), up)

	require.Len(t, got, 2)
	assert.Equal(t, OutcomeHit, got[0].Outcome)
	assert.Equal(t, RequestID(1), got[0].RequestID)
	assert.Equal(t, geom.P(5, 0, 0), got[0].Point)
	assert.Equal(t, 100*time.Millisecond, got[0].Age)
	assert.Equal(t, OutcomeMiss, got[1].Outcome)
	assert.Equal(t, RequestID(2), got[1].RequestID)
	assert.Less(t, got[0].Seq, got[1].Seq)
	assert.Equal(t, "test-session", got[0].Session)
	assert.Empty(t, got[0].HandlerError)
}

func TestEngine_ObserverSeesHandlerError(t *testing.T) {
	var got []Resolution
	e, _, _ := setupTestEngine(t,
		WithDiagnostics(func(error) {}),
		WithObserver(ObserverFunc(func(r Resolution) { got = append(got, r) })),
	)

	e.Cast("p1", origin, tenX, Handlers{OnMiss: func(Miss) error { return errors.New("nope") }})
	e.HandleMiss("p1")

	require.Len(t, got, 1)
	assert.Contains(t, got[0].HandlerError, "nope")
}

func TestEngine_StartPruning(t *testing.T) {
	sched := schedule.NewManual()
	e := New(nil,
		WithClock(sched),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	p := &spy{}

	h := e.StartPruning(sched)
	e.Cast("p1", origin, tenX, p.handlers())

	sched.Advance(4999 * time.Millisecond)
	assert.Equal(t, 0, p.total(), "no sweep before the interval")

	sched.Advance(time.Millisecond)
	require.Len(t, p.misses, 1)
	assert.Equal(t, MissStale, p.misses[0].Reason)

	h.Cancel()
	e.Cast("p1", origin, tenX, p.handlers())
	sched.Advance(time.Minute)
	assert.Equal(t, 1, e.TrackedFor("p1"), "cancelled sweep no longer runs")
}

func TestEngine_Reporter(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	p := &spy{}
	var r Reporter = e

	e.Cast("p1", origin, tenX, p.handlers())
	e.Cast("p1", origin, geom.P(0, 10, 0), p.handlers())
	r.OnRayHit("p1", geom.P(5, 0, 0), up)
	r.OnRayMiss("p1")

	assert.Len(t, p.hits, 1)
	assert.Len(t, p.misses, 1)
}

func TestEngine_ConcurrentExactlyOnce(t *testing.T) {
	e := New(nil,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTTL(time.Hour),
	)
	const casts = 200
	subjects := []Subject{"a", "b", "c", "d"}

	var mu sync.Mutex
	resolved := make(map[RequestID]int)
	h := Handlers{
		OnHit: func(hit Hit) error {
			mu.Lock()
			resolved[hit.RequestID]++
			mu.Unlock()
			return nil
		},
		OnMiss: func(m Miss) error {
			mu.Lock()
			resolved[m.RequestID]++
			mu.Unlock()
			return nil
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < casts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.Cast(subjects[i%len(subjects)], origin, tenX, h)
		}(i)
	}
	wg.Wait()
	require.Equal(t, casts, e.Tracked())

	for i := 0; i < casts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := subjects[i%len(subjects)]
			if i%3 == 0 {
				e.HandleHit(s, geom.P(5, 0, 0), up)
			} else {
				e.HandleMiss(s)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, e.Tracked())
	assert.Len(t, resolved, casts)
	for id, n := range resolved {
		assert.Equal(t, 1, n, "request %d resolved %d times", id, n)
	}
}
