package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/raycorr/internal/geom"
	"github.com/roach88/raycorr/internal/schedule"
)

// Engine correlates identity-less hit/miss events back to the requests that
// produced them.
//
// Every public entry point runs prune → match/accumulate → remove under one
// mutex, then dispatches handlers after releasing it. Removal always happens
// before dispatch, so a request resolves exactly once even when hit, miss and
// prune events for the same subject race from different goroutines.
//
// Thread-safety model:
//   - Cast, HandleHit, HandleMiss, PruneAll, PruneSubject and all
//     introspection methods are safe from any goroutine.
//   - Handlers run on the goroutine that resolved them, without the engine
//     lock; they may call back into the engine.
//   - Handlers for one call run in resolution order. Across concurrent calls
//     there is no dispatch ordering guarantee; use Loop for a single writer.
type Engine struct {
	mu          sync.Mutex
	reg         *registry
	resolutions *Sequence
	stats       Stats

	oracle      Oracle
	clock       TimeSource
	epsilon     float64
	ttl         time.Duration
	prune       time.Duration
	logger      *slog.Logger
	diagnostics func(error)
	observer    Observer
	sessionGen  SessionGenerator
	session     string
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithEpsilon sets the maximum consistency error for a hit to match.
//
// Default: 0.5 (DefaultEpsilon)
func WithEpsilon(epsilon float64) EngineOption {
	return func(e *Engine) {
		e.epsilon = epsilon
	}
}

// WithTTL sets how long a request stays matchable.
//
// Default: 2s (DefaultTTL)
func WithTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.ttl = ttl
	}
}

// WithPruneInterval sets the period used by StartPruning.
//
// Default: 5s (DefaultPruneInterval)
func WithPruneInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.prune = d
	}
}

// WithClock sets the time source used for TTL checks.
func WithClock(c TimeSource) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithDiagnostics sets the sink for handler failures. Every error passed to
// it is a *HandlerError. Default: log at Error level.
func WithDiagnostics(fn func(error)) EngineOption {
	return func(e *Engine) {
		e.diagnostics = fn
	}
}

// WithObserver sets an observer that receives every Resolution.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithSessionGenerator overrides the session id generator.
// Default: UUIDv7Generator.
func WithSessionGenerator(g SessionGenerator) EngineOption {
	return func(e *Engine) {
		e.sessionGen = g
	}
}

// New creates an Engine that issues rays through oracle.
//
// oracle may be nil, in which case Cast only registers requests; this is
// useful when events are fed in by hand (tests, replays).
func New(oracle Oracle, opts ...EngineOption) *Engine {
	e := &Engine{
		reg:         newRegistry(),
		resolutions: NewSequence(),
		oracle:      oracle,
		clock:       systemTime{},
		epsilon:     DefaultEpsilon,
		ttl:         DefaultTTL,
		prune:       DefaultPruneInterval,
		sessionGen:  UUIDv7Generator{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.session = e.sessionGen.Generate()
	e.logger = e.logger.With("session", e.session)
	if e.diagnostics == nil {
		logger := e.logger
		e.diagnostics = func(err error) {
			logger.Error("handler failed", "error", err)
		}
	}

	return e
}

// Cast registers a request and issues its ray.
//
// The subject's stale requests are pruned first, so a burst of casts keeps
// the registry bounded even without the periodic sweep. Cast returns as soon
// as the ray is issued; the outcome arrives later through the handlers.
//
// A request with neither handler is rejected: nothing is registered, no ray
// is issued, and ok is false.
func (e *Engine) Cast(subject Subject, start, end geom.Point3, h Handlers) (id RequestID, ok bool) {
	if h.empty() {
		e.mu.Lock()
		e.stats.Rejected++
		e.mu.Unlock()
		e.logger.Debug("cast rejected: no handlers", "subject", subject)
		return 0, false
	}

	e.mu.Lock()
	now := e.clock.Now()
	out := e.pruneStale(subject, now, nil)
	r := e.reg.insert(subject, start, end, now, h)
	e.stats.Casts++
	e.mu.Unlock()

	e.logger.Debug("request registered",
		"subject", subject,
		"request_id", r.id,
		"start", start,
		"end", end,
		"total_distance", r.total,
	)

	e.dispatch(out)
	if e.oracle != nil {
		e.oracle.IssueRay(subject, start, end)
	}
	return r.id, true
}

// HandleHit attributes a hit at point to the best-fitting outstanding request
// of subject and fires its OnHit. A hit with no request within epsilon is
// dropped.
//
// Removing the matched request shrinks the live set, so the miss-counting
// rule is re-checked afterwards and may resolve the remainder.
func (e *Engine) HandleHit(subject Subject, point, normal geom.Point3) {
	e.mu.Lock()
	st := e.reg.get(subject)
	if st == nil || st.len() == 0 {
		e.stats.DroppedHits++
		e.mu.Unlock()
		e.logger.Debug("hit dropped: no outstanding requests", "subject", subject, "point", point)
		return
	}

	now := e.clock.Now()
	best, score := e.match(st, point, now)
	if best == nil {
		e.stats.DroppedHits++
		e.mu.Unlock()
		e.logger.Debug("hit dropped: no consistent request", "subject", subject, "point", point)
		return
	}

	st.remove(best.id)
	out := []settled{e.settleHit(best, point, normal, score, now)}
	out = e.resolveMisses(subject, now, out)
	e.mu.Unlock()

	e.logger.Debug("hit attributed",
		"subject", subject,
		"request_id", best.id,
		"score", score,
	)
	e.dispatch(out)
}

// HandleMiss records a miss event for subject. Once the subject's pending
// misses cover all of its outstanding requests, every one of them resolves
// as a miss. A miss for a subject with nothing outstanding is dropped.
func (e *Engine) HandleMiss(subject Subject) {
	e.mu.Lock()
	st := e.reg.get(subject)
	if st == nil || st.len() == 0 {
		e.stats.DroppedMisses++
		e.reg.collect(subject)
		e.mu.Unlock()
		e.logger.Debug("miss dropped: no outstanding requests", "subject", subject)
		return
	}

	st.pendingMisses++
	e.logger.Debug("miss pending",
		"subject", subject,
		"pending_misses", st.pendingMisses,
		"requests", st.len(),
	)
	out := e.resolveMisses(subject, e.clock.Now(), nil)
	e.mu.Unlock()

	e.dispatch(out)
}

// OnRayHit implements Reporter.
func (e *Engine) OnRayHit(subject Subject, point, normal geom.Point3) {
	e.HandleHit(subject, point, normal)
}

// OnRayMiss implements Reporter.
func (e *Engine) OnRayMiss(subject Subject) {
	e.HandleMiss(subject)
}

// PruneAll sweeps every subject, resolving stale requests as misses and
// dropping subjects left empty. Subjects are swept in lexical order.
//
// Idempotent: a second call with no time elapsed and no new events fires
// nothing.
func (e *Engine) PruneAll() {
	e.mu.Lock()
	now := e.clock.Now()
	var out []settled
	for _, subject := range e.reg.sortedSubjects() {
		out = e.pruneStale(subject, now, out)
	}
	remaining := e.reg.count()
	e.mu.Unlock()

	if len(out) > 0 {
		e.logger.Debug("prune sweep", "resolved", len(out), "remaining", remaining)
	}
	e.dispatch(out)
}

// PruneSubject sweeps a single subject, e.g. on subject teardown.
func (e *Engine) PruneSubject(subject Subject) {
	e.mu.Lock()
	out := e.pruneStale(subject, e.clock.Now(), nil)
	e.mu.Unlock()

	e.dispatch(out)
}

// StartPruning schedules PruneAll every prune interval on s. Cancel the
// returned handle to stop.
func (e *Engine) StartPruning(s schedule.Scheduler) schedule.Handle {
	e.logger.Info("periodic pruning started", "interval", e.prune, "ttl", e.ttl)
	return s.Every(e.prune, e.PruneAll)
}

// Remove discards an outstanding request without firing any handler.
// Returns false if the request is not outstanding.
//
// The subject's live set shrinks, so pending misses are re-checked and may
// settle the requests that remain.
func (e *Engine) Remove(subject Subject, id RequestID) bool {
	e.mu.Lock()
	if !e.reg.remove(subject, id) {
		e.mu.Unlock()
		return false
	}
	out := e.resolveMisses(subject, e.clock.Now(), nil)
	e.mu.Unlock()

	e.dispatch(out)
	return true
}

// Tracked returns the total number of outstanding requests.
func (e *Engine) Tracked() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.count()
}

// TrackedFor returns the number of outstanding requests for subject.
func (e *Engine) TrackedFor(subject Subject) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.reg.get(subject); st != nil {
		return st.len()
	}
	return 0
}

// PendingMisses returns the subject's count of unattributed miss events.
func (e *Engine) PendingMisses(subject Subject) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st := e.reg.get(subject); st != nil {
		return st.pendingMisses
	}
	return 0
}

// Subjects returns the subjects with outstanding requests, sorted.
func (e *Engine) Subjects() []Subject {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reg.sortedSubjects()
}

// Requests returns snapshots of the subject's outstanding requests, oldest
// first.
func (e *Engine) Requests(subject Subject) []Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.reg.get(subject)
	if st == nil {
		return nil
	}
	out := make([]Request, 0, st.len())
	for _, r := range st.requests {
		out = append(out, r.snapshot())
	}
	return out
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Session returns the engine's session id.
func (e *Engine) Session() string {
	return e.session
}

// Epsilon returns the configured match epsilon.
func (e *Engine) Epsilon() float64 { return e.epsilon }

// TTL returns the configured request time-to-live.
func (e *Engine) TTL() time.Duration { return e.ttl }

// PruneInterval returns the configured periodic prune interval.
func (e *Engine) PruneInterval() time.Duration { return e.prune }
