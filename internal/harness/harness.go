package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/raycorr/internal/engine"
	"github.com/roach88/raycorr/internal/geom"
	"github.com/roach88/raycorr/internal/oracle"
	"github.com/roach88/raycorr/internal/raycast"
	"github.com/roach88/raycorr/internal/schedule"
	"github.com/roach88/raycorr/internal/store"
	"github.com/roach88/raycorr/internal/testutil"
)

// Harness is the test execution engine.
// It drives one engine through a scenario on a manual clock.
type Harness struct {
	sched    *schedule.Manual
	engine   *engine.Engine
	recorder *oracle.Recorder
	caster   *raycast.Caster[[]float64]
	reporter *raycast.Reporter[[]float64]
	journal  *store.Journal
	logger   *slog.Logger

	result *Result
	labels map[engine.RequestID]string
	step   int
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	store  *store.Store
	logger *slog.Logger
}

// WithStore journals every cast and resolution of the run to s.
func WithStore(s *store.Store) Option {
	return func(c *runConfig) {
		c.store = s
	}
}

// WithLogger sets the logger handed to the engine and world.
// Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh engine whose clock and background
// timers are a schedule.Manual starting at schedule.Epoch, with a fixed
// session id. Running the same scenario twice gives identical traces.
//
// Execution flow:
// 1. Resolve config overrides and build the engine
// 2. Execute steps in order, tracing everything the engine does
// 3. Evaluate assertions against the final state
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	rc := runConfig{}
	for _, opt := range opts {
		opt(&rc)
	}
	if rc.logger == nil {
		rc.logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	}

	cfg, err := scenario.engineConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config: %w", err)
	}

	h := &Harness{
		sched:    schedule.NewManual(),
		recorder: oracle.NewRecorder(),
		logger:   rc.logger,
		result:   NewResult(),
		labels:   make(map[engine.RequestID]string),
	}
	if rc.store != nil {
		h.journal = store.NewJournal(context.Background(), rc.store, rc.logger)
	}

	var issuer engine.Oracle = h.recorder
	if scenario.World != nil {
		world, err := h.buildWorld(scenario.World)
		if err != nil {
			return nil, fmt.Errorf("failed to build world: %w", err)
		}
		issuer = engine.OracleFunc(func(subject engine.Subject, start, end geom.Point3) {
			h.recorder.IssueRay(subject, start, end)
			world.IssueRay(subject, start, end)
		})
	}

	engineOpts := append(cfg.EngineOptions(),
		engine.WithClock(h.sched),
		engine.WithLogger(rc.logger),
		engine.WithSessionGenerator(testutil.NewFixedSessionGenerator(scenario.Session)),
		engine.WithObserver(h),
	)
	h.engine = engine.New(issuer, engineOpts...)
	h.caster = raycast.New[[]float64](h.engine, raycast.SliceCodec{})
	h.reporter = raycast.NewReporter[[]float64](tracer{h}, raycast.SliceCodec{})
	h.result.Session = h.engine.Session()

	if scenario.PeriodicPrune {
		prune := h.engine.StartPruning(h.sched)
		defer prune.Cancel()
	}

	for i, step := range scenario.Steps {
		h.step = i + 1
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("step %d: %w", h.step, err)
		}
	}

	h.result.Stats = h.engine.Stats()

	actx := &AssertionContext{
		Engine:   h.engine,
		Recorder: h.recorder,
	}
	assertionErrors := EvaluateAssertions(h.result, scenario.Assertions, actx)
	for _, errMsg := range assertionErrors {
		h.result.AddError(errMsg)
	}

	return h.result, nil
}

func (h *Harness) buildWorld(ws *WorldSpec) (*oracle.World, error) {
	opts := []oracle.WorldOption{oracle.WithWorldLogger(h.logger)}
	if ws.LatencyMs > 0 {
		opts = append(opts, oracle.WithLatency(time.Duration(ws.LatencyMs)*time.Millisecond))
	}
	world := oracle.NewWorld(h.sched, opts...)
	for i, sp := range ws.Spheres {
		center, ok := geom.FromSlice(sp.Center)
		if !ok {
			return nil, fmt.Errorf("sphere %d: center must have 3 coordinates, got %d", i, len(sp.Center))
		}
		sphere := oracle.Sphere{Center: center, Radius: sp.Radius}
		if sp.Subject == "" {
			world.AddShared(sphere)
		} else {
			world.AddSphere(engine.Subject(sp.Subject), sphere)
		}
	}
	world.SetReporter(tracer{h})
	return world, nil
}

func (h *Harness) execute(step Step) error {
	switch {
	case step.Cast != nil:
		return h.cast(step.Cast)
	case step.Hit != nil:
		normal := step.Hit.Normal
		if normal == nil {
			normal = []float64{0, 0, 0}
		}
		return h.reporter.OnRayHit(engine.Subject(step.Hit.Subject), step.Hit.Point, normal)
	case step.Miss != nil:
		h.reporter.OnRayMiss(engine.Subject(step.Miss.Subject))
	case step.Advance != nil:
		h.sched.Advance(time.Duration(step.Advance.Ms) * time.Millisecond)
		h.result.AddTrace(TraceEvent{Step: h.step, Type: TraceAdvance, AtMs: h.nowMs()})
	case step.Prune != nil:
		h.result.AddTrace(TraceEvent{Step: h.step, Type: TracePrune, Subject: step.Prune.Subject, AtMs: h.nowMs()})
		if step.Prune.Subject == "" {
			h.engine.PruneAll()
		} else {
			h.engine.PruneSubject(engine.Subject(step.Prune.Subject))
		}
	default:
		return fmt.Errorf("empty step")
	}
	return nil
}

func (h *Harness) cast(c *CastStep) error {
	handlers := raycast.Handlers[[]float64]{}
	fail := failure(c.Fail, c.Label)
	switch c.Handlers {
	case "", HandlersBoth:
		handlers.OnHit = func(raycast.Hit[[]float64]) error { return fail() }
		handlers.OnMiss = func(raycast.Miss[[]float64]) error { return fail() }
	case HandlersHit:
		handlers.OnHit = func(raycast.Hit[[]float64]) error { return fail() }
	case HandlersMiss:
		handlers.OnMiss = func(raycast.Miss[[]float64]) error { return fail() }
	}

	subject := engine.Subject(c.Subject)
	id, err := h.caster.Cast(subject, c.Start, c.End, handlers)
	if err != nil {
		h.result.Outcomes[c.Label] = OutcomeRejected
		h.result.AddTrace(TraceEvent{
			Step:    h.step,
			Type:    TraceRejected,
			Label:   c.Label,
			Subject: c.Subject,
			AtMs:    h.nowMs(),
			Error:   err.Error(),
		})
		return nil
	}

	h.labels[id] = c.Label
	h.result.Outcomes[c.Label] = OutcomeNone
	h.result.AddTrace(TraceEvent{
		Step:      h.step,
		Type:      TraceCast,
		Label:     c.Label,
		Subject:   c.Subject,
		RequestID: int64(id),
		AtMs:      h.nowMs(),
	})

	if h.journal != nil {
		for _, req := range h.engine.Requests(subject) {
			if req.ID != id {
				continue
			}
			if err := h.journal.RecordCast(h.engine.Session(), req); err != nil {
				return fmt.Errorf("journal cast %s: %w", c.Label, err)
			}
		}
	}
	return nil
}

// failure returns the body of a scenario handler.
func failure(mode, label string) func() error {
	switch mode {
	case FailError:
		return func() error { return fmt.Errorf("%s failed", label) }
	case FailPanic:
		return func() error { panic(label + " panicked") }
	default:
		return func() error { return nil }
	}
}

// Observe implements engine.Observer. Resolutions are traced, and journalled
// when a store is attached.
func (h *Harness) Observe(r engine.Resolution) {
	label := h.labels[r.RequestID]
	ev := TraceEvent{
		Step:      h.step,
		Type:      TraceResolved,
		Label:     label,
		Subject:   string(r.Subject),
		RequestID: int64(r.RequestID),
		Outcome:   string(r.Outcome),
		AtMs:      r.At.Sub(schedule.Epoch).Milliseconds(),
		Error:     r.HandlerError,
	}
	if r.Outcome == engine.OutcomeHit {
		ev.Point = r.Point.String()
		ev.Score = formatScore(r.Score)
	}
	h.result.AddTrace(ev)
	h.result.Outcomes[label] = string(r.Outcome)

	if h.journal != nil {
		h.journal.Observe(r)
	}
}

func (h *Harness) nowMs() int64 {
	return h.sched.Now().Sub(schedule.Epoch).Milliseconds()
}

// tracer records oracle answers before forwarding them to the engine, for
// both scripted hit/miss steps and answers from a simulated world.
type tracer struct {
	h *Harness
}

func (t tracer) OnRayHit(subject engine.Subject, point, normal geom.Point3) {
	t.h.result.AddTrace(TraceEvent{
		Step:    t.h.step,
		Type:    TraceHit,
		Subject: string(subject),
		Point:   point.String(),
		AtMs:    t.h.nowMs(),
	})
	t.h.engine.OnRayHit(subject, point, normal)
}

func (t tracer) OnRayMiss(subject engine.Subject) {
	t.h.result.AddTrace(TraceEvent{
		Step:    t.h.step,
		Type:    TraceMiss,
		Subject: string(subject),
		AtMs:    t.h.nowMs(),
	})
	t.h.engine.OnRayMiss(subject)
}
