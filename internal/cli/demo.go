package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/raycorr/internal/config"
	"github.com/roach88/raycorr/internal/engine"
	"github.com/roach88/raycorr/internal/geom"
	"github.com/roach88/raycorr/internal/oracle"
	"github.com/roach88/raycorr/internal/raycast"
	"github.com/roach88/raycorr/internal/schedule"
	"github.com/roach88/raycorr/internal/store"
)

// DemoOptions holds flags for the demo command.
type DemoOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
	Rays       int
	Subjects   int
	Seed       uint64
	LatencyMs  int

	// SessionGenerator allows overriding the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionGenerator engine.SessionGenerator
}

// DemoStats mirrors engine.Stats for output.
type DemoStats struct {
	Casts           uint64 `json:"casts"`
	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
	Stale           uint64 `json:"stale"`
	DroppedHits     uint64 `json:"dropped_hits"`
	DroppedMisses   uint64 `json:"dropped_misses"`
	HandlerFailures uint64 `json:"handler_failures"`
}

// DemoResult holds the demo command output.
type DemoResult struct {
	Session     string           `json:"session"`
	Rays        int              `json:"rays"`
	Outstanding int              `json:"outstanding"`
	Journalled  int              `json:"journalled,omitempty"`
	Stats       DemoStats        `json:"stats"`
	Resolutions []ResolutionView `json:"resolutions"`
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Correlate rays against a simulated sphere world",
		Long: `Cast random rays into a small world of spheres and correlate the answers.

The world answers each ray after a latency on the wall clock, reporting only
a hit point or a bare miss. Answers and prune ticks are serialized through the
engine's event loop. The command exits once every ray has resolved, or after
TTL + prune interval if some never do.

Examples:
  raycorr demo
  raycorr demo --rays 200 --subjects 8 --seed 7
  raycorr demo --config ./raycorr.yaml --db ./journal.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "engine configuration file (YAML)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal casts and resolutions to this SQLite database")
	cmd.Flags().IntVar(&opts.Rays, "rays", 20, "number of rays to cast")
	cmd.Flags().IntVar(&opts.Subjects, "subjects", 3, "number of subjects to spread rays over")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "random seed for ray geometry")
	cmd.Flags().IntVar(&opts.LatencyMs, "latency-ms", int(oracle.DefaultLatency/time.Millisecond), "world answer latency")

	return cmd
}

func runDemo(opts *DemoOptions, cmd *cobra.Command) error {
	if opts.Rays <= 0 || opts.Subjects <= 0 {
		return NewExitError(ExitCommandError, "--rays and --subjects must be positive")
	}
	if opts.LatencyMs < 0 {
		return NewExitError(ExitCommandError, "--latency-ms must be non-negative")
	}

	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid configuration", err)
		}
		cfg = loaded
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, cfg.SlogLevel())

	var journal *store.Journal
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		// Writes outlive the run context so late resolutions still land.
		journal = store.NewJournal(context.Background(), st, logger)
	}

	sched := schedule.Wall{}
	latency := time.Duration(opts.LatencyMs) * time.Millisecond
	world := oracle.NewWorld(sched, oracle.WithLatency(latency), oracle.WithWorldLogger(logger))
	buildDemoScene(world, opts.Subjects)

	var (
		mu    sync.Mutex
		views []ResolutionView
	)
	allResolved := make(chan struct{})
	observer := engine.ObserverFunc(func(r engine.Resolution) {
		if journal != nil {
			journal.Observe(r)
		}
		mu.Lock()
		defer mu.Unlock()
		views = append(views, viewResolution(r))
		if len(views) == opts.Rays {
			close(allResolved)
		}
	})

	sessionGen := opts.SessionGenerator
	if sessionGen == nil {
		sessionGen = engine.UUIDv7Generator{}
	}
	e := engine.New(world, append(cfg.EngineOptions(),
		engine.WithLogger(logger),
		engine.WithObserver(observer),
		engine.WithSessionGenerator(sessionGen),
	)...)
	loop := engine.NewLoop(e)
	world.SetReporter(loop)

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	deadline := cfg.TTL() + cfg.PruneInterval() + latency + time.Second
	ctx, cancel := context.WithTimeout(parentCtx, deadline)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runDone := make(chan error, 1)
	go func() {
		runDone <- loop.Run(ctx)
	}()
	prune := loop.StartPruning(sched)
	defer prune.Cancel()

	logger.Info("demo starting",
		"session", e.Session(),
		"rays", opts.Rays,
		"subjects", opts.Subjects,
		"epsilon", e.Epsilon(),
		"ttl", e.TTL(),
	)

	// Casts go straight to the engine, which is safe for concurrent use, so
	// each new request can be journalled with its id.
	caster := raycast.New[geom.Vec3](e, raycast.Vec3Codec{})
	noop := raycast.Handlers[geom.Vec3]{
		OnHit:  func(raycast.Hit[geom.Vec3]) error { return nil },
		OnMiss: func(raycast.Miss[geom.Vec3]) error { return nil },
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	for i := 0; i < opts.Rays; i++ {
		subject := engine.Subject(fmt.Sprintf("player-%d", i%opts.Subjects+1))
		start, end := randomRay(rng)
		id, err := caster.Cast(subject, start, end, noop)
		if err != nil {
			return WrapExitError(ExitFailure, "cast failed", err)
		}
		if journal != nil {
			recordDemoCast(e, journal, subject, id, logger)
		}
	}

	select {
	case <-allResolved:
	case <-ctx.Done():
		logger.Warn("demo stopped before every ray resolved", "reason", ctx.Err())
	}
	loop.Stop()
	if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "event loop error", err)
	}

	mu.Lock()
	resolved := append([]ResolutionView(nil), views...)
	mu.Unlock()
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Seq < resolved[j].Seq })

	s := e.Stats()
	result := DemoResult{
		Session:     e.Session(),
		Rays:        opts.Rays,
		Outstanding: e.Tracked(),
		Stats: DemoStats{
			Casts:           s.Casts,
			Hits:            s.Hits,
			Misses:          s.Misses,
			Stale:           s.Stale,
			DroppedHits:     s.DroppedHits,
			DroppedMisses:   s.DroppedMisses,
			HandlerFailures: s.HandlerFailures,
		},
		Resolutions: resolved,
	}
	if journal != nil {
		result.Journalled = journal.Written()
		if n := journal.Failures(); n > 0 {
			logger.Warn("some resolutions were not journalled", "failures", n)
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Render("ok", result, func(w io.Writer) {
		outputDemoText(w, result)
	})
}

// buildDemoScene places a few shared spheres around the origin and one
// private sphere per subject.
func buildDemoScene(world *oracle.World, subjects int) {
	world.AddShared(oracle.Sphere{Center: geom.P(12, 0, 0), Radius: 3})
	world.AddShared(oracle.Sphere{Center: geom.P(0, 12, 0), Radius: 2})
	world.AddShared(oracle.Sphere{Center: geom.P(-9, -9, 0), Radius: 4})
	for i := 1; i <= subjects; i++ {
		subject := engine.Subject(fmt.Sprintf("player-%d", i))
		world.AddSphere(subject, oracle.Sphere{Center: geom.P(0, 0, float64(6+i)), Radius: 1.5})
	}
}

// randomRay returns a 20-unit segment from near the origin in a random
// direction.
func randomRay(rng *rand.Rand) (start, end geom.Vec3) {
	s := geom.P(rng.Float64()*2-1, rng.Float64()*2-1, rng.Float64()*2-1)
	dir := geom.P(rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()).Normalize()
	return s.Vec3(), s.Add(dir.Scale(20)).Vec3()
}

func recordDemoCast(e *engine.Engine, journal *store.Journal, subject engine.Subject, id engine.RequestID, logger *slog.Logger) {
	for _, req := range e.Requests(subject) {
		if req.ID != id {
			continue
		}
		if err := journal.RecordCast(e.Session(), req); err != nil {
			logger.Error("journal cast failed", "request_id", id, "error", err)
		}
		return
	}
	// Already resolved before we looked; the resolution row is journalled
	// on its own.
}

func outputDemoText(w io.Writer, result DemoResult) {
	for _, r := range result.Resolutions {
		line := fmt.Sprintf("[%d] %s request %d %s after %dms", r.Seq, r.Subject, r.RequestID, r.Outcome, r.AgeMs)
		if r.Point != "" {
			line += fmt.Sprintf(" at %s score=%s", r.Point, *r.Score)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Session: %s\n", result.Session)
	fmt.Fprintf(w, "Rays: %d  Hits: %d  Misses: %d  Stale: %d  Outstanding: %d\n",
		result.Rays, result.Stats.Hits, result.Stats.Misses, result.Stats.Stale, result.Outstanding)
	if result.Journalled > 0 {
		fmt.Fprintf(w, "Journalled: %d resolutions\n", result.Journalled)
	}
	if result.Stats.DroppedHits+result.Stats.DroppedMisses > 0 {
		fmt.Fprintf(w, "Dropped events: %d hits, %d misses\n", result.Stats.DroppedHits, result.Stats.DroppedMisses)
	}
}
