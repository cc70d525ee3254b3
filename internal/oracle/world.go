package oracle

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/roach88/raycorr/internal/engine"
	"github.com/roach88/raycorr/internal/geom"
	"github.com/roach88/raycorr/internal/schedule"
)

// DefaultLatency is how long World takes to answer a ray unless configured.
const DefaultLatency = 50 * time.Millisecond

// Sphere is a solid obstacle.
type Sphere struct {
	Center geom.Point3 `json:"center" yaml:"center"`
	Radius float64     `json:"radius" yaml:"radius"`
}

// World is a simulated physics backend made of spheres.
//
// Each subject sees the shared spheres plus its own. A ray is traced
// immediately against the scene as it stands at IssueRay time; the answer is
// delivered to the Reporter latency later via the Scheduler, so answers can
// interleave with further casts exactly as a real asynchronous backend's would.
//
// Like the backends it stands in for, World never tells the reporter which
// ray an answer belongs to.
type World struct {
	mu       sync.Mutex
	shared   []Sphere
	spheres  map[engine.Subject][]Sphere
	reporter engine.Reporter

	sched   schedule.Scheduler
	latency time.Duration
	logger  *slog.Logger
}

// WorldOption configures a World.
type WorldOption func(*World)

// WithLatency sets the delay between IssueRay and the answer.
//
// Default: 50ms (DefaultLatency)
func WithLatency(d time.Duration) WorldOption {
	return func(w *World) {
		w.latency = d
	}
}

// WithWorldLogger sets the logger. Default: slog.Default().
func WithWorldLogger(l *slog.Logger) WorldOption {
	return func(w *World) {
		w.logger = l
	}
}

// NewWorld creates an empty world that answers through sched.
//
// The reporter is attached separately with SetReporter, since the engine that
// receives answers is usually constructed with the world as its oracle.
func NewWorld(sched schedule.Scheduler, opts ...WorldOption) *World {
	w := &World{
		spheres: make(map[engine.Subject][]Sphere),
		sched:   sched,
		latency: DefaultLatency,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// SetReporter sets where answers are delivered. Rays issued while no reporter
// is set are traced but their answers are discarded.
func (w *World) SetReporter(r engine.Reporter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reporter = r
}

// AddShared adds a sphere every subject can hit.
func (w *World) AddShared(s Sphere) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shared = append(w.shared, s)
}

// AddSphere adds a sphere only subject can hit.
func (w *World) AddSphere(subject engine.Subject, s Sphere) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.spheres[subject] = append(w.spheres[subject], s)
}

// Clear removes every sphere.
func (w *World) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shared = nil
	w.spheres = make(map[engine.Subject][]Sphere)
}

// IssueRay implements engine.Oracle.
func (w *World) IssueRay(subject engine.Subject, start, end geom.Point3) {
	w.mu.Lock()
	scene := make([]Sphere, 0, len(w.shared)+len(w.spheres[subject]))
	scene = append(scene, w.shared...)
	scene = append(scene, w.spheres[subject]...)
	w.mu.Unlock()

	point, normal, hit := Trace(start, end, scene)
	w.logger.Debug("ray traced",
		"subject", subject,
		"start", start,
		"end", end,
		"hit", hit,
	)

	w.sched.After(w.latency, func() {
		w.mu.Lock()
		r := w.reporter
		w.mu.Unlock()
		if r == nil {
			return
		}
		if hit {
			r.OnRayHit(subject, point, normal)
		} else {
			r.OnRayMiss(subject)
		}
	})
}

// Trace returns the first point along start→end that lies on any sphere's
// surface, with the outward surface normal there.
//
// A segment that starts inside a sphere hits where it exits. A zero-length
// segment hits only if it sits inside or on a sphere.
func Trace(start, end geom.Point3, scene []Sphere) (point, normal geom.Point3, ok bool) {
	best := math.Inf(1)
	var bestSphere Sphere

	for _, s := range scene {
		t, hit := intersect(start, end, s)
		if hit && t < best {
			best = t
			bestSphere = s
		}
	}
	if math.IsInf(best, 1) {
		return geom.Point3{}, geom.Point3{}, false
	}

	point = start.Add(end.Sub(start).Scale(best))
	normal = point.Sub(bestSphere.Center).Normalize()
	return point, normal, true
}

// intersect solves |start + t(end-start) - c|^2 = r^2 for the smallest t in
// [0, 1].
func intersect(start, end geom.Point3, s Sphere) (float64, bool) {
	d := end.Sub(start)
	f := start.Sub(s.Center)

	a := d.Dot(d)
	c := f.Dot(f) - s.Radius*s.Radius
	if a == 0 {
		return 0, c <= 0
	}
	b := 2 * f.Dot(d)

	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t1 := (-b - sq) / (2 * a)
	t2 := (-b + sq) / (2 * a)

	switch {
	case t1 >= 0 && t1 <= 1:
		return t1, true
	case t1 < 0 && t2 >= 0 && t2 <= 1:
		return t2, true
	default:
		return 0, false
	}
}
