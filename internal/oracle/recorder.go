// Package oracle provides engine.Oracle implementations.
//
// Recorder only captures the rays it is asked to issue; whoever drives the
// engine reports outcomes by hand. World answers rays itself against a set of
// spheres, after a latency, through a schedule.Scheduler.
package oracle

import (
	"sync"

	"github.com/roach88/raycorr/internal/engine"
	"github.com/roach88/raycorr/internal/geom"
)

// Ray is one IssueRay call.
type Ray struct {
	Subject engine.Subject `json:"subject"`
	Start   geom.Point3    `json:"start"`
	End     geom.Point3    `json:"end"`
}

// Recorder is an engine.Oracle that records every issued ray and answers
// nothing.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	rays []Ray
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// IssueRay implements engine.Oracle.
func (r *Recorder) IssueRay(subject engine.Subject, start, end geom.Point3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rays = append(r.rays, Ray{Subject: subject, Start: start, End: end})
}

// Rays returns a copy of the recorded rays in issue order.
func (r *Recorder) Rays() []Ray {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Ray, len(r.rays))
	copy(out, r.rays)
	return out
}

// Len returns the number of recorded rays.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rays)
}

// CountFor returns the number of rays issued for subject.
func (r *Recorder) CountFor(subject engine.Subject) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ray := range r.rays {
		if ray.Subject == subject {
			n++
		}
	}
	return n
}

// Last returns the most recently issued ray.
func (r *Recorder) Last() (Ray, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rays) == 0 {
		return Ray{}, false
	}
	return r.rays[len(r.rays)-1], true
}

// Reset forgets every recorded ray.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rays = nil
}
