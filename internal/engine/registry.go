package engine

import (
	"sort"
	"time"

	"github.com/roach88/raycorr/internal/geom"
)

// request is an outstanding ray, exclusively owned by its subjectState until
// it is resolved.
type request struct {
	id        RequestID
	subject   Subject
	start     geom.Point3
	end       geom.Point3
	total     float64 // precomputed |end - start|
	createdAt time.Time
	handlers  Handlers
}

func (r *request) snapshot() Request {
	return Request{
		ID:            r.id,
		Subject:       r.subject,
		Start:         r.start,
		End:           r.end,
		TotalDistance: r.total,
		CreatedAt:     r.createdAt,
	}
}

// subjectState holds one subject's outstanding requests and its count of
// unattributed miss events.
//
// INVARIANTS:
//   - requests is sorted by ascending id. Ids are allocated monotonically and
//     requests are only ever appended, so this holds without sorting. The
//     matcher's tie-break rule depends on it.
//   - pendingMisses is 0 whenever requests is empty (see registry.collect).
type subjectState struct {
	requests      []*request
	pendingMisses int
}

func (s *subjectState) add(r *request) {
	s.requests = append(s.requests, r)
}

// remove deletes the request with the given id, preserving order.
// Returns false if no such request is tracked.
func (s *subjectState) remove(id RequestID) bool {
	for i, r := range s.requests {
		if r.id == id {
			copy(s.requests[i:], s.requests[i+1:])
			s.requests[len(s.requests)-1] = nil
			s.requests = s.requests[:len(s.requests)-1]
			return true
		}
	}
	return false
}

// drain removes and returns every request, oldest first.
func (s *subjectState) drain() []*request {
	out := s.requests
	s.requests = nil
	return out
}

func (s *subjectState) len() int {
	return len(s.requests)
}

// registry maps subjects to their state. A subject is present only while it
// has at least one outstanding request.
//
// Not safe for concurrent use; Engine guards it with its mutex.
type registry struct {
	subjects map[Subject]*subjectState
	ids      *Sequence
}

func newRegistry() *registry {
	return &registry{
		subjects: make(map[Subject]*subjectState),
		ids:      NewSequence(),
	}
}

// get returns the subject's state, or nil if the subject has nothing tracked.
func (g *registry) get(subject Subject) *subjectState {
	return g.subjects[subject]
}

// getOrCreate returns the subject's state, creating it on first use.
func (g *registry) getOrCreate(subject Subject) *subjectState {
	st, ok := g.subjects[subject]
	if !ok {
		st = &subjectState{}
		g.subjects[subject] = st
	}
	return st
}

// insert allocates an id and stores a new request for subject.
func (g *registry) insert(subject Subject, start, end geom.Point3, now time.Time, h Handlers) *request {
	r := &request{
		id:        RequestID(g.ids.Next()),
		subject:   subject,
		start:     start,
		end:       end,
		total:     geom.Distance(start, end),
		createdAt: now,
		handlers:  h,
	}
	g.getOrCreate(subject).add(r)
	return r
}

// remove deletes one request without firing anything.
func (g *registry) remove(subject Subject, id RequestID) bool {
	st := g.subjects[subject]
	if st == nil {
		return false
	}
	ok := st.remove(id)
	g.collect(subject)
	return ok
}

// collect garbage-collects the subject if it has no outstanding requests,
// discarding any orphan pending misses with it.
func (g *registry) collect(subject Subject) {
	st := g.subjects[subject]
	if st == nil {
		return
	}
	if st.len() == 0 {
		st.pendingMisses = 0
		delete(g.subjects, subject)
	}
}

// sortedSubjects returns the tracked subjects in lexical order, so sweeps
// across subjects resolve in a reproducible order.
func (g *registry) sortedSubjects() []Subject {
	out := make([]Subject, 0, len(g.subjects))
	for s := range g.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// count returns the total number of outstanding requests.
func (g *registry) count() int {
	n := 0
	for _, st := range g.subjects {
		n += st.len()
	}
	return n
}
