package engine

import (
	"time"

	"github.com/roach88/raycorr/internal/geom"
)

// DefaultEpsilon is the default maximum segment consistency error a hit may
// have and still be attributed to a request, in distance units.
const DefaultEpsilon = 0.5

// match selects the request a hit at point most plausibly belongs to.
//
// Each live, non-stale request r is scored with
//
//	|distance(r.start, point) + distance(point, r.end) - r.total|
//
// which is 0 for a point exactly on the segment. Candidates scoring above
// epsilon are never selected. Among the rest the strictly lowest score wins;
// ties go to the first candidate in iteration order, which is ascending
// request id, i.e. the oldest request.
//
// Returns nil if nothing qualifies.
func (e *Engine) match(st *subjectState, point geom.Point3, now time.Time) (*request, float64) {
	var best *request
	bestScore := 0.0

	for _, r := range st.requests {
		if e.isStale(r, now) {
			continue
		}
		score := geom.SegmentError(r.start, r.end, point, r.total)
		accepted := score <= e.epsilon
		e.logger.Debug("match candidate",
			"subject", r.subject,
			"request_id", r.id,
			"score", score,
			"accepted", accepted,
		)
		if !accepted {
			continue
		}
		if best == nil || score < bestScore {
			best = r
			bestScore = score
		}
	}

	return best, bestScore
}
