package engine

import (
	"time"

	"github.com/roach88/raycorr/internal/geom"
)

// Subject is the opaque identity a request is scoped to (e.g. a player id).
// Requests are only ever matched against other requests of the same subject.
type Subject string

// RequestID identifies a request for the lifetime of an engine.
// Ids increase monotonically and are never reused.
type RequestID int64

// Oracle issues rays. It answers later, out of band, with exactly one
// OnRayHit or OnRayMiss per issued ray and never says which ray it was.
type Oracle interface {
	IssueRay(subject Subject, start, end geom.Point3)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(subject Subject, start, end geom.Point3)

// IssueRay implements Oracle.
func (f OracleFunc) IssueRay(subject Subject, start, end geom.Point3) {
	f(subject, start, end)
}

// Reporter receives oracle answers. Engine implements it synchronously and
// Loop implements it by enqueueing, so an oracle can be pointed at either.
type Reporter interface {
	OnRayHit(subject Subject, point, normal geom.Point3)
	OnRayMiss(subject Subject)
}

// Handlers are the caller's resolution callbacks. At least one must be set;
// Cast rejects a request with neither. Exactly one of them fires per request,
// at most once (if the matching one is nil, nothing fires).
type Handlers struct {
	OnHit  func(Hit) error
	OnMiss func(Miss) error
}

func (h Handlers) empty() bool {
	return h.OnHit == nil && h.OnMiss == nil
}

// Hit is delivered to OnHit when a hit event is attributed to a request.
type Hit struct {
	RequestID RequestID
	Subject   Subject
	Start     geom.Point3
	End       geom.Point3
	Point     geom.Point3
	Normal    geom.Point3
	// Score is the segment consistency error the match was selected with.
	Score float64
}

// MissReason says why a request resolved as a miss.
type MissReason int

const (
	// MissReported means enough miss events accumulated for the subject to
	// account for every outstanding request.
	MissReported MissReason = iota + 1
	// MissStale means the request outlived the TTL and was pruned.
	MissStale
)

// String returns "reported" or "stale".
func (r MissReason) String() string {
	switch r {
	case MissReported:
		return "reported"
	case MissStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Miss is delivered to OnMiss.
type Miss struct {
	RequestID RequestID
	Subject   Subject
	Start     geom.Point3
	End       geom.Point3
	Reason    MissReason
}

// Request is a read-only snapshot of an outstanding request, for introspection.
type Request struct {
	ID            RequestID
	Subject       Subject
	Start         geom.Point3
	End           geom.Point3
	TotalDistance float64
	CreatedAt     time.Time
}

// Outcome is how a request was resolved.
type Outcome string

const (
	OutcomeHit   Outcome = "hit"
	OutcomeMiss  Outcome = "miss"
	OutcomeStale Outcome = "stale"
)

// Resolution is the audit record of one resolved request. It is produced
// after the request's handler has run and delivered to the Observer.
type Resolution struct {
	Session   string
	Seq       int64
	RequestID RequestID
	Subject   Subject
	Outcome   Outcome
	Start     geom.Point3
	End       geom.Point3
	// Point, Normal and Score are set for OutcomeHit only.
	Point  geom.Point3
	Normal geom.Point3
	Score  float64
	// Age is how long the request was outstanding.
	Age time.Duration
	At  time.Time
	// HandlerError is the failure message if the handler failed, else empty.
	HandlerError string
}

// Observer receives every Resolution, in resolution order, after dispatch.
// Observers run on the dispatching goroutine and must not block.
type Observer interface {
	Observe(r Resolution)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(r Resolution)

// Observe implements Observer.
func (f ObserverFunc) Observe(r Resolution) {
	f(r)
}

// Stats counts engine activity since construction.
type Stats struct {
	Casts           uint64 // requests registered
	Rejected        uint64 // casts rejected for having no handlers
	Hits            uint64 // requests resolved by a hit
	Misses          uint64 // requests resolved by miss counting
	Stale           uint64 // requests resolved by TTL pruning
	DroppedHits     uint64 // hit events with no consistent candidate
	DroppedMisses   uint64 // miss events for a subject with nothing outstanding
	HandlerFailures uint64 // handler errors and panics
}
