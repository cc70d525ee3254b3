package raycast

import (
	"errors"
	"fmt"

	"github.com/roach88/raycorr/internal/engine"
	"github.com/roach88/raycorr/internal/geom"
)

// ErrRejected is returned by Cast when the engine refuses a request because
// it has no handlers.
var ErrRejected = errors.New("cast rejected: no handlers")

// Target is the part of engine.Engine a Caster drives.
type Target interface {
	Cast(subject engine.Subject, start, end geom.Point3, h engine.Handlers) (engine.RequestID, bool)
}

// Hit is engine.Hit in host coordinates.
type Hit[V any] struct {
	RequestID engine.RequestID
	Subject   engine.Subject
	Start     V
	End       V
	Point     V
	Normal    V
	Score     float64
}

// Miss is engine.Miss in host coordinates.
type Miss[V any] struct {
	RequestID engine.RequestID
	Subject   engine.Subject
	Start     V
	End       V
	Reason    engine.MissReason
}

// Handlers are resolution callbacks in host coordinates. At least one must
// be set.
type Handlers[V any] struct {
	OnHit  func(Hit[V]) error
	OnMiss func(Miss[V]) error
}

// Caster casts rays given in host coordinates.
type Caster[V any] struct {
	target Target
	codec  Codec[V]
}

// New creates a Caster over target using codec.
func New[V any](target Target, codec Codec[V]) *Caster[V] {
	return &Caster[V]{target: target, codec: codec}
}

// Cast converts start and end, then registers the request with the engine.
//
// The original start and end values are handed back to the handlers
// untouched; only the hit point and normal go through Encode.
func (c *Caster[V]) Cast(subject engine.Subject, start, end V, h Handlers[V]) (engine.RequestID, error) {
	ps, err := c.codec.Decode(start)
	if err != nil {
		return 0, fmt.Errorf("decode start: %w", err)
	}
	pe, err := c.codec.Decode(end)
	if err != nil {
		return 0, fmt.Errorf("decode end: %w", err)
	}

	var eh engine.Handlers
	if h.OnHit != nil {
		eh.OnHit = func(hit engine.Hit) error {
			return h.OnHit(Hit[V]{
				RequestID: hit.RequestID,
				Subject:   hit.Subject,
				Start:     start,
				End:       end,
				Point:     c.codec.Encode(hit.Point),
				Normal:    c.codec.Encode(hit.Normal),
				Score:     hit.Score,
			})
		}
	}
	if h.OnMiss != nil {
		eh.OnMiss = func(m engine.Miss) error {
			return h.OnMiss(Miss[V]{
				RequestID: m.RequestID,
				Subject:   m.Subject,
				Start:     start,
				End:       end,
				Reason:    m.Reason,
			})
		}
	}

	id, ok := c.target.Cast(subject, ps, pe, eh)
	if !ok {
		return 0, ErrRejected
	}
	return id, nil
}

// Reporter converts oracle answers given in host coordinates and forwards
// them to an engine.Reporter.
type Reporter[V any] struct {
	next  engine.Reporter
	codec Codec[V]
}

// NewReporter wraps next.
func NewReporter[V any](next engine.Reporter, codec Codec[V]) *Reporter[V] {
	return &Reporter[V]{next: next, codec: codec}
}

// OnRayHit decodes point and normal and forwards the hit. An undecodable
// answer is not forwarded.
func (r *Reporter[V]) OnRayHit(subject engine.Subject, point, normal V) error {
	p, err := r.codec.Decode(point)
	if err != nil {
		return fmt.Errorf("decode hit point: %w", err)
	}
	n, err := r.codec.Decode(normal)
	if err != nil {
		return fmt.Errorf("decode hit normal: %w", err)
	}
	r.next.OnRayHit(subject, p, n)
	return nil
}

// OnRayMiss forwards the miss.
func (r *Reporter[V]) OnRayMiss(subject engine.Subject) {
	r.next.OnRayMiss(subject)
}
