package engine

import (
	"fmt"
	"time"

	"github.com/roach88/raycorr/internal/geom"
)

// settled is a request that has left the registry and is waiting for its
// handler to run. Everything dispatch needs is captured here, so handlers
// run without the engine lock held.
type settled struct {
	req     *request
	outcome Outcome
	seq     int64
	at      time.Time
	point   geom.Point3
	normal  geom.Point3
	score   float64
}

// settle stamps a removed request with its outcome and counts it.
// Caller must hold e.mu and must already have removed r from the registry.
func (e *Engine) settle(r *request, outcome Outcome, now time.Time) settled {
	switch outcome {
	case OutcomeHit:
		e.stats.Hits++
	case OutcomeMiss:
		e.stats.Misses++
	case OutcomeStale:
		e.stats.Stale++
	}
	return settled{
		req:     r,
		outcome: outcome,
		seq:     e.resolutions.Next(),
		at:      now,
	}
}

// settleHit is settle for a matched hit.
func (e *Engine) settleHit(r *request, point, normal geom.Point3, score float64, now time.Time) settled {
	s := e.settle(r, OutcomeHit, now)
	s.point = point
	s.normal = normal
	s.score = score
	return s
}

// dispatch runs handlers for settled requests, in order, then reports each
// to the observer.
//
// Must be called WITHOUT e.mu held: handlers may call back into the engine
// (a miss handler re-casting is the common case).
func (e *Engine) dispatch(items []settled) {
	for _, s := range items {
		err := e.invoke(s)
		if err != nil {
			e.mu.Lock()
			e.stats.HandlerFailures++
			e.mu.Unlock()
			e.diagnostics(err)
		}
		if e.observer != nil {
			e.observer.Observe(e.record(s, err))
		}
	}
}

// invoke calls the handler matching the outcome. A returned error or a panic
// becomes a HandlerError; nothing escapes.
func (e *Engine) invoke(s settled) (err error) {
	r := s.req
	defer func() {
		if p := recover(); p != nil {
			err = &HandlerError{
				Code:      ErrCodeHandlerPanic,
				RequestID: r.id,
				Subject:   r.subject,
				Outcome:   s.outcome,
				Err:       fmt.Errorf("panic: %v", p),
			}
		}
	}()

	var herr error
	switch s.outcome {
	case OutcomeHit:
		if r.handlers.OnHit == nil {
			return nil
		}
		herr = r.handlers.OnHit(Hit{
			RequestID: r.id,
			Subject:   r.subject,
			Start:     r.start,
			End:       r.end,
			Point:     s.point,
			Normal:    s.normal,
			Score:     s.score,
		})
	case OutcomeMiss, OutcomeStale:
		if r.handlers.OnMiss == nil {
			return nil
		}
		reason := MissReported
		if s.outcome == OutcomeStale {
			reason = MissStale
		}
		herr = r.handlers.OnMiss(Miss{
			RequestID: r.id,
			Subject:   r.subject,
			Start:     r.start,
			End:       r.end,
			Reason:    reason,
		})
	}

	if herr != nil {
		return &HandlerError{
			Code:      ErrCodeHandlerFailed,
			RequestID: r.id,
			Subject:   r.subject,
			Outcome:   s.outcome,
			Err:       herr,
		}
	}
	return nil
}

func (e *Engine) record(s settled, err error) Resolution {
	res := Resolution{
		Session:   e.session,
		Seq:       s.seq,
		RequestID: s.req.id,
		Subject:   s.req.subject,
		Outcome:   s.outcome,
		Start:     s.req.start,
		End:       s.req.end,
		Age:       s.at.Sub(s.req.createdAt),
		At:        s.at,
	}
	if s.outcome == OutcomeHit {
		res.Point = s.point
		res.Normal = s.normal
		res.Score = s.score
	}
	if err != nil {
		res.HandlerError = err.Error()
	}
	return res
}
