package engine

import "time"

const (
	// DefaultTTL is how long a request may stay outstanding before it is
	// excluded from matching and force-resolved as a miss.
	DefaultTTL = 2000 * time.Millisecond

	// DefaultPruneInterval is the period of the background prune sweep.
	DefaultPruneInterval = 5000 * time.Millisecond
)

// isStale reports whether r has outlived the TTL at now. A request exactly
// TTL old is still live.
func (e *Engine) isStale(r *request, now time.Time) bool {
	return now.Sub(r.createdAt) > e.ttl
}

// pruneStale removes every stale request of subject and queues a stale miss
// for each. Each pruned request also retires one pending miss, if any are
// pending, since that miss event may well have been the pruned ray's.
//
// If anything was pruned, the miss condition is re-checked: a smaller live
// set may now be fully accounted for by the pending misses.
//
// Staleness is only enforced here. Between expiry and the next prune a stale
// request sits inert: excluded from matching, not yet called back.
//
// Caller must hold e.mu.
func (e *Engine) pruneStale(subject Subject, now time.Time, out []settled) []settled {
	st := e.reg.get(subject)
	if st == nil {
		return out
	}

	kept := st.requests[:0]
	pruned := 0
	for _, r := range st.requests {
		if !e.isStale(r, now) {
			kept = append(kept, r)
			continue
		}
		out = append(out, e.settle(r, OutcomeStale, now))
		pruned++
		if st.pendingMisses > 0 {
			st.pendingMisses--
		}
	}
	for i := len(kept); i < len(st.requests); i++ {
		st.requests[i] = nil
	}
	st.requests = kept

	if pruned > 0 {
		e.logger.Debug("pruned stale requests",
			"subject", subject,
			"pruned", pruned,
			"remaining", st.len(),
			"pending_misses", st.pendingMisses,
		)
		out = e.resolveMisses(subject, now, out)
	}
	e.reg.collect(subject)
	return out
}
