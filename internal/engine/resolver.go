package engine

import "time"

// resolveMisses applies the miss-counting rule to subject.
//
// The oracle cannot say which ray missed, only that one did. Once the number
// of unattributed misses reaches the number of outstanding requests, every
// outstanding request must have missed, so all of them resolve as misses and
// the counter resets.
//
// This is a heuristic: under adversarial event orderings a miss may be
// credited later than it logically happened. It never resolves a request
// twice, and TTL pruning bounds how long any request can stay open.
//
// An empty subject has its counter reset, so orphan misses can't leak into
// a later, unrelated request.
//
// Caller must hold e.mu.
func (e *Engine) resolveMisses(subject Subject, now time.Time, out []settled) []settled {
	st := e.reg.get(subject)
	if st == nil {
		return out
	}
	if st.len() == 0 {
		e.reg.collect(subject)
		return out
	}
	if st.pendingMisses < st.len() {
		return out
	}

	e.logger.Debug("pending misses cover all requests",
		"subject", subject,
		"pending_misses", st.pendingMisses,
		"requests", st.len(),
	)
	for _, r := range st.drain() {
		out = append(out, e.settle(r, OutcomeMiss, now))
	}
	st.pendingMisses = 0
	e.reg.collect(subject)
	return out
}
