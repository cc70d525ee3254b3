// Package engine implements the ray correlation engine.
//
// A caller casts a ray (subject, start, end, handlers); an external oracle
// later reports a hit at some point, or a bare miss, for that subject, but
// never says which ray the event belongs to. The engine attributes each event
// to an outstanding request and fires exactly one handler per request.
//
// ARCHITECTURE:
//
// Request Registry (registry.go):
// Per-subject list of outstanding requests in ascending id order, plus a
// count of unattributed miss events. A subject exists only while it has
// outstanding requests.
//
// Geometric Matcher (matcher.go):
// A hit at point p is attributed to the non-stale request whose segment p
// lies most consistently on: |d(start,p) + d(p,end) - |end-start||, capped at
// epsilon. Ties go to the oldest request.
//
// Miss Resolver (resolver.go):
// Misses carry no position. They accumulate per subject; once they cover every
// outstanding request, all of those requests resolve as misses.
//
// Staleness Manager (staleness.go):
// A request older than the TTL is excluded from matching and resolves as a
// stale miss the next time its subject is pruned: lazily on every Cast for
// that subject, and periodically via StartPruning.
//
// Callback Dispatch (dispatch.go):
// Requests leave the registry before their handler runs, and handlers run
// outside the engine lock. Handler errors and panics are caught and reported
// to the diagnostics hook as *HandlerError.
//
// Event Processing Flow:
//  1. Cast: prune subject → register → issue ray
//  2. HandleHit: match → remove → re-check misses → dispatch
//  3. HandleMiss: count → maybe resolve all → dispatch
//  4. PruneAll: prune every subject → dispatch
//
// Engine can be driven directly from any goroutine; Loop additionally
// serializes all work onto a single goroutine.
//
// INVARIANTS:
//   - Every request resolves exactly once: hit, miss, or stale.
//   - A stale request is never matched.
//   - An empty subject carries no pending misses.
package engine
