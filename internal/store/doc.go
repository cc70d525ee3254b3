// Package store provides a SQLite-backed audit journal for the correlation
// engine.
//
// The journal is append-only and holds two kinds of record:
//   - Casts: requests as they were registered
//   - Resolutions: how each request ended (hit, miss or stale)
//
// Every row carries the engine session id, so one database can hold any
// number of runs side by side.
//
// # Ordering
//
// Resolutions are ordered by seq, the engine's resolution counter, never by
// timestamp. Casts are ordered by request id. Both are assigned
// monotonically by the engine, so reads are deterministic across replays of
// the same scenario.
//
// # Idempotency
//
// Writes use ON CONFLICT DO NOTHING. Journalling the same resolution twice is
// harmless, and a request can only ever have one resolution row.
//
// # Format
//
// PRAGMA user_version holds the journal format. Open stamps new and
// unversioned journals and refuses ones stamped by a newer build
// (ErrNewerJournal).
package store
