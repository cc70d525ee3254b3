package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/raycorr/internal/engine"
)

// Journal adapts a Store into an engine.Observer, writing every resolution
// as it happens.
//
// Observe cannot return an error, so write failures are logged and counted
// instead; check Failures after a run.
type Journal struct {
	store  *Store
	ctx    context.Context
	logger *slog.Logger

	mu       sync.Mutex
	written  int
	failures int
}

// NewJournal creates a Journal writing to s. ctx bounds every write.
func NewJournal(ctx context.Context, s *Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{store: s, ctx: ctx, logger: logger}
}

// Observe implements engine.Observer.
func (j *Journal) Observe(r engine.Resolution) {
	added, err := j.store.insertResolution(j.ctx, r)

	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.failures++
		j.logger.Error("journal write failed",
			"session", r.Session,
			"request_id", r.RequestID,
			"error", err,
		)
		return
	}
	if added {
		j.written++
	}
}

// RecordCast journals a registered request. Callers that cast through the
// engine directly call this with the snapshot of the new request.
func (j *Journal) RecordCast(session string, req engine.Request) error {
	return j.store.WriteCast(j.ctx, session, req)
}

// Written returns the number of resolution rows added. Resolutions already in
// the journal are not counted.
func (j *Journal) Written() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

// Failures returns the number of resolutions that could not be journalled.
func (j *Journal) Failures() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.failures
}
