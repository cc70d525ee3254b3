package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/raycorr/internal/engine"
	"github.com/roach88/raycorr/internal/geom"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCast creates a request snapshot along +X from the origin.
func createTestCast(id engine.RequestID, subject engine.Subject) engine.Request {
	return engine.Request{
		ID:            id,
		Subject:       subject,
		Start:         geom.P(0, 0, 0),
		End:           geom.P(10, 0, 0),
		TotalDistance: 10,
		CreatedAt:     testEpoch,
	}
}

// createTestResolution creates a resolution for a request cast with
// createTestCast. Hits land at (5, 0, 0).
func createTestResolution(session string, seq int64, id engine.RequestID, subject engine.Subject, outcome engine.Outcome) engine.Resolution {
	res := engine.Resolution{
		Session:   session,
		Seq:       seq,
		RequestID: id,
		Subject:   subject,
		Outcome:   outcome,
		Start:     geom.P(0, 0, 0),
		End:       geom.P(10, 0, 0),
		Age:       250 * time.Millisecond,
		At:        testEpoch.Add(250 * time.Millisecond),
	}
	if outcome == engine.OutcomeHit {
		res.Point = geom.P(5, 0, 0)
		res.Normal = geom.P(0, 1, 0)
		res.Score = 0.25
	}
	return res
}
