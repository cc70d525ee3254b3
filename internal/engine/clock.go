package engine

import (
	"sync/atomic"
	"time"
)

// Sequence is a monotonic counter used for request ids and resolution
// ordering.
//
// Every call to Next returns a value strictly greater than the last, for the
// lifetime of the Sequence. Ids are never reused, so a late event can never be
// confused with a newer request that happens to share a recycled id.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0. The first Next returns 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next value and advances the sequence.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last value handed out without advancing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}

// TimeSource supplies the engine's notion of "now" for TTL comparisons.
//
// The default uses time.Now, whose readings carry a monotonic component, so
// TTL arithmetic is immune to wall-clock jumps. Tests and scenario replays
// inject a manual source (schedule.Manual, testutil.ManualClock).
type TimeSource interface {
	Now() time.Time
}

type systemTime struct{}

func (systemTime) Now() time.Time { return time.Now() }
