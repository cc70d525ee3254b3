package harness

import (
	"strconv"

	"github.com/roach88/raycorr/internal/engine"
)

// Trace event types.
const (
	TraceCast     = "cast"
	TraceRejected = "rejected"
	TraceHit      = "hit"
	TraceMiss     = "miss"
	TraceAdvance  = "advance"
	TracePrune    = "prune"
	TraceResolved = "resolved"
)

// TraceEvent is one line of a scenario trace.
// Points and scores are preformatted strings so golden files stay readable
// and independent of float encoding details.
type TraceEvent struct {
	// Step is the 1-based index of the step that produced the event.
	Step int `json:"step"`

	Type      string `json:"type"`
	Label     string `json:"label,omitempty"`
	Subject   string `json:"subject,omitempty"`
	RequestID int64  `json:"request_id,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Point     string `json:"point,omitempty"`
	Score     string `json:"score,omitempty"`

	// AtMs is milliseconds since the scenario clock started.
	AtMs int64 `json:"at_ms"`

	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Session is the engine session the scenario ran under.
	Session string `json:"session"`

	// Trace contains casts, oracle answers, clock moves and resolutions in
	// the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Outcomes maps each cast label to how it resolved. Labels still
	// outstanding at the end map to "none".
	Outcomes map[string]string `json:"outcomes"`

	// Stats are the engine counters after the last step.
	Stats engine.Stats `json:"-"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Outcomes: make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
