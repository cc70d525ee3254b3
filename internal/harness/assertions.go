package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/raycorr/internal/engine"
	"github.com/roach88/raycorr/internal/oracle"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) == 0 {
		return buf.String()
	}

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", ev.Step, describe(ev))
	}

	return buf.String()
}

// describe renders a trace event on one line.
func describe(ev TraceEvent) string {
	var parts []string
	parts = append(parts, ev.Type)
	if ev.Label != "" {
		parts = append(parts, ev.Label)
	}
	if ev.Subject != "" {
		parts = append(parts, "subject="+ev.Subject)
	}
	if ev.RequestID != 0 {
		parts = append(parts, fmt.Sprintf("id=%d", ev.RequestID))
	}
	if ev.Outcome != "" {
		parts = append(parts, "outcome="+ev.Outcome)
	}
	if ev.Point != "" {
		parts = append(parts, "point="+ev.Point)
	}
	parts = append(parts, fmt.Sprintf("t=%dms", ev.AtMs))
	if ev.Error != "" {
		parts = append(parts, "error="+ev.Error)
	}
	return strings.Join(parts, " ")
}

// statFields reads each counter of engine.Stats by its assertion name.
var statFields = map[string]func(engine.Stats) uint64{
	"casts":            func(s engine.Stats) uint64 { return s.Casts },
	"rejected":         func(s engine.Stats) uint64 { return s.Rejected },
	"hits":             func(s engine.Stats) uint64 { return s.Hits },
	"misses":           func(s engine.Stats) uint64 { return s.Misses },
	"stale":            func(s engine.Stats) uint64 { return s.Stale },
	"dropped_hits":     func(s engine.Stats) uint64 { return s.DroppedHits },
	"dropped_misses":   func(s engine.Stats) uint64 { return s.DroppedMisses },
	"handler_failures": func(s engine.Stats) uint64 { return s.HandlerFailures },
}

// assertResolved checks how the request cast under a label ended.
func assertResolved(result *Result, assertion Assertion) error {
	got, ok := result.Outcomes[assertion.Label]
	if !ok {
		got = "never cast"
	}
	if got != assertion.Outcome {
		return &AssertionError{
			Type:     AssertResolved,
			Expected: fmt.Sprintf("%s resolved as %s", assertion.Label, assertion.Outcome),
			Actual:   got,
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTracked checks the number of outstanding requests, in total or for
// one subject.
func assertTracked(result *Result, e *engine.Engine, assertion Assertion) error {
	var got int
	scope := "in total"
	if assertion.Subject == "" {
		got = e.Tracked()
	} else {
		got = e.TrackedFor(engine.Subject(assertion.Subject))
		scope = "for " + assertion.Subject
	}
	if got != *assertion.Count {
		return &AssertionError{
			Type:     AssertTracked,
			Expected: fmt.Sprintf("%d outstanding %s", *assertion.Count, scope),
			Actual:   fmt.Sprintf("%d outstanding", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertPending checks a subject's pending miss count.
func assertPending(result *Result, e *engine.Engine, assertion Assertion) error {
	got := e.PendingMisses(engine.Subject(assertion.Subject))
	if got != *assertion.Count {
		return &AssertionError{
			Type:     AssertPending,
			Expected: fmt.Sprintf("%d pending misses for %s", *assertion.Count, assertion.Subject),
			Actual:   fmt.Sprintf("%d pending", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertOracleCalls checks how many rays the engine issued.
func assertOracleCalls(result *Result, rec *oracle.Recorder, assertion Assertion) error {
	var got int
	if assertion.Subject == "" {
		got = rec.Len()
	} else {
		got = rec.CountFor(engine.Subject(assertion.Subject))
	}
	if got != *assertion.Count {
		return &AssertionError{
			Type:     AssertOracleCalls,
			Expected: fmt.Sprintf("%d rays issued", *assertion.Count),
			Actual:   fmt.Sprintf("%d rays issued", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertStats checks the listed engine counters. All mismatches are reported
// together, in name order.
func assertStats(result *Result, assertion Assertion) error {
	names := make([]string, 0, len(assertion.Stats))
	for name := range assertion.Stats {
		names = append(names, name)
	}
	sort.Strings(names)

	var expected, actual []string
	for _, name := range names {
		read, ok := statFields[name]
		if !ok {
			return fmt.Errorf("unknown stat %q", name)
		}
		want, got := assertion.Stats[name], read(result.Stats)
		if want != got {
			expected = append(expected, fmt.Sprintf("%s=%d", name, want))
			actual = append(actual, fmt.Sprintf("%s=%d", name, got))
		}
	}
	if len(expected) > 0 {
		return &AssertionError{
			Type:     AssertStats,
			Expected: strings.Join(expected, ", "),
			Actual:   strings.Join(actual, ", "),
		}
	}
	return nil
}

// AssertionContext provides the engine state assertions inspect.
type AssertionContext struct {
	Engine   *engine.Engine
	Recorder *oracle.Recorder
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides live engine state for tracked, pending and
// oracle_calls assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertResolved:
			err = assertResolved(result, assertion)
		case AssertStats:
			err = assertStats(result, assertion)
		case AssertTracked, AssertPending:
			switch {
			case actx == nil || actx.Engine == nil:
				err = fmt.Errorf("assertion[%d]: %s requires engine context", i, assertion.Type)
			case assertion.Count == nil:
				err = fmt.Errorf("assertion[%d]: %s requires count", i, assertion.Type)
			case assertion.Type == AssertTracked:
				err = assertTracked(result, actx.Engine, assertion)
			default:
				err = assertPending(result, actx.Engine, assertion)
			}
		case AssertOracleCalls:
			switch {
			case actx == nil || actx.Recorder == nil:
				err = fmt.Errorf("assertion[%d]: oracle_calls requires a recorder", i)
			case assertion.Count == nil:
				err = fmt.Errorf("assertion[%d]: oracle_calls requires count", i)
			default:
				err = assertOracleCalls(result, actx.Recorder, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
