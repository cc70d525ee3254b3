package harness

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/roach88/raycorr/internal/config"
)

// Scenario defines a deterministic correlation test.
// Steps drive an engine on a manual clock; assertions check the outcome of
// every cast and the engine's final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is the fixed session id stamped on the engine.
	// If empty, defaults to "test-session-default".
	Session string `yaml:"session,omitempty"`

	// Config overrides engine settings, using the same keys as the
	// configuration file (epsilon, ttl_ms, prune_interval_ms, log_level).
	Config map[string]interface{} `yaml:"config,omitempty"`

	// PeriodicPrune starts the background prune sweep on the manual
	// scheduler, so advance steps trigger it.
	PeriodicPrune bool `yaml:"periodic_prune,omitempty"`

	// World, if set, answers rays automatically from a sphere scene instead
	// of waiting for hit/miss steps.
	World *WorldSpec `yaml:"world,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// WorldSpec describes a simulated sphere scene.
type WorldSpec struct {
	// LatencyMs is how long the world takes to answer a ray.
	LatencyMs int64 `yaml:"latency_ms"`

	Spheres []SphereSpec `yaml:"spheres"`
}

// SphereSpec is one sphere. An empty subject makes it visible to all.
type SphereSpec struct {
	Subject string    `yaml:"subject,omitempty"`
	Center  []float64 `yaml:"center"`
	Radius  float64   `yaml:"radius"`
}

// Step is exactly one of its fields.
type Step struct {
	Cast    *CastStep    `yaml:"cast,omitempty"`
	Hit     *HitStep     `yaml:"hit,omitempty"`
	Miss    *MissStep    `yaml:"miss,omitempty"`
	Advance *AdvanceStep `yaml:"advance,omitempty"`
	Prune   *PruneStep   `yaml:"prune,omitempty"`
}

// CastStep registers a request.
type CastStep struct {
	// Label names the request in assertions and the trace.
	Label   string    `yaml:"label"`
	Subject string    `yaml:"subject"`
	Start   []float64 `yaml:"start"`
	End     []float64 `yaml:"end"`

	// Handlers selects which callbacks are registered:
	// "both" (default), "hit", "miss" or "none".
	Handlers string `yaml:"handlers,omitempty"`

	// Fail makes the registered handlers fail: "error" or "panic".
	Fail string `yaml:"fail,omitempty"`
}

// HitStep delivers a hit event.
type HitStep struct {
	Subject string    `yaml:"subject"`
	Point   []float64 `yaml:"point"`
	Normal  []float64 `yaml:"normal,omitempty"`
}

// MissStep delivers a miss event.
type MissStep struct {
	Subject string `yaml:"subject"`
}

// AdvanceStep moves the manual clock forward, running any timers that fall due.
type AdvanceStep struct {
	Ms int64 `yaml:"ms"`
}

// PruneStep runs a prune sweep, of one subject or (if empty) all of them.
type PruneStep struct {
	Subject string `yaml:"subject,omitempty"`
}

// Handler selections for CastStep.Handlers.
const (
	HandlersBoth = "both"
	HandlersHit  = "hit"
	HandlersMiss = "miss"
	HandlersNone = "none"
)

// Failure modes for CastStep.Fail.
const (
	FailError = "error"
	FailPanic = "panic"
)

// kind returns the step's type name, or "" if not exactly one field is set.
func (s Step) kind() string {
	var kinds []string
	if s.Cast != nil {
		kinds = append(kinds, "cast")
	}
	if s.Hit != nil {
		kinds = append(kinds, "hit")
	}
	if s.Miss != nil {
		kinds = append(kinds, "miss")
	}
	if s.Advance != nil {
		kinds = append(kinds, "advance")
	}
	if s.Prune != nil {
		kinds = append(kinds, "prune")
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "resolved": Check how the request with Label ended
	// - "tracked": Check outstanding request count
	// - "pending": Check a subject's pending miss count
	// - "oracle_calls": Check how many rays were issued
	// - "stats": Check engine counters
	Type string `yaml:"type"`

	// Label is the cast label (used by resolved).
	Label string `yaml:"label,omitempty"`

	// Outcome is hit, miss, stale, none or rejected (used by resolved).
	Outcome string `yaml:"outcome,omitempty"`

	// Subject narrows tracked and oracle_calls; required for pending.
	Subject string `yaml:"subject,omitempty"`

	// Count is the expected number (used by tracked, pending, oracle_calls).
	Count *int `yaml:"count,omitempty"`

	// Stats are expected counter values by snake_case name (used by stats).
	// Unlisted counters are not checked.
	Stats map[string]uint64 `yaml:"stats,omitempty"`
}

// Assertion type constants.
const (
	AssertResolved    = "resolved"
	AssertTracked     = "tracked"
	AssertPending     = "pending"
	AssertOracleCalls = "oracle_calls"
	AssertStats       = "stats"
)

// Outcomes a resolved assertion can expect besides hit, miss and stale.
const (
	// OutcomeNone means the request is still outstanding.
	OutcomeNone = "none"
	// OutcomeRejected means the cast was refused.
	OutcomeRejected = "rejected"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	normalizeScenario(&scenario)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// normalizeScenario puts every subject and label in Unicode NFC, so
// visually identical keys typed with different byte sequences address the
// same subject.
func normalizeScenario(s *Scenario) {
	for i := range s.Steps {
		st := &s.Steps[i]
		switch {
		case st.Cast != nil:
			st.Cast.Subject = norm.NFC.String(st.Cast.Subject)
			st.Cast.Label = norm.NFC.String(st.Cast.Label)
		case st.Hit != nil:
			st.Hit.Subject = norm.NFC.String(st.Hit.Subject)
		case st.Miss != nil:
			st.Miss.Subject = norm.NFC.String(st.Miss.Subject)
		case st.Prune != nil:
			st.Prune.Subject = norm.NFC.String(st.Prune.Subject)
		}
	}
	for i := range s.Assertions {
		s.Assertions[i].Subject = norm.NFC.String(s.Assertions[i].Subject)
		s.Assertions[i].Label = norm.NFC.String(s.Assertions[i].Label)
	}
	if s.World != nil {
		for i := range s.World.Spheres {
			s.World.Spheres[i].Subject = norm.NFC.String(s.World.Spheres[i].Subject)
		}
	}
}

// engineConfig resolves the scenario's config overrides against the
// defaults, with the same validation as a configuration file.
func (s *Scenario) engineConfig() (config.Config, error) {
	if len(s.Config) == 0 {
		return config.Default(), nil
	}
	data, err := yaml.Marshal(s.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("encode config: %w", err)
	}
	return config.Parse(data, "config")
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := s.engineConfig(); err != nil {
		return err
	}

	if s.World != nil {
		if s.World.LatencyMs < 0 {
			return fmt.Errorf("world: latency_ms must be non-negative")
		}
		for i, sp := range s.World.Spheres {
			if len(sp.Center) != 3 {
				return fmt.Errorf("world.spheres[%d]: center needs 3 coordinates", i)
			}
			if sp.Radius <= 0 {
				return fmt.Errorf("world.spheres[%d]: radius must be positive", i)
			}
		}
	}

	labels := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, labels); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, labels); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(i int, step Step, labels map[string]bool) error {
	switch step.kind() {
	case "cast":
		c := step.Cast
		if c.Label == "" {
			return fmt.Errorf("steps[%d].cast: label is required", i)
		}
		if labels[c.Label] {
			return fmt.Errorf("steps[%d].cast: duplicate label %q", i, c.Label)
		}
		labels[c.Label] = true
		if c.Subject == "" {
			return fmt.Errorf("steps[%d].cast: subject is required", i)
		}
		switch c.Handlers {
		case "", HandlersBoth, HandlersHit, HandlersMiss, HandlersNone:
		default:
			return fmt.Errorf("steps[%d].cast: unknown handlers %q", i, c.Handlers)
		}
		switch c.Fail {
		case "", FailError, FailPanic:
		default:
			return fmt.Errorf("steps[%d].cast: unknown fail mode %q", i, c.Fail)
		}
		// Coordinates are checked when the cast runs, through the same codec
		// a host would use; a bad vector shows up as a rejected step.
	case "hit":
		if step.Hit.Subject == "" {
			return fmt.Errorf("steps[%d].hit: subject is required", i)
		}
		if len(step.Hit.Point) != 3 {
			return fmt.Errorf("steps[%d].hit: point needs 3 coordinates", i)
		}
		if step.Hit.Normal != nil && len(step.Hit.Normal) != 3 {
			return fmt.Errorf("steps[%d].hit: normal needs 3 coordinates", i)
		}
	case "miss":
		if step.Miss.Subject == "" {
			return fmt.Errorf("steps[%d].miss: subject is required", i)
		}
	case "advance":
		if step.Advance.Ms < 0 {
			return fmt.Errorf("steps[%d].advance: ms must be non-negative", i)
		}
	case "prune":
	default:
		return fmt.Errorf("steps[%d]: exactly one of cast, hit, miss, advance, prune is required", i)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, labels map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertResolved:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for resolved", index)
		}
		if !labels[a.Label] {
			return fmt.Errorf("assertions[%d]: unknown label %q", index, a.Label)
		}
		switch a.Outcome {
		case "hit", "miss", "stale", OutcomeNone, OutcomeRejected:
		default:
			return fmt.Errorf("assertions[%d]: outcome must be one of hit, miss, stale, none, rejected", index)
		}
	case AssertTracked, AssertOracleCalls:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertPending:
		if a.Subject == "" {
			return fmt.Errorf("assertions[%d]: subject is required for pending", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for pending", index)
		}
	case AssertStats:
		if len(a.Stats) == 0 {
			return fmt.Errorf("assertions[%d]: stats is required for stats", index)
		}
		for name := range a.Stats {
			if _, ok := statFields[name]; !ok {
				return fmt.Errorf("assertions[%d]: unknown stat %q", index, name)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
