// Package harness runs deterministic correlation scenarios.
//
// A scenario drives one engine through casts, oracle answers and clock moves,
// then checks how every cast resolved. The clock and all background timers are
// a schedule.Manual, so a scenario's trace is identical on every run and can
// be compared against a golden file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	session: fixed-session-id
//	config:
//	  epsilon: 0.5
//	  ttl_ms: 2000
//	steps:
//	  - cast: { label: a, subject: p1, start: [0, 0, 0], end: [10, 0, 0] }
//	  - hit: { subject: p1, point: [5, 0, 0], normal: [0, 1, 0] }
//	  - miss: { subject: p1 }
//	  - advance: { ms: 2500 }
//	  - prune: { subject: p1 }
//	assertions:
//	  - type: resolved
//	    label: a
//	    outcome: hit
//	  - type: tracked
//	    count: 0
//
// Coordinates are [x, y, z] lists and go through the same raycast codec a
// host integration would use. Subjects and labels are NFC-normalized on load.
//
// A world block replaces scripted hit/miss steps with a sphere scene that
// answers each ray after a latency:
//
//	world:
//	  latency_ms: 50
//	  spheres:
//	    - { center: [5, 0, 0], radius: 1 }
//	    - { subject: p2, center: [0, 5, 0], radius: 2 }
//
// # Assertion Types
//
//   - resolved: how the cast with a label ended (hit, miss, stale, none, rejected)
//   - tracked: outstanding request count, in total or for one subject
//   - pending: a subject's pending miss count
//   - oracle_calls: number of rays issued, in total or for one subject
//   - stats: engine counters by name
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/partial_miss.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
