package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// To regenerate after an intended trace change:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{
		"partial_miss_then_hit",
		"periodic_prune",
		"world_spheres",
	} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "world_spheres.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	require.NoError(t, AssertGolden(t, "world_spheres", result))
}

func TestTraceSnapshot_Marshal(t *testing.T) {
	snap := TraceSnapshot{
		ScenarioName: "tiny",
		Session:      "s",
		Trace: []TraceEvent{
			{Step: 1, Type: TraceMiss, Subject: "p1"},
		},
	}

	data, err := snap.Marshal()
	require.NoError(t, err)

	want := `{
  "scenario_name": "tiny",
  "session": "s",
  "trace": [
    {
      "step": 1,
      "type": "miss",
      "subject": "p1",
      "at_ms": 0
    }
  ]
}
`
	assert.Equal(t, want, string(data))
}

func TestTraceSnapshot_EmptyTrace(t *testing.T) {
	data, err := TraceSnapshot{ScenarioName: "x", Trace: []TraceEvent{}}.Marshal()
	require.NoError(t, err)

	assert.Contains(t, string(data), `"trace": []`)
}
