package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func executeValidate(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(scenariosDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	out, err := executeValidate(t, "text", files...)

	require.NoError(t, err)
	assert.Contains(t, out, "✓ All 3 file(s) valid")
}

func TestValidateConfigJSON(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "raycorr.yaml", "epsilon: 0.25\nttl_ms: 1500\nlog_level: debug\n")

	out, err := executeValidate(t, "json", cfg)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, float64(1), data["files"])
}

func TestValidateInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	badCfg := writeFile(t, dir, "bad.yaml", "epsilon: -1\n")
	badScenario := writeFile(t, dir, "scenario.yaml", `name: broken
steps:
  - cast: { subject: p1, start: [0, 0, 0], end: [1, 0, 0] }
`)

	out, err := executeValidate(t, "text", badCfg, badScenario)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "bad.yaml (config)")
	assert.Contains(t, out, "scenario.yaml (scenario)")
	assert.Contains(t, out, ErrCodeConfig)
	assert.Contains(t, out, ErrCodeScenario)
}

func TestValidateInvalidFilesJSON(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "nonsense_key: 1\n")

	out, err := executeValidate(t, "json", bad)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["valid"])
	errs := data["errors"].([]interface{})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCodeConfig, errs[0].(map[string]interface{})["code"])
}

func TestValidateForcedKind(t *testing.T) {
	dir := t.TempDir()
	// Valid as a config file, but not a scenario: no name, no steps.
	cfg := writeFile(t, dir, "cfg.yaml", "epsilon: 0.5\n")

	_, err := executeValidate(t, "text", "--kind", KindScenario, cfg)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidateMissingFile(t *testing.T) {
	out, err := executeValidate(t, "text", filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_FAILED]")
}

func TestValidateInvalidKind(t *testing.T) {
	_, err := executeValidate(t, "text", "--kind", "sphere", "x.yaml")

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"steps", "name: x\nsteps: []\n", KindScenario},
		{"assertions only", "assertions: []\n", KindScenario},
		{"config", "epsilon: 1\n", KindConfig},
		{"empty", "", KindConfig},
		{"not yaml", "{{{", KindConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectKind([]byte(tt.data)))
		})
	}
}
