package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyScenario copies the one-task scenario into a fresh directory.
func copyScenario(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	data, err := os.ReadFile(oneTaskScenario)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one_task.yaml"), data, 0o644))
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), t.TempDir())
	require.NoError(t, err)

	var result TestResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Scenarios)
}

func TestTestCommandMatchesGolden(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ one_task")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	dir := copyScenario(t)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ one_task (golden updated)")

	got, err := os.ReadFile(filepath.Join(dir, "golden", "one_task.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile("testdata/scenarios/golden/one_task.golden")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	// A second run compares against the file just written.
	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ one_task")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := copyScenario(t)
	goldenDir := filepath.Join(t.TempDir(), "golden")
	require.NoError(t, os.MkdirAll(goldenDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(goldenDir, "one_task.golden"), []byte("{}"), 0o644))

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--golden-dir", goldenDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ one_task")
	assert.Contains(t, out, "Golden file mismatch")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandWithoutGoldenUsesAssertions(t *testing.T) {
	dir := copyScenario(t)

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ one_task")
	assert.NoFileExists(t, filepath.Join(dir, "golden", "one_task.golden"))
}

func TestTestCommandExecutionFailureJSON(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), "testdata/failing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "broken", result.Scenarios[0].Name)
	require.NotEmpty(t, result.Scenarios[0].Errors)
	assert.Contains(t, result.Scenarios[0].Errors[0], "execution failed")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "testdata/scenarios", "--filter", "other*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), "testdata/scenarios", "--filter", "one_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed")
}

func TestTestCommandInvalidFilter(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "testdata/scenarios", "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
