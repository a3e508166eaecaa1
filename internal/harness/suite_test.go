package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioFiles_ExpandsDirectories(t *testing.T) {
	files, err := ScenarioFiles("testdata/scenarios")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata/scenarios", "melt_cycle.yaml"),
		filepath.Join("testdata/scenarios", "voltage_bands.yaml"),
	}, files)

	_, err = ScenarioFiles("testdata/none")
	require.Error(t, err)
}

func TestRunSuite_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: broken\n"), 0o644))

	res := RunSuite([]string{"testdata/scenarios/melt_cycle.yaml", broken})
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, broken, res.Failures[0].Path)
}

func TestRunSuite_GoldenDir(t *testing.T) {
	files := []string{"testdata/scenarios/melt_cycle.yaml"}

	res := RunSuite(files, WithGoldenDir("testdata/golden"))
	assert.Equal(t, 1, res.Passed, "failures: %v", res.Failures)

	dir := t.TempDir()
	res = RunSuite(files, WithGoldenDir(dir), WithUpdate())
	require.Equal(t, 1, res.Passed)
	written, err := os.ReadFile(filepath.Join(dir, "melt_cycle.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile("testdata/golden/melt_cycle.golden")
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "melt_cycle.golden"), []byte("# stale\n"), 0o644))
	res = RunSuite(files, WithGoldenDir(dir))
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Error, "trace does not match")
}
