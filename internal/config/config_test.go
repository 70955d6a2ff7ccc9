package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ribasimcore/internal/config"
)

func writeTempToml(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ribasim.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadPathAppliesDefaultsAndFile(t *testing.T) {
	path := writeTempToml(t, `
[simulation]
input_path = "model.db"
starttime = "2020-01-01"
endtime = "2020-12-31"

[solver]
algorithm = "dopri45"
`)

	cfg, err := config.NewLoader().LoadPath(path)
	require.NoError(t, err)
	assert.Equal(t, "model.db", cfg.Simulation.InputPath)
	assert.Equal(t, "results", cfg.Simulation.OutputDir, "default must survive when unset in file")
	assert.Equal(t, "linear", cfg.Interp.DefaultMethod)
	assert.InDelta(t, 1e-6, cfg.Solver.AbsTol, 0)
}

func TestLoadPathRejectsMissingInputPath(t *testing.T) {
	path := writeTempToml(t, `
[solver]
algorithm = "dopri45"
`)
	_, err := config.NewLoader().LoadPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input_path is required")
}

func TestLoadPathRejectsUnknownAlgorithm(t *testing.T) {
	path := writeTempToml(t, `
[simulation]
input_path = "model.db"

[solver]
algorithm = "rk4"
`)
	_, err := config.NewLoader().LoadPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solver.algorithm")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeTempToml(t, `
[simulation]
input_path = "model.db"
`)
	t.Setenv("RIBASIM_LOGGING_LEVEL", "debug")
	cfg, err := config.NewLoader().LoadPath(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
