package hostrunner

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/hostrunner/flags"
)

// parseConfig runs a cli app with the hostrunner flags and returns the resulting config
func parseConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var cfg *Config
	var cfgErr error
	app := cli.NewApp()
	app.Flags = flags.Flags
	app.Action = func(ctx *cli.Context) error {
		cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
		return nil
	}
	err := app.Run(append([]string{"hostrunner"}, args...))
	if err != nil {
		return nil, err
	}
	return cfg, cfgErr
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(t, "--suite", "suites/smoke.yaml")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.SuiteFile))
	assert.Equal(t, "smoke.yaml", filepath.Base(cfg.SuiteFile))
	assert.True(t, filepath.IsAbs(cfg.ArtifactDir))
	assert.Equal(t, "artifacts", filepath.Base(cfg.ArtifactDir))
	assert.True(t, cfg.RunOnce)
	assert.Equal(t, 10*time.Minute, cfg.DefaultTimeout)
	assert.Equal(t, 0xF, cfg.TestFailureCode)
	assert.Equal(t, 0, cfg.Concurrency)
	assert.False(t, cfg.ForceIsolation)
	assert.False(t, cfg.DisableFallback)
	assert.Empty(t, cfg.KillList)
	assert.False(t, cfg.MetricsConfig.Enabled)
	assert.NotNil(t, cfg.Log)
}

func TestNewConfig_Overrides(t *testing.T) {
	dir := t.TempDir()
	cfg, err := parseConfig(t,
		"--suite", filepath.Join(dir, "suite.yaml"),
		"--artifact-dir", filepath.Join(dir, "out"),
		"--run-interval", "1h",
		"--concurrency", "3",
		"--force-isolation",
		"--disable-fallback",
		"--kill-process", "Editor",
		"--kill-process", "AssetProcessor",
		"--test-failure-code", "3",
		"--suite-filter", "smoke",
		"--test", "t1",
	)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "suite.yaml"), cfg.SuiteFile)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.ArtifactDir)
	assert.Equal(t, time.Hour, cfg.RunInterval)
	assert.False(t, cfg.RunOnce)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.True(t, cfg.ForceIsolation)
	assert.True(t, cfg.DisableFallback)
	assert.Equal(t, []string{"Editor", "AssetProcessor"}, cfg.KillList)
	assert.Equal(t, 3, cfg.TestFailureCode)
	assert.Equal(t, []string{"smoke"}, cfg.SuiteFilter)
	assert.Equal(t, []string{"t1"}, cfg.TestFilter)
}

func TestNewConfig_Errors(t *testing.T) {
	_, err := parseConfig(t)
	require.Error(t, err, "the suite flag is required")

	_, err = parseConfig(t, "--suite", "suite.yaml", "--run-interval", "-1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run interval cannot be negative")

	_, err = parseConfig(t, "--suite", "suite.yaml", "--test-failure-code", "0")
	require.Error(t, err)
}
