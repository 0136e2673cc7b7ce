package hostrunner

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/hostrunner/flags"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	SuiteFile        string        // Absolute path of the suite declaration
	SuiteFilter      []string      // Suite tags to run; empty runs every record
	TestFilter       []string      // Test ids to run; empty runs every record
	ArtifactDir      string        // Directory holding the testrun-<id> directories
	RunInterval      time.Duration // Interval between suite runs
	RunOnce          bool          // Indicates if the service should exit after one run
	DefaultTimeout   time.Duration // Timeout for records that declare none
	CrashWait        time.Duration // Budget for crash artifacts to appear
	GracePeriod      time.Duration // Interrupt-to-kill delay for timed out hosts
	CancelGrace      time.Duration // How long a host may keep running after cancellation
	Concurrency      int           // Parallel host limit (0 = auto-determine)
	ForceIsolation   bool          // Run every record in its own host
	DisableFallback  bool          // Skip single-test reruns of shared-invocation failures
	KillList         []string      // Process names terminated before and after each run
	TestFailureCode  int           // Host return code meaning "a test failed"
	LogExcerptBytes  int           // Size of the host log tail attached to results
	ShowProgress     bool          // Whether to log periodic progress updates
	ProgressInterval time.Duration // Interval between progress updates
	HealthzAddr      string        // Healthz listen address in continuous mode
	MetricsConfig    opmetrics.CLIConfig
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	suiteFile := ctx.String(flags.Suite.Name)
	if suiteFile == "" {
		return nil, errors.New("suite declaration file is required")
	}
	absSuiteFile, err := filepath.Abs(suiteFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for suite file '%s': %w", suiteFile, err)
	}

	artifactDir := ctx.String(flags.ArtifactDir.Name)
	if artifactDir == "" {
		artifactDir = "artifacts"
	}
	artifactDir, err = filepath.Abs(artifactDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for artifact directory '%s': %w", artifactDir, err)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if runInterval < 0 {
		return nil, fmt.Errorf("run interval cannot be negative: %s", runInterval)
	}

	return &Config{
		SuiteFile:        absSuiteFile,
		SuiteFilter:      ctx.StringSlice(flags.SuiteFilter.Name),
		TestFilter:       ctx.StringSlice(flags.TestFilter.Name),
		ArtifactDir:      artifactDir,
		RunInterval:      runInterval,
		RunOnce:          runInterval == 0,
		DefaultTimeout:   ctx.Duration(flags.DefaultTimeout.Name),
		CrashWait:        ctx.Duration(flags.CrashWait.Name),
		GracePeriod:      ctx.Duration(flags.GracePeriod.Name),
		CancelGrace:      ctx.Duration(flags.CancelGrace.Name),
		Concurrency:      ctx.Int(flags.Concurrency.Name),
		ForceIsolation:   ctx.Bool(flags.ForceIsolation.Name),
		DisableFallback:  ctx.Bool(flags.DisableFallback.Name),
		KillList:         ctx.StringSlice(flags.KillProcess.Name),
		TestFailureCode:  ctx.Int(flags.TestFailureCode.Name),
		LogExcerptBytes:  ctx.Int(flags.LogExcerptBytes.Name),
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		HealthzAddr:      ctx.String(flags.HealthzAddr.Name),
		MetricsConfig:    metricsCfg,
		Log:              log,
	}, nil
}
