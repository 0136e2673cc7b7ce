package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "HOSTRUNNER"

var (
	Suite = &cli.StringFlag{
		Name:     "suite",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "SUITE"),
		Usage:    "Path to the suite declaration file (eg. 'suite.yaml')",
	}
	SuiteFilter = &cli.StringSliceFlag{
		Name:    "suite-filter",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITE_FILTER"),
		Usage:   "Only run tests tagged with this suite (repeatable)",
	}
	TestFilter = &cli.StringSliceFlag{
		Name:    "test",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST"),
		Usage:   "Only run the test with this id (repeatable)",
	}
	ArtifactDir = &cli.StringFlag{
		Name:    "artifact-dir",
		Value:   "artifacts",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ARTIFACT_DIR"),
		Usage:   "Directory under which each run creates its testrun-<id> artifact directory",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between suite runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   10 * time.Minute,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Timeout for tests that declare none",
	}
	CrashWait = &cli.DurationFlag{
		Name:    "crash-wait",
		Value:   5 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CRASH_WAIT"),
		Usage:   "How long to wait for crash artifacts after the host exits abnormally",
	}
	GracePeriod = &cli.DurationFlag{
		Name:    "grace-period",
		Value:   5 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GRACE_PERIOD"),
		Usage:   "Time between interrupting a timed out host and killing it",
	}
	CancelGrace = &cli.DurationFlag{
		Name:    "cancel-grace",
		Value:   10 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CANCEL_GRACE"),
		Usage:   "How long a running host may continue after the run is cancelled",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Maximum number of hosts running parallel-safe tests at once (0 = derive from CPU count)",
		Action: func(ctx *cli.Context, v int) error {
			if v < 0 {
				return fmt.Errorf("concurrency cannot be negative: %d", v)
			}
			return nil
		},
	}
	ForceIsolation = &cli.BoolFlag{
		Name:    "force-isolation",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FORCE_ISOLATION"),
		Usage:   "Run every test in its own host process",
	}
	DisableFallback = &cli.BoolFlag{
		Name:    "disable-fallback",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DISABLE_FALLBACK"),
		Usage:   "Do not re-run tests that did not pass in a shared host on their own",
	}
	KillProcess = &cli.StringSliceFlag{
		Name:    "kill-process",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KILL_PROCESS"),
		Usage:   "Process name to terminate before and after each run (repeatable)",
	}
	TestFailureCode = &cli.IntFlag{
		Name:    "test-failure-code",
		Value:   0xF,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_FAILURE_CODE"),
		Usage:   "Host return code meaning a test reported failure",
		Action: func(ctx *cli.Context, v int) error {
			return validateTestFailureCode(v)
		},
	}
	LogExcerptBytes = &cli.IntFlag{
		Name:    "log-excerpt-bytes",
		Value:   64 * 1024,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_EXCERPT_BYTES"),
		Usage:   "Size of the host log tail attached to tests that did not pass",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Log periodic progress updates while the suite runs",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the healthz server in continuous mode",
	}
)

// validateTestFailureCode accepts codes a process can actually exit with, excluding success
func validateTestFailureCode(v int) error {
	if v < 1 || v > 255 {
		return fmt.Errorf("test-failure-code must be between 1 and 255, got %d", v)
	}
	return nil
}

var requiredFlags = []cli.Flag{
	Suite,
}

var optionalFlags = []cli.Flag{
	SuiteFilter,
	TestFilter,
	ArtifactDir,
	RunInterval,
	DefaultTimeout,
	CrashWait,
	GracePeriod,
	CancelGrace,
	Concurrency,
	ForceIsolation,
	DisableFallback,
	KillProcess,
	TestFailureCode,
	LogExcerptBytes,
	ShowProgress,
	ProgressInterval,
	HealthzAddr,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
