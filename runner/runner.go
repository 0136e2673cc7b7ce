package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/hostrunner/artifacts"
	"github.com/ethereum-optimism/infra/hostrunner/host"
	"github.com/ethereum-optimism/infra/hostrunner/hostlogs"
	"github.com/ethereum-optimism/infra/hostrunner/metrics"
	"github.com/ethereum-optimism/infra/hostrunner/types"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ProcessKiller terminates every process whose name is in names and returns how many it killed
type ProcessKiller func(ctx context.Context, logger log.Logger, names []string) (int, error)

// Config holds configuration for creating a new Runner
type Config struct {
	Suite    *types.Suite
	Log      log.Logger
	Launcher host.Launcher

	// ArtifactDir is the base directory; each run writes to ArtifactDir/testrun-<RunID>
	ArtifactDir string
	// RunID defaults to a fresh timestamped id
	RunID string

	DefaultTimeout  time.Duration
	CrashWait       time.Duration
	GracePeriod     time.Duration
	CancelGrace     time.Duration
	LogExcerptBytes int

	// Concurrency bounds parallel hosts; 0 derives it from the CPU count
	Concurrency     int
	ForceIsolation  bool
	DisableFallback bool

	// KillList names processes terminated before and after the run
	KillList      []string
	ProcessKiller ProcessKiller

	// TestFailureReturnCode is the host's "a test failed" exit code; 0 uses DefaultTestFailureReturnCode
	TestFailureReturnCode int

	Progress ProgressIndicator
	// Sinks receive every finalized result in addition to the default all.log and results.json sinks
	Sinks []artifacts.ResultSink
}

// Runner runs one suite against its host
type Runner struct {
	cfg       Config
	suite     *types.Suite
	log       log.Logger
	artifacts *artifacts.Manager
	progress  ProgressIndicator
	killer    ProcessKiller
	tracer    trace.Tracer
}

// NewRunner creates a runner for cfg.Suite. The host itself is checked when
// Run starts so an unusable host is reported as a SetupError.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Suite == nil {
		return nil, fmt.Errorf("suite is required")
	}
	if cfg.ArtifactDir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Launcher == nil {
		cfg.Launcher = host.NewExecLauncher(cfg.Log)
	}
	if cfg.RunID == "" {
		cfg.RunID = artifacts.NewRunID(time.Now())
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTestTimeout
	}
	if cfg.CrashWait == 0 {
		cfg.CrashWait = hostlogs.DefaultCrashWait
	}
	if cfg.TestFailureReturnCode == 0 {
		cfg.TestFailureReturnCode = host.DefaultTestFailureReturnCode
	}
	if cfg.Progress == nil {
		cfg.Progress = NewNoOpProgressIndicator()
	}
	killer := cfg.ProcessKiller
	if killer == nil {
		killer = host.KillProcessesByName
	}

	logger := cfg.Log.New("component", "runner", "suite", cfg.Suite.Name, "run_id", cfg.RunID)
	mgr, err := artifacts.NewManager(cfg.ArtifactDir, cfg.RunID, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact manager: %w", err)
	}
	mgr.AddDefaultSinks()
	for _, sink := range cfg.Sinks {
		mgr.AddSink(sink)
	}

	logger.Debug("NewRunner()", "artifactDir", cfg.ArtifactDir, "concurrency", cfg.Concurrency,
		"forceIsolation", cfg.ForceIsolation, "disableFallback", cfg.DisableFallback,
		"defaultTimeout", cfg.DefaultTimeout, "sentinel", cfg.TestFailureReturnCode)

	return &Runner{
		cfg:       cfg,
		suite:     cfg.Suite,
		log:       logger,
		artifacts: mgr,
		progress:  cfg.Progress,
		killer:    killer,
		tracer:    otel.Tracer("host runner"),
	}, nil
}

// Artifacts returns the run's artifact manager
func (r *Runner) Artifacts() *artifacts.Manager {
	return r.artifacts
}

// Run executes every record of the suite and returns one finalized result per
// record in declared order. The only error it returns is a *SetupError;
// test failures, crashes and timeouts are reported on the results.
func (r *Runner) Run(ctx context.Context) (*RunnerResult, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s", r.suite.Name))
	defer span.End()

	root, err := r.setup()
	if err != nil {
		metrics.RecordErrorDetails("setup", err)
		return nil, err
	}
	defer r.restore()

	r.cleanHosts(ctx, "before run")

	records := r.suite.Records
	r.progress.StartSuite(r.suite.Name, len(records))

	concurrency := determineConcurrency(ctx, r.log, r.cfg.Concurrency, countParallelSafe(records))
	plan := PlanInvocations(records, concurrency, r.cfg.ForceIsolation)
	r.log.Info("Running suite", "tests", len(records), "invocations", plan.Len(),
		"parallel", len(plan.Parallel), "sequential", len(plan.Sequential), "concurrency", concurrency)
	span.SetAttributes(attribute.Int("tests", len(records)), attribute.Int("invocations", plan.Len()))

	sched := &scheduler{
		log: r.log,
		invoker: &invoker{
			log:            r.log,
			launcher:       r.cfg.Launcher,
			host:           r.suite.Host,
			slotRoot:       filepath.Join(root, SlotDirName),
			artifacts:      r.artifacts,
			progress:       r.progress,
			tracer:         r.tracer,
			defaultTimeout: r.cfg.DefaultTimeout,
			gracePeriod:    r.cfg.GracePeriod,
			cancelGrace:    r.cfg.CancelGrace,
			sentinel:       r.cfg.TestFailureReturnCode,
			logCfg: hostlogs.Config{
				CrashWait:    r.cfg.CrashWait,
				ExcerptBytes: r.cfg.LogExcerptBytes,
			},
		},
		concurrency: concurrency,
		fallback:    !r.cfg.DisableFallback,
	}
	byID := sched.execute(ctx, plan)

	results := make([]*types.RunResult, len(records))
	for i, rec := range records {
		res, ok := byID[rec.ID]
		if !ok {
			res = types.NewRunResult(rec, types.TestStatusNotRun, types.ModeSingle)
			res.ErrorKind = types.ErrorKindCancelled
		}
		res.Finalize()
		results[i] = res
		if err := r.artifacts.LogResult(res); err != nil {
			r.log.Error("Failed to log result", "test", rec.ID, "err", err)
		}
		metrics.RecordTestResult(r.suite.Name, rec.ID, res.Mode, res.Status)
		if !res.Passed() {
			r.log.Warn("Test did not pass", "result", res.Summary())
		}
	}

	r.cleanHosts(context.WithoutCancel(ctx), "after run")
	if err := r.artifacts.Complete(); err != nil {
		r.log.Error("Failed to complete result sinks", "err", err)
	}
	r.progress.CompleteSuite(r.suite.Name)

	out := newRunnerResult(r.cfg.RunID, r.suite.Name, results, start, time.Now())
	out.ArtifactDir = root
	metrics.RecordRun(r.suite.Name, r.cfg.RunID, out.Status.String(), out.Stats.Total,
		out.Stats.Total-out.Stats.Failures, out.Stats.Failures, out.Duration)
	span.SetAttributes(attribute.String("status", out.Status.String()))
	r.log.Info("Suite finished", "status", out.Status, "passed", out.Stats.Passed,
		"failures", out.Stats.Failures, "duration", out.Duration)
	return out, nil
}

// setup validates the suite and prepares the artifact root
func (r *Runner) setup() (string, error) {
	if err := r.suite.Validate(); err != nil {
		return "", NewSetupError(err)
	}
	if err := r.suite.Host.Validate(); err != nil {
		return "", NewSetupError(err)
	}
	root, err := r.artifacts.GetSavePath()
	if err != nil {
		return "", NewSetupError(err)
	}
	if err := r.artifacts.Backup(r.suite.Host.BackupFiles); err != nil {
		return "", NewSetupError(err)
	}
	return root, nil
}

func (r *Runner) restore() {
	if err := r.artifacts.Restore(); err != nil {
		r.log.Error("Failed to restore backed up files", "err", err)
	}
}

// cleanHosts terminates stray processes on the kill list
func (r *Runner) cleanHosts(ctx context.Context, when string) {
	if len(r.cfg.KillList) == 0 {
		return
	}
	n, err := r.killer(ctx, r.log, r.cfg.KillList)
	if err != nil {
		r.log.Warn("Failed to clean up stray processes", "when", when, "err", err)
	}
	if n > 0 {
		r.log.Info("Killed stray processes", "when", when, "count", n)
		metrics.RecordStrayProcessesKilled(n)
	}
}

func countParallelSafe(records []types.TestRecord) int {
	n := 0
	for _, rec := range records {
		if rec.ParallelSafe && !rec.Isolate {
			n++
		}
	}
	return n
}
