package hostrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/hostrunner/exitcodes"
	"github.com/ethereum-optimism/infra/hostrunner/host"
	"github.com/ethereum-optimism/infra/hostrunner/registry"
	"github.com/ethereum-optimism/infra/hostrunner/reporting"
	"github.com/ethereum-optimism/infra/hostrunner/runner"
	"github.com/ethereum-optimism/infra/hostrunner/service"
	"github.com/ethereum-optimism/infra/hostrunner/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// hostRunner implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &hostRunner{}

// SuiteRunner runs a suite once
type SuiteRunner interface {
	Run(ctx context.Context) (*runner.RunnerResult, error)
}

// hostRunner runs a suite of host tests once or on an interval.
type hostRunner struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	// newRunner builds a fresh runner, and with it a fresh run id, for every run
	newRunner func() (SuiteRunner, error)
	progress  runner.ProgressIndicator
	service   *service.Service
	out       io.Writer
	result    *runner.RunnerResult

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*hostRunner, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating host runner with config",
		"suiteFile", config.SuiteFile,
		"artifactDir", config.ArtifactDir,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"concurrency", config.Concurrency,
		"forceIsolation", config.ForceIsolation)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		SuiteFile:      config.SuiteFile,
		DefaultTimeout: config.DefaultTimeout,
		SuiteFilter:    config.SuiteFilter,
		TestFilter:     config.TestFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	progress := runner.NewNoOpProgressIndicator()
	if config.ShowProgress {
		progress = runner.NewConsoleProgressIndicator(config.Log, config.ProgressInterval)
	}

	h := &hostRunner{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		progress:         progress,
		out:              os.Stdout,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}
	h.newRunner = h.buildRunner
	config.Log.Info("hostrunner.New: created registry", "suite", reg.GetSuite().Name, "tests", len(reg.GetSuite().Records))
	return h, nil
}

// buildRunner creates the runner for one run of the registry's suite
func (h *hostRunner) buildRunner() (SuiteRunner, error) {
	suite := h.registry.GetSuite()
	r, err := runner.NewRunner(runner.Config{
		Suite:                 suite,
		Log:                   h.config.Log,
		Launcher:              host.NewExecLauncher(h.config.Log),
		ArtifactDir:           h.config.ArtifactDir,
		DefaultTimeout:        h.config.DefaultTimeout,
		CrashWait:             h.config.CrashWait,
		GracePeriod:           h.config.GracePeriod,
		CancelGrace:           h.config.CancelGrace,
		LogExcerptBytes:       h.config.LogExcerptBytes,
		Concurrency:           h.config.Concurrency,
		ForceIsolation:        h.config.ForceIsolation,
		DisableFallback:       h.config.DisableFallback,
		KillList:              h.config.KillList,
		TestFailureReturnCode: h.config.TestFailureCode,
		Progress:              h.progress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	r.Artifacts().AddSink(reporting.NewTextSummarySink(r.Artifacts(), suite.Name))
	return r, nil
}

// Start runs the suite immediately and then periodically at the configured interval.
// Start implements the cliapp.Lifecycle interface.
func (h *hostRunner) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	h.ctx = ctx
	h.done = make(chan struct{})
	h.running.Store(true)

	if h.config.RunOnce {
		h.config.Log.Info("Starting hostrunner in run-once mode")
	} else {
		h.config.Log.Info("Starting hostrunner in continuous mode", "interval", h.config.RunInterval)
		h.startService(ctx)
	}

	err := h.runTests()
	if err != nil {
		h.config.Log.Error("Runtime error running tests", "error", err)
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	if h.config.RunOnce {
		h.config.Log.Info("Tests completed, exiting (run-once mode)")

		if h.result != nil && h.result.Status != types.TestStatusPassed {
			h.config.Log.Warn("Run-once test run completed with failures, returning exit code 1")
			return NewTestFailureError(h.result)
		}

		go func() {
			h.shutdownCallback(nil)
		}()
		return nil
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.config.Log.Debug("Starting periodic test runner goroutine", "interval", h.config.RunInterval)

		for {
			select {
			case <-time.After(h.config.RunInterval):
				if !h.running.Load() {
					h.config.Log.Debug("Service stopped, exiting periodic test runner")
					return
				}

				h.config.Log.Info("Running periodic tests")
				if err := h.runTests(); err != nil {
					h.config.Log.Error("Error running periodic tests", "error", err)
				}
				h.config.Log.Info("Test run interval", "interval", h.config.RunInterval)

			case <-h.done:
				h.config.Log.Debug("Done signal received, stopping periodic test runner")
				return

			case <-ctx.Done():
				h.config.Log.Debug("Context canceled, stopping periodic test runner")
				h.running.Store(false)
				return
			}
		}
	}()
	h.config.Log.Debug("hostrunner started successfully")
	return nil
}

// startService starts the healthz and metrics servers of continuous mode
func (h *hostRunner) startService(ctx context.Context) {
	cfg := service.Config{
		HealthzAddr:    h.config.HealthzAddr,
		DisableMetrics: !h.config.MetricsConfig.Enabled,
	}
	if h.config.MetricsConfig.Enabled {
		cfg.MetricsAddr = net.JoinHostPort(h.config.MetricsConfig.ListenAddr, strconv.Itoa(h.config.MetricsConfig.ListenPort))
	}
	h.service = service.New(cfg)
	h.service.Start(ctx)
}

// runTests runs the suite once and reports the results
func (h *hostRunner) runTests() error {
	h.config.Log.Info("Running all tests...")
	r, err := h.newRunner()
	if err != nil {
		return NewRuntimeError(err)
	}
	result, err := r.Run(h.ctx)
	if err != nil {
		// A setup error, not a test failure
		h.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}
	h.result = result

	if h.out != nil {
		reporting.RenderTable(h.out, result, true)
	}
	h.config.Log.Info("Test run completed", "run_id", result.RunID, "status", result.Status,
		"artifacts", result.ArtifactDir)
	return nil
}

// Stop stops the hostrunner service.
// Stop implements the cliapp.Lifecycle interface.
func (h *hostRunner) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping hostrunner")

	if h.progress != nil {
		h.progress.Stop()
	}
	if h.service != nil {
		h.service.Shutdown()
		h.service = nil
	}

	if !h.running.Load() {
		h.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	h.running.Store(false)
	close(h.done)

	h.config.Log.Info("hostrunner stopped successfully")
	return nil
}

// Stopped returns true if the hostrunner service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (h *hostRunner) Stopped() bool {
	return !h.running.Load()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (h *hostRunner) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.config.Log.Warn("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
