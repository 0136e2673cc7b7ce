package hostrunner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/hostrunner/exitcodes"
	"github.com/ethereum-optimism/infra/hostrunner/runner"
	"github.com/ethereum-optimism/infra/hostrunner/types"
)

// trackedMockRunner is a mock runner that counts executions
type trackedMockRunner struct {
	mock.Mock
	execCount atomic.Int32
	execCh    chan struct{}
}

func newTrackedMockRunner() *trackedMockRunner {
	return &trackedMockRunner{execCh: make(chan struct{}, 100)}
}

func (m *trackedMockRunner) Run(ctx context.Context) (*runner.RunnerResult, error) {
	m.execCount.Add(1)
	args := m.Called()
	select {
	case m.execCh <- struct{}{}:
	default:
	}
	res, _ := args.Get(0).(*runner.RunnerResult)
	return res, args.Error(1)
}

// waitForExecutions waits for a specific number of executions with timeout
func (m *trackedMockRunner) waitForExecutions(ctx context.Context, count int32) bool {
	timeoutCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.execCount.Load() >= count {
			return true
		}
		select {
		case <-m.execCh:
		case <-ticker.C:
		case <-timeoutCtx.Done():
			return false
		}
	}
}

func setupTest(t *testing.T) (*trackedMockRunner, *hostRunner, context.Context, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	mockRunner := newTrackedMockRunner()

	svc := &hostRunner{
		ctx: ctx,
		config: &Config{
			Log:         log.NewLogger(log.DiscardHandler()),
			RunInterval: 25 * time.Millisecond,
			HealthzAddr: "127.0.0.1:0",
		},
		newRunner:        func() (SuiteRunner, error) { return mockRunner, nil },
		progress:         runner.NewNoOpProgressIndicator(),
		out:              &bytes.Buffer{},
		done:             make(chan struct{}),
		shutdownCallback: func(error) {},
	}
	return mockRunner, svc, ctx, cancel
}

func teardownTest(t *testing.T, svc *hostRunner, cancel context.CancelFunc) {
	t.Helper()
	cancel()
	err := svc.Stop(context.Background())
	assert.NoError(t, err, "Service should stop cleanly during teardown")

	ctx, cancelWait := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancelWait()
	if err := svc.WaitForShutdown(ctx); err != nil {
		t.Logf("Warning: Service did not shut down cleanly in teardown: %v", err)
	}
}

func passingResult() *runner.RunnerResult {
	return &runner.RunnerResult{
		RunID:  "run",
		Status: types.TestStatusPassed,
		Suites: map[string]*runner.SuiteResult{},
	}
}

func TestHostRunner_Start_RunsTestsImmediately(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer teardownTest(t, svc, cancel)

	mockRunner.On("Run").Return(passingResult(), nil)

	require.NoError(t, svc.Start(ctx))
	require.True(t, mockRunner.waitForExecutions(ctx, 1))
	assert.GreaterOrEqual(t, mockRunner.execCount.Load(), int32(1))
}

func TestHostRunner_Start_RunsTestsPeriodically(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer teardownTest(t, svc, cancel)

	mockRunner.On("Run").Return(passingResult(), nil)

	require.NoError(t, svc.Start(ctx))
	require.True(t, mockRunner.waitForExecutions(ctx, 3), "Multiple executions should have completed")
}

func TestHostRunner_ContextCancellation(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer teardownTest(t, svc, cancel)

	mockRunner.On("Run").Return(passingResult(), nil)

	require.NoError(t, svc.Start(ctx))
	require.True(t, mockRunner.waitForExecutions(ctx, 1))

	cancel()
	require.Eventually(t, svc.Stopped, time.Second, 10*time.Millisecond)
	countAfterCancel := mockRunner.execCount.Load()

	time.Sleep(3 * svc.config.RunInterval)
	assert.Equal(t, countAfterCancel, mockRunner.execCount.Load(),
		"No additional runs should occur after context cancellation")
}

func TestHostRunner_RunOnceMode(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer cancel()
	svc.config.RunOnce = true

	shutdown := make(chan struct{})
	svc.shutdownCallback = func(error) { close(shutdown) }
	mockRunner.On("Run").Return(passingResult(), nil).Once()

	require.NoError(t, svc.Start(ctx))
	select {
	case <-shutdown:
	case <-time.After(time.Second):
		t.Fatal("shutdown callback was not called")
	}

	time.Sleep(3 * svc.config.RunInterval)
	mockRunner.AssertNumberOfCalls(t, "Run", 1)
	assert.Contains(t, svc.out.(*bytes.Buffer).String(), "TOTAL")
}

func TestHostRunner_RunOnceWithFailures(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer cancel()
	svc.config.RunOnce = true

	failed := passingResult()
	failed.Status = types.TestStatusFailed
	failed.Stats = runner.ResultStats{Total: 3, Failures: 2}
	failed.Results = []*types.RunResult{
		types.NewRunResult(types.TestRecord{ID: "t1"}, types.TestStatusPassed, types.ModeBatched),
		types.NewRunResult(types.TestRecord{ID: "t2"}, types.TestStatusCrashed, types.ModeBatched),
		types.NewRunResult(types.TestRecord{ID: "t3"}, types.TestStatusNotRun, types.ModeBatched),
	}
	mockRunner.On("Run").Return(failed, nil).Once()

	err := svc.Start(ctx)
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.Contains(t, err.Error(), "2 of 3 tests did not pass in run run: t2, t3")
	assert.Equal(t, exitcodes.TestFailure, ExitCode(err))
}

func TestHostRunner_SetupErrorIsRuntimeError(t *testing.T) {
	mockRunner, svc, ctx, cancel := setupTest(t)
	defer cancel()
	svc.config.RunOnce = true

	mockRunner.On("Run").Return(nil, runner.NewSetupError(errors.New("host executable missing")))

	err := svc.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host executable missing")

	err = svc.runTests()
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.True(t, runner.IsSetupError(err))
	assert.Contains(t, err.Error(), "suite could not be attempted")
	assert.Equal(t, exitcodes.RuntimeErr, ExitCode(err))
}

func TestNew_LoadsSuite(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "editor")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0755))
	suiteFile := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(suiteFile, []byte(`
name: smoke
host:
  executable: ./editor
tests:
  - script: ./scripts/open_level.py
`), 0644))

	cfg := &Config{
		SuiteFile:   suiteFile,
		ArtifactDir: filepath.Join(dir, "artifacts"),
		RunOnce:     true,
		Log:         log.NewLogger(log.DiscardHandler()),
	}
	h, err := New(context.Background(), cfg, "test", func(error) {})
	require.NoError(t, err)
	assert.Equal(t, "smoke", h.registry.GetSuite().Name)

	r, err := h.newRunner()
	require.NoError(t, err)
	assert.NotNil(t, r)

	_, err = New(context.Background(), nil, "test", nil)
	require.Error(t, err)
}
