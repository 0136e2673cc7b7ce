package hostrunner

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/hostrunner/exitcodes"
	"github.com/ethereum-optimism/infra/hostrunner/runner"
	"github.com/ethereum-optimism/infra/hostrunner/types"
)

func TestRuntimeError(t *testing.T) {
	cause := errors.New("bad flag")
	err := NewRuntimeError(cause)

	assert.Equal(t, "runtime error: bad flag", err.Error())
	assert.True(t, IsRuntimeError(err))
	assert.True(t, IsRuntimeError(fmt.Errorf("wrapped: %w", err)))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsRuntimeError(cause))
	assert.False(t, IsRuntimeError(nil))
	assert.False(t, IsTestFailureError(err))
}

func TestRuntimeError_SetupError(t *testing.T) {
	setup := runner.NewSetupError(errors.New("host executable /opt/Editor: no such file"))

	assert.True(t, IsRuntimeError(setup), "a bare setup error is a runtime error")
	err := NewRuntimeError(setup)
	assert.Equal(t, "suite could not be attempted: setup error: host executable /opt/Editor: no such file", err.Error())
	assert.True(t, runner.IsSetupError(err))
}

func TestTestFailureError(t *testing.T) {
	var results []*types.RunResult
	for i := 1; i <= 13; i++ {
		status := types.TestStatusFailed
		if i == 1 {
			status = types.TestStatusPassed
		}
		results = append(results, types.NewRunResult(types.TestRecord{ID: fmt.Sprintf("t%d", i)}, status, types.ModeSingle))
	}
	err := NewTestFailureError(&runner.RunnerResult{RunID: "r1", Results: results, Stats: runner.ResultStats{Total: 13}})

	assert.Len(t, err.Failed, 12)
	assert.Equal(t, "test failure: 12 of 13 tests did not pass in run r1: t2, t3, t4, t5, t6, t7, t8, t9, t10, t11 (+2 more)", err.Error())
	assert.True(t, IsTestFailureError(err))
	assert.True(t, IsTestFailureError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsTestFailureError(nil))
	assert.False(t, IsRuntimeError(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: exitcodes.Success},
		{name: "test failure", err: &TestFailureError{RunID: "r", Total: 1, Failed: []string{"t1"}}, want: exitcodes.TestFailure},
		{name: "runtime", err: NewRuntimeError(errors.New("boom")), want: exitcodes.RuntimeErr},
		{name: "setup", err: fmt.Errorf("run: %w", runner.NewSetupError(errors.New("no host"))), want: exitcodes.RuntimeErr},
		{name: "exit coder", err: cli.Exit("explicit", 7), want: 7},
		{name: "unclassified", err: errors.New("something else"), want: exitcodes.TestFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
