package hostrunner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/hostrunner/exitcodes"
	"github.com/ethereum-optimism/infra/hostrunner/runner"
)

// maxListedFailures bounds the test ids named in a TestFailureError
const maxListedFailures = 10

// RuntimeError is a failure of hostrunner itself rather than of a test:
// bad configuration, an unusable host or an artifact directory that cannot
// be created. It exits with exitcodes.RuntimeErr.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	if runner.IsSetupError(e.Err) {
		return fmt.Sprintf("suite could not be attempted: %v", e.Err)
	}
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError reports whether err is or wraps a RuntimeError or a runner
// SetupError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && (errors.As(err, &runtimeErr) || runner.IsSetupError(err))
}

// TestFailureError reports a run in which some records missed their expectations
type TestFailureError struct {
	RunID  string
	Total  int
	Failed []string
}

func (e *TestFailureError) Error() string {
	listed := e.Failed
	more := ""
	if len(listed) > maxListedFailures {
		more = fmt.Sprintf(" (+%d more)", len(listed)-maxListedFailures)
		listed = listed[:maxListedFailures]
	}
	return fmt.Sprintf("test failure: %d of %d tests did not pass in run %s: %s%s",
		len(e.Failed), e.Total, e.RunID, strings.Join(listed, ", "), more)
}

// NewTestFailureError describes the failures of a finished run
func NewTestFailureError(result *runner.RunnerResult) *TestFailureError {
	e := &TestFailureError{RunID: result.RunID, Total: result.Stats.Total}
	for _, r := range result.Failures() {
		e.Failed = append(e.Failed, r.Record.ID)
	}
	return e
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}

// ExitCode maps an error returned by the application to its process exit code.
// Unclassified errors count as test failures.
func ExitCode(err error) int {
	var exitErr cli.ExitCoder
	switch {
	case err == nil:
		return exitcodes.Success
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	case IsRuntimeError(err):
		return exitcodes.RuntimeErr
	default:
		return exitcodes.TestFailure
	}
}
