package host

import (
	"math"
	"os"
	"syscall"
)

const (
	// DefaultTestFailureReturnCode is the exit code a host uses when a test body reports failure
	DefaultTestFailureReturnCode = 0xF
	// TimeoutReturnCode is returned by Wait when the host overran its budget.
	// No real process can exit with it.
	TimeoutReturnCode = math.MinInt32
	// CancelledReturnCode is returned by Wait when the invocation was cancelled
	CancelledReturnCode = math.MinInt32 + 1
	// LaunchFailureReturnCode marks an invocation whose process never started
	LaunchFailureReturnCode = math.MinInt32 + 2
)

// Outcome is the classification of a host return code
type Outcome int

const (
	OutcomeClean Outcome = iota
	OutcomeTestFailure
	OutcomeTimeout
	OutcomeCancelled
	OutcomeCrash
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeTestFailure:
		return "test_failure"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "crash"
	}
}

// ClassifyReturnCode maps a return code onto an Outcome. sentinel is the code a
// host uses to report a failing test body.
func ClassifyReturnCode(rc int, sentinel int) Outcome {
	switch rc {
	case 0:
		return OutcomeClean
	case TimeoutReturnCode:
		return OutcomeTimeout
	case CancelledReturnCode:
		return OutcomeCancelled
	case sentinel:
		return OutcomeTestFailure
	default:
		return OutcomeCrash
	}
}

// exitCode returns the process exit code, reporting death by signal as 128+signal
func exitCode(state *os.ProcessState) (rc int, signaled bool) {
	if state == nil {
		return -1, false
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), true
	}
	return state.ExitCode(), false
}
