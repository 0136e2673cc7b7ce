package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// TestStatus represents the possible outcomes of a test record
type TestStatus string

const (
	TestStatusPassed   TestStatus = "passed"
	TestStatusFailed   TestStatus = "failed"
	TestStatusCrashed  TestStatus = "crashed"
	TestStatusTimedOut TestStatus = "timed_out"
	TestStatusUnknown  TestStatus = "unknown"
	TestStatusNotRun   TestStatus = "not_run"
)

// AllStatuses lists every status in reporting order
var AllStatuses = []TestStatus{
	TestStatusPassed,
	TestStatusFailed,
	TestStatusCrashed,
	TestStatusTimedOut,
	TestStatusUnknown,
	TestStatusNotRun,
}

func (s TestStatus) String() string {
	return string(s)
}

// ParseTestStatus parses a status name, accepting upper or lower case
func ParseTestStatus(s string) (TestStatus, error) {
	norm := TestStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range AllStatuses {
		if st == norm {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown test status %q", s)
}

// ErrorKind classifies why a record did not pass
type ErrorKind string

const (
	ErrorKindNone                 ErrorKind = ""
	ErrorKindSetup                ErrorKind = "setup_error"
	ErrorKindLaunchFailure        ErrorKind = "launch_failure"
	ErrorKindTimeout              ErrorKind = "timeout"
	ErrorKindCrash                ErrorKind = "crash"
	ErrorKindTestReportedFailure  ErrorKind = "test_reported_failure"
	ErrorKindAttributionAmbiguity ErrorKind = "attribution_ambiguity"
	ErrorKindCancelled            ErrorKind = "cancelled"
)

// ExecutionMode is the scheduling shape of the host invocation that produced a result
type ExecutionMode string

const (
	ModeSingle   ExecutionMode = "single"
	ModeBatched  ExecutionMode = "batched"
	ModeParallel ExecutionMode = "parallel"
)

// TestRecord describes one test executed inside the host
type TestRecord struct {
	ID           string
	Script       string
	Timeout      time.Duration
	Expect       Matcher
	ExtraArgs    []string
	Suite        string
	Isolate      bool
	ParallelSafe bool
}

// HostConfigKey identifies records that need identical host configuration and can
// therefore share a batched invocation.
func (t TestRecord) HostConfigKey() string {
	return strings.Join(t.ExtraArgs, "\x00")
}

// Validate checks the record is runnable
func (t TestRecord) Validate() error {
	if t.ID == "" {
		return errors.New("test id is required")
	}
	if t.Script == "" {
		return fmt.Errorf("test %s: script path is required", t.ID)
	}
	if !filepath.IsAbs(t.Script) {
		return fmt.Errorf("test %s: script path %s must be absolute", t.ID, t.Script)
	}
	if t.Timeout < 0 {
		return fmt.Errorf("test %s: timeout cannot be negative", t.ID)
	}
	return nil
}

// ResultArtifacts holds the on-disk files saved for a result
type ResultArtifacts struct {
	Stdout  string `json:"stdout,omitempty"`
	HostLog string `json:"host_log,omitempty"`
	Crash   string `json:"crash,omitempty"`
}

// RunResult captures the outcome of one test record.
// It is mutable until Finalize is called.
type RunResult struct {
	Record      TestRecord
	Status      TestStatus
	ReturnCode  *int
	Output      string
	HostLog     string
	CrashReport string
	Duration    time.Duration
	ErrorKind   ErrorKind
	Mode        ExecutionMode

	// BatchResult is the outcome from a batched or parallel invocation that was
	// superseded by a single-test rerun
	BatchResult *RunResult
	Artifacts   ResultArtifacts
	// MatchErr is the expected-matcher verdict; nil means the record met expectations
	MatchErr  error
	finalized bool
}

// NewRunResult returns a result for record with the given status
func NewRunResult(record TestRecord, status TestStatus, mode ExecutionMode) *RunResult {
	return &RunResult{
		Record: record,
		Status: status,
		Mode:   mode,
	}
}

// SetReturnCode records the host return code
func (r *RunResult) SetReturnCode(rc int) {
	r.ReturnCode = &rc
}

// Finalize clamps the duration and evaluates the record's expected-matcher.
// Calling it more than once has no further effect.
func (r *RunResult) Finalize() {
	if r.finalized {
		return
	}
	r.finalized = true
	if r.Duration < 0 {
		r.Duration = 0
	}
	matcher := r.Record.Expect
	if matcher == nil {
		matcher = DefaultExpectation
	}
	r.MatchErr = matcher.Match(r)
}

// Finalized reports whether Finalize has been called
func (r *RunResult) Finalized() bool {
	return r.finalized
}

// Passed reports whether the record met its expectations
func (r *RunResult) Passed() bool {
	if !r.finalized {
		return r.Status == TestStatusPassed
	}
	return r.MatchErr == nil
}

// Summary returns a one line description of the result
func (r *RunResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", r.Record.ID, r.Status)
	if r.ReturnCode != nil {
		fmt.Fprintf(&b, " (rc=%d)", *r.ReturnCode)
	}
	if r.ErrorKind != ErrorKindNone {
		fmt.Fprintf(&b, " [%s]", r.ErrorKind)
	}
	if r.MatchErr != nil {
		fmt.Fprintf(&b, ": %v", r.MatchErr)
	}
	return b.String()
}
