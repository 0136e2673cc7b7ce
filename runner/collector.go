package runner

import (
	"time"

	"github.com/ethereum-optimism/infra/hostrunner/types"
)

// SuiteResult aggregates the results of the records sharing one suite tag
type SuiteResult struct {
	ID       string
	Results  []*types.RunResult
	Status   types.TestStatus
	Duration time.Duration
	Stats    ResultStats
}

// RunnerResult captures the complete run of one suite
type RunnerResult struct {
	RunID string
	Suite string
	// Results holds one finalized result per record, in declared order
	Results []*types.RunResult
	// Suites groups Results by the records' suite tag
	Suites      map[string]*SuiteResult
	Status      types.TestStatus
	Duration    time.Duration
	Stats       ResultStats
	ArtifactDir string
}

// ResultStats tracks test statistics. Status counts are by observed status;
// Failures counts records that did not meet their expectations.
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Crashed   int
	TimedOut  int
	Unknown   int
	NotRun    int
	Failures  int
	StartTime time.Time
	EndTime   time.Time
}

func (s *ResultStats) add(r *types.RunResult) {
	s.Total++
	switch r.Status {
	case types.TestStatusPassed:
		s.Passed++
	case types.TestStatusFailed:
		s.Failed++
	case types.TestStatusCrashed:
		s.Crashed++
	case types.TestStatusTimedOut:
		s.TimedOut++
	case types.TestStatusUnknown:
		s.Unknown++
	case types.TestStatusNotRun:
		s.NotRun++
	}
	if !r.Passed() {
		s.Failures++
	}
}

// statusFromStats is PASSED when every record met its expectations
func statusFromStats(s ResultStats) types.TestStatus {
	if s.Failures > 0 {
		return types.TestStatusFailed
	}
	return types.TestStatusPassed
}

// newRunnerResult aggregates finalized results into a RunnerResult
func newRunnerResult(runID, suiteName string, results []*types.RunResult, start, end time.Time) *RunnerResult {
	out := &RunnerResult{
		RunID:    runID,
		Suite:    suiteName,
		Results:  results,
		Suites:   make(map[string]*SuiteResult),
		Duration: end.Sub(start),
		Stats:    ResultStats{StartTime: start, EndTime: end},
	}
	for _, r := range results {
		tag := r.Record.Suite
		if tag == "" {
			tag = suiteName
		}
		sr, ok := out.Suites[tag]
		if !ok {
			sr = &SuiteResult{ID: tag, Stats: ResultStats{StartTime: start, EndTime: end}}
			out.Suites[tag] = sr
		}
		sr.Results = append(sr.Results, r)
		sr.Duration += r.Duration
		sr.Stats.add(r)
		out.Stats.add(r)
	}
	for _, sr := range out.Suites {
		sr.Status = statusFromStats(sr.Stats)
	}
	out.Status = statusFromStats(out.Stats)
	return out
}

// Failures returns the results that did not meet their expectations, in declared order
func (r *RunnerResult) Failures() []*types.RunResult {
	var out []*types.RunResult
	for _, res := range r.Results {
		if !res.Passed() {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the result for a record id, or nil
func (r *RunnerResult) Result(id string) *types.RunResult {
	for _, res := range r.Results {
		if res.Record.ID == id {
			return res
		}
	}
	return nil
}
