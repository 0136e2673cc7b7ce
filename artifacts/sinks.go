package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/hostrunner/types"
)

const (
	AllLogsFilename = "all.log"
	ResultsFilename = "results.json"
	SummaryFilename = "summary.log"
)

// ResultSink is an interface for different ways of consuming test results
type ResultSink interface {
	// Consume processes a single finalized result
	Consume(result *types.RunResult, runID string) error
	// Complete is called when all results have been consumed
	Complete(runID string) error
}

// AddSink registers a sink
func (m *Manager) AddSink(sink ResultSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// AddDefaultSinks registers the all.log and results.json sinks
func (m *Manager) AddDefaultSinks() {
	m.AddSink(&AllLogsFileSink{manager: m})
	m.AddSink(&JSONResultsSink{manager: m})
}

// LogResult feeds a result to every sink
func (m *Manager) LogResult(result *types.RunResult) error {
	m.mu.Lock()
	sinks := append([]ResultSink(nil), m.sinks...)
	m.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Consume(result, m.runID); err != nil {
			return fmt.Errorf("error in sink: %w", err)
		}
	}
	return nil
}

// Complete finalizes all sinks
func (m *Manager) Complete() error {
	m.mu.Lock()
	sinks := append([]ResultSink(nil), m.sinks...)
	m.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Complete(m.runID); err != nil {
			return fmt.Errorf("error completing sink: %w", err)
		}
	}
	return nil
}

// AllLogsFileSink appends every result to a single all.log file
type AllLogsFileSink struct {
	manager *Manager
	mu      sync.Mutex
}

// Consume writes a test result to the all.log file
func (s *AllLogsFileSink) Consume(result *types.RunResult, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := s.manager.GetSavePath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(root, AllLogsFilename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open all.log: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n", result.Record.ID)
	fmt.Fprintf(&b, "Status: %s\n", result.Status)
	fmt.Fprintf(&b, "Mode: %s\n", result.Mode)
	if result.ReturnCode != nil {
		fmt.Fprintf(&b, "Return code: %d\n", *result.ReturnCode)
	}
	if result.ErrorKind != types.ErrorKindNone {
		fmt.Fprintf(&b, "Error kind: %s\n", result.ErrorKind)
	}
	if result.MatchErr != nil {
		fmt.Fprintf(&b, "Verdict: %v\n", result.MatchErr)
	}
	fmt.Fprintf(&b, "Duration: %s\n", result.Duration.Truncate(time.Millisecond))
	if result.Output != "" {
		b.WriteString("\n--- output ---\n")
		b.WriteString(indentText(result.Output, "  "))
	}
	if result.CrashReport != "" {
		b.WriteString("\n--- crash report ---\n")
		b.WriteString(indentText(result.CrashReport, "  "))
	}
	b.WriteString("\n")

	_, err = f.WriteString(b.String())
	return err
}

// Complete is a no-op for AllLogsFileSink
func (s *AllLogsFileSink) Complete(runID string) error {
	return nil
}

func indentText(text, indent string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = indent + l
	}
	return strings.Join(lines, "\n") + "\n"
}

// JSONResult is the serialized form of a result in results.json
type JSONResult struct {
	ID          string                `json:"id"`
	Suite       string                `json:"suite,omitempty"`
	Script      string                `json:"script"`
	Status      types.TestStatus      `json:"status"`
	Passed      bool                  `json:"passed"`
	Verdict     string                `json:"verdict,omitempty"`
	Mode        types.ExecutionMode   `json:"mode"`
	ReturnCode  *int                  `json:"return_code,omitempty"`
	ErrorKind   types.ErrorKind       `json:"error_kind,omitempty"`
	DurationMS  int64                 `json:"duration_ms"`
	Artifacts   types.ResultArtifacts `json:"artifacts"`
	BatchStatus types.TestStatus      `json:"batch_status,omitempty"`
}

// JSONResultsSink writes all results to results.json on completion
type JSONResultsSink struct {
	manager *Manager
	mu      sync.Mutex
	results []JSONResult
}

// Consume collects a result
func (s *JSONResultsSink) Consume(result *types.RunResult, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jr := JSONResult{
		ID:         result.Record.ID,
		Suite:      result.Record.Suite,
		Script:     result.Record.Script,
		Status:     result.Status,
		Passed:     result.Passed(),
		Mode:       result.Mode,
		ReturnCode: result.ReturnCode,
		ErrorKind:  result.ErrorKind,
		DurationMS: result.Duration.Milliseconds(),
		Artifacts:  result.Artifacts,
	}
	if result.MatchErr != nil {
		jr.Verdict = result.MatchErr.Error()
	}
	if result.BatchResult != nil {
		jr.BatchStatus = result.BatchResult.Status
	}
	s.results = append(s.results, jr)
	return nil
}

// Complete writes results.json
func (s *JSONResultsSink) Complete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := s.results
	if results == nil {
		results = []JSONResult{}
	}
	data, err := json.MarshalIndent(struct {
		RunID   string       `json:"run_id"`
		Results []JSONResult `json:"results"`
	}{RunID: runID, Results: results}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	root, err := s.manager.GetSavePath()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(root, ResultsFilename), data, 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}
