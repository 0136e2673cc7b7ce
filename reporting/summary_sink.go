package reporting

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ethereum-optimism/infra/hostrunner/artifacts"
	"github.com/ethereum-optimism/infra/hostrunner/types"
)

// ContentSaver stores a named artifact
type ContentSaver interface {
	SaveContent(name string, data []byte) (string, error)
}

// TextSummarySink writes summary.log once every result has been consumed
type TextSummarySink struct {
	saver ContentSaver
	suite string

	mu      sync.Mutex
	results map[string][]*types.RunResult
}

var _ artifacts.ResultSink = (*TextSummarySink)(nil)

// NewTextSummarySink creates a sink that saves its summary through saver
func NewTextSummarySink(saver ContentSaver, suite string) *TextSummarySink {
	return &TextSummarySink{
		saver:   saver,
		suite:   suite,
		results: make(map[string][]*types.RunResult),
	}
}

// Consume collects a result for the summary
func (s *TextSummarySink) Consume(result *types.RunResult, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[runID] = append(s.results[runID], result)
	return nil
}

// Complete renders and saves the summary for runID
func (s *TextSummarySink) Complete(runID string) error {
	s.mu.Lock()
	results := s.results[runID]
	delete(s.results, runID)
	s.mu.Unlock()

	if _, err := s.saver.SaveContent(artifacts.SummaryFilename, []byte(FormatSummary(s.suite, runID, results))); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

// FormatSummary renders results as plain text: a table followed by failure details
func FormatSummary(suite, runID string, results []*types.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HOST TEST SUMMARY\nSuite: %s\nRun ID: %s\n\n", suite, runID)

	t := table.NewWriter()
	t.SetStyle(table.StyleDefault)
	t.AppendHeader(table.Row{"ID", "Suite", "Mode", "Status", "RC", "Duration", "Verdict"})
	counts := make(map[types.TestStatus]int)
	failures := 0
	for _, r := range results {
		counts[r.Status]++
		rc := "-"
		if r.ReturnCode != nil {
			rc = fmt.Sprintf("%d", *r.ReturnCode)
		}
		verdict := "ok"
		if !r.Passed() {
			verdict = "FAIL"
			failures++
		}
		t.AppendRow(table.Row{r.Record.ID, r.Record.Suite, modeString(r), r.Status, rc, formatDuration(r.Duration), verdict})
	}
	b.WriteString(t.Render())
	b.WriteString("\n\n")

	var parts []string
	for _, st := range types.AllStatuses {
		if counts[st] > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", st, counts[st]))
		}
	}
	fmt.Fprintf(&b, "Total: %d  Failures: %d  (%s)\n", len(results), failures, strings.Join(parts, " "))

	if failures == 0 {
		return b.String()
	}
	b.WriteString("\nFAILURES\n")
	for _, r := range results {
		if r.Passed() {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", r.Summary())
		if msg := KeyErrorMessage(r); msg != "" {
			fmt.Fprintf(&b, "  reason: %s\n", msg)
		}
		if r.BatchResult != nil {
			fmt.Fprintf(&b, "  shared invocation: %s\n", r.BatchResult.Summary())
		}
		for _, a := range []struct{ name, path string }{
			{"stdout", r.Artifacts.Stdout},
			{"host log", r.Artifacts.HostLog},
			{"crash", r.Artifacts.Crash},
		} {
			if a.path != "" {
				fmt.Fprintf(&b, "  %s: %s\n", a.name, a.path)
			}
		}
	}
	return b.String()
}
