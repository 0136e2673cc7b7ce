// Package reporting renders run results for people: a console table and a
// plain-text summary file in the artifact directory.
package reporting

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/hostrunner/runner"
	"github.com/ethereum-optimism/infra/hostrunner/types"
)

// errorPatterns mark the most telling line of a failing test's output
var errorPatterns = []string{
	"Traceback",
	"AssertionError",
	"Exception",
	"Error:",
	"error:",
	"FAIL",
}

// RenderTable writes the results of a run as a table. Colours are only used when colored is set.
func RenderTable(w io.Writer, result *runner.RunnerResult, colored bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Host Test Results: %s (%s)", result.Suite, formatDuration(result.Duration)))
	t.AppendHeader(table.Row{"Type", "ID", "Mode", "Duration", "Tests", "Passed", "Failures", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failures", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, tag := range slices.Sorted(maps.Keys(result.Suites)) {
		suite := result.Suites[tag]
		t.AppendRow(table.Row{
			"Suite", suite.ID, "", formatDuration(suite.Duration), "-",
			suite.Stats.Total - suite.Stats.Failures, suite.Stats.Failures,
			verdictString(suite.Status == types.TestStatusPassed, suite.Status), "",
		})
		for i, r := range suite.Results {
			prefix := "├──"
			if i == len(suite.Results)-1 {
				prefix = "└──"
			}
			t.AppendRow(table.Row{
				"Test", fmt.Sprintf("%s %s", prefix, r.Record.ID), modeString(r), formatDuration(r.Duration), 1,
				boolToInt(r.Passed()), boolToInt(!r.Passed()),
				verdictString(r.Passed(), r.Status), KeyErrorMessage(r),
			})
		}
		t.AppendSeparator()
	}

	t.AppendFooter(table.Row{
		"TOTAL", "", "", formatDuration(result.Duration), result.Stats.Total,
		result.Stats.Total - result.Stats.Failures, result.Stats.Failures,
		verdictString(result.Status == types.TestStatusPassed, result.Status), "",
	})

	switch {
	case !colored:
		t.SetStyle(table.StyleLight)
	case result.Status == types.TestStatusPassed:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.Render()
}

// KeyErrorMessage extracts the most pertinent line explaining why a result did not pass
func KeyErrorMessage(r *types.RunResult) string {
	if r.Passed() {
		return ""
	}
	if r.Status == types.TestStatusPassed && r.MatchErr != nil {
		return firstLine(r.MatchErr.Error())
	}
	switch r.Status {
	case types.TestStatusCrashed:
		if line := firstLine(r.CrashReport); line != "" {
			return line
		}
	case types.TestStatusTimedOut:
		return "timed out"
	case types.TestStatusNotRun:
		if r.ErrorKind == types.ErrorKindCancelled {
			return "not run: cancelled"
		}
		return "not run: an earlier test stopped the host"
	}
	lines := strings.Split(strings.TrimSpace(r.Output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		for _, p := range errorPatterns {
			if strings.Contains(lines[i], p) {
				return truncate(strings.TrimSpace(lines[i]), 120)
			}
		}
	}
	if r.MatchErr != nil {
		return firstLine(r.MatchErr.Error())
	}
	return string(r.ErrorKind)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[:idx]
	}
	return truncate(s, 120)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func modeString(r *types.RunResult) string {
	if r.BatchResult != nil {
		return fmt.Sprintf("%s (rerun of %s)", r.Mode, r.BatchResult.Mode)
	}
	return string(r.Mode)
}

// verdictString returns a marked status: the verdict decides the mark, the status is shown as observed
func verdictString(passed bool, status types.TestStatus) string {
	if passed {
		return "✓ " + status.String()
	}
	return "✗ " + status.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
