package types

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher is a predicate over a finished RunResult. A nil error means the
// result is what the test declaration expected.
type Matcher interface {
	Match(result *RunResult) error
}

// DefaultExpectation expects the record to pass
var DefaultExpectation Matcher = Expectation{Status: TestStatusPassed}

// Expectation is the declarative expected-matcher used in suite files
type Expectation struct {
	Status         TestStatus `yaml:"status,omitempty"`
	OutputContains []string   `yaml:"output_contains,omitempty"`
	OutputExcludes []string   `yaml:"output_excludes,omitempty"`
	OutputMatches  string     `yaml:"output_matches,omitempty"`

	outputRegexp *regexp.Regexp
}

// Compile validates the expectation and prepares its regular expression
func (e *Expectation) Compile() error {
	if e.Status == "" {
		e.Status = TestStatusPassed
	}
	if _, err := ParseTestStatus(string(e.Status)); err != nil {
		return err
	}
	e.Status, _ = ParseTestStatus(string(e.Status))
	if e.OutputMatches != "" {
		re, err := regexp.Compile(e.OutputMatches)
		if err != nil {
			return fmt.Errorf("invalid output_matches pattern: %w", err)
		}
		e.outputRegexp = re
	}
	return nil
}

// Match implements Matcher
func (e Expectation) Match(result *RunResult) error {
	want := e.Status
	if want == "" {
		want = TestStatusPassed
	}
	if result.Status != want {
		return fmt.Errorf("expected status %s, got %s", want, result.Status)
	}
	for _, s := range e.OutputContains {
		if !strings.Contains(result.Output, s) {
			return fmt.Errorf("output does not contain %q", s)
		}
	}
	for _, s := range e.OutputExcludes {
		if strings.Contains(result.Output, s) {
			return fmt.Errorf("output contains excluded %q", s)
		}
	}
	re := e.outputRegexp
	if re == nil && e.OutputMatches != "" {
		var err error
		if re, err = regexp.Compile(e.OutputMatches); err != nil {
			return fmt.Errorf("invalid output_matches pattern: %w", err)
		}
	}
	if re != nil && !re.MatchString(result.Output) {
		return fmt.Errorf("output does not match %q", e.OutputMatches)
	}
	return nil
}

// MatcherFunc adapts a function to the Matcher interface
type MatcherFunc func(result *RunResult) error

// Match implements Matcher
func (f MatcherFunc) Match(result *RunResult) error {
	return f(result)
}
