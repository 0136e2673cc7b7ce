package types

import (
	"errors"
	"fmt"
	"time"
)

// Suite is an ordered collection of test records that run against one host
type Suite struct {
	Name    string
	Host    HostDescriptor
	Records []TestRecord
}

// Validate checks that the suite can be scheduled
func (s *Suite) Validate() error {
	if s == nil {
		return errors.New("suite is nil")
	}
	if len(s.Records) == 0 {
		return fmt.Errorf("suite %s has no tests", s.Name)
	}
	seen := make(map[string]bool, len(s.Records))
	for _, r := range s.Records {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate test id %s in suite %s", r.ID, s.Name)
		}
		seen[r.ID] = true
	}
	return nil
}

// Filter returns a copy of the suite containing the records keep accepts
func (s *Suite) Filter(keep func(TestRecord) bool) *Suite {
	out := &Suite{Name: s.Name, Host: s.Host.Clone()}
	for _, r := range s.Records {
		if keep(r) {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// SuiteConfig is the YAML form of a suite declaration file
type SuiteConfig struct {
	Name     string                 `yaml:"name"`
	Host     HostDescriptor         `yaml:"host"`
	Defaults TestDefaults           `yaml:"defaults,omitempty"`
	Tests    []TestConfig           `yaml:"tests,omitempty"`
	Suites   map[string]GroupConfig `yaml:"suites,omitempty"`
}

// TestDefaults apply to every test that leaves the field unset
type TestDefaults struct {
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	ParallelSafe *bool         `yaml:"parallel_safe,omitempty"`
	ScriptDir    string        `yaml:"script_dir,omitempty"`
}

// GroupConfig groups related tests under a suite tag
type GroupConfig struct {
	Description string       `yaml:"description"`
	Tests       []TestConfig `yaml:"tests"`
}

// TestConfig is the YAML form of a test record
type TestConfig struct {
	ID           string         `yaml:"id"`
	Script       string         `yaml:"script"`
	Timeout      *time.Duration `yaml:"timeout,omitempty"`
	Args         []string       `yaml:"args,omitempty"`
	Isolate      bool           `yaml:"isolate,omitempty"`
	ParallelSafe *bool          `yaml:"parallel_safe,omitempty"`
	Expect       *Expectation   `yaml:"expect,omitempty"`
}
