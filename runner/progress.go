package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/hostrunner/types"
	"github.com/ethereum/go-ethereum/log"
)

// ProgressIndicator receives updates as a suite runs
type ProgressIndicator interface {
	StartSuite(suiteName string, totalTests int)
	StartInvocation(ids []string, mode types.ExecutionMode)
	UpdateTest(testID string, status types.TestStatus)
	CompleteSuite(suiteName string)
	Stop()
}

type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartSuite(suiteName string, totalTests int)            {}
func (n *noOpProgressIndicator) StartInvocation(ids []string, mode types.ExecutionMode) {}
func (n *noOpProgressIndicator) UpdateTest(testID string, status types.TestStatus)      {}
func (n *noOpProgressIndicator) CompleteSuite(suiteName string)                         {}
func (n *noOpProgressIndicator) Stop()                                                  {}

// consoleProgressIndicator logs periodic progress lines
type consoleProgressIndicator struct {
	logger   log.Logger
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex

	currentSuite   string
	completedTests int
	totalTests     int
	statusCounts   map[types.TestStatus]int
	suiteStartTime time.Time

	// test id -> start time
	runningTests map[string]time.Time
}

// NewConsoleProgressIndicator creates a progress indicator that logs an update every interval
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) ProgressIndicator {
	if updateInterval <= 0 {
		updateInterval = 30 * time.Second
	}
	indicator := &consoleProgressIndicator{
		logger:       logger,
		ticker:       time.NewTicker(updateInterval),
		stopCh:       make(chan struct{}),
		statusCounts: make(map[types.TestStatus]int),
		runningTests: make(map[string]time.Time),
	}
	go indicator.progressReporter()
	return indicator
}

func (c *consoleProgressIndicator) StartSuite(suiteName string, totalTests int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentSuite = suiteName
	c.totalTests = totalTests
	c.completedTests = 0
	c.statusCounts = make(map[types.TestStatus]int)
	c.suiteStartTime = time.Now()
	c.runningTests = make(map[string]time.Time)

	c.logger.Info("Starting suite", "suite", suiteName, "totalTests", totalTests)
}

func (c *consoleProgressIndicator) StartInvocation(ids []string, mode types.ExecutionMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		c.runningTests[id] = now
	}
	c.logger.Debug("Host invocation started", "mode", mode, "tests", len(ids), "runningTests", len(c.runningTests))
}

func (c *consoleProgressIndicator) UpdateTest(testID string, status types.TestStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningTests, testID)
	c.completedTests++
	c.statusCounts[status]++

	c.logger.Debug("Test completed", "test", testID, "status", status, "completed", c.completedTests, "total", c.totalTests)
}

func (c *consoleProgressIndicator) CompleteSuite(suiteName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	duration := time.Since(c.suiteStartTime).Truncate(time.Second)
	c.logger.Info("Completed suite", "suite", suiteName, "completed", c.completedTests,
		"failures", c.completedTests-c.statusCounts[types.TestStatusPassed], "duration", duration)
	c.currentSuite = ""
	c.runningTests = make(map[string]time.Time)
}

func (c *consoleProgressIndicator) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *consoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var percentComplete float64
	if c.totalTests > 0 {
		percentComplete = float64(c.completedTests) * 100.0 / float64(c.totalTests)
	}
	c.logger.Info("Progress update",
		"suite", c.currentSuite,
		"completed", c.completedTests,
		"total", c.totalTests,
		"percent", fmt.Sprintf("%.1f%%", percentComplete),
		"numRunning", len(c.runningTests),
		"longestRunning", formatRunningTests(c.runningTests, 3),
	)
}

// Stop stops the progress reporter; it is safe to call more than once
func (c *consoleProgressIndicator) Stop() {
	c.stopOnce.Do(func() {
		c.ticker.Stop()
		close(c.stopCh)
	})
}

// formatRunningTests lists the longest running tests first, showing at most maxShow
func formatRunningTests(runningTests map[string]time.Time, maxShow int) string {
	if len(runningTests) == 0 {
		return ""
	}

	type runningTest struct {
		name     string
		duration time.Duration
	}

	running := make([]runningTest, 0, len(runningTests))
	now := time.Now()
	for name, start := range runningTests {
		running = append(running, runningTest{name: name, duration: now.Sub(start)})
	}
	sort.Slice(running, func(i, j int) bool {
		if running[i].duration == running[j].duration {
			return running[i].name < running[j].name
		}
		return running[i].duration > running[j].duration
	})

	var parts []string
	for i, test := range running {
		if i >= maxShow {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%v)", test.name, test.duration.Truncate(time.Second)))
	}
	if len(running) > maxShow {
		parts = append(parts, fmt.Sprintf("+%d more", len(running)-maxShow))
	}
	return strings.Join(parts, ", ")
}
