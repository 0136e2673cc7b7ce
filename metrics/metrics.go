package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/hostrunner/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "hostrunner"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_results_total",
		Help:      "Count of test results by status",
	}, []string{
		"suite",
		"name",
		"mode",
		"status",
	})

	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "host_invocations_total",
		Help:      "Count of host invocations by mode and outcome",
	}, []string{
		"mode",
		"outcome",
	})

	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "host_invocation_duration_seconds",
		Help:      "Wall-clock duration of host invocations",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{
		"mode",
	})

	fallbackReruns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "fallback_reruns_total",
		Help:      "Number of single-test reruns triggered by a failed batch or parallel invocation",
	})

	strayProcessesKilled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "stray_processes_killed_total",
		Help:      "Number of host-related processes killed by pre and post run hygiene",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of the most recent suite run",
	}, []string{
		"suite",
		"run_id",
		"result",
	})

	runTestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_total",
		Help:      "Total number of tests run",
	}, []string{
		"suite",
	})

	runTestPassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_passed",
		Help:      "Number of tests that met their expectations",
	}, []string{
		"suite",
	})

	runTestFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_failed",
		Help:      "Number of tests that did not meet their expectations",
	}, []string{
		"suite",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the most recent suite run",
	}, []string{
		"suite",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordTestResult(suite string, name string, mode types.ExecutionMode, status types.TestStatus) {
	if _, err := types.ParseTestStatus(string(status)); err != nil {
		log.Error("RecordTestResult - invalid status", "status", status)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "test_results_total",
			"suite", suite,
			"test", name,
			"mode", mode,
			"status", status)
	}
	testResultsTotal.WithLabelValues(suite, name, string(mode), string(status)).Inc()
}

func RecordInvocation(mode types.ExecutionMode, outcome string, duration time.Duration) {
	invocationsTotal.WithLabelValues(string(mode), outcome).Inc()
	invocationDuration.WithLabelValues(string(mode)).Observe(duration.Seconds())
}

func RecordFallbackRerun() {
	fallbackReruns.Inc()
}

func RecordStrayProcessesKilled(n int) {
	strayProcessesKilled.Add(float64(n))
}

func RecordRun(
	suite string,
	runID string,
	result string,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	runResults.WithLabelValues(suite, runID, result).Set(1)
	runTestTotal.WithLabelValues(suite).Add(float64(total))
	runTestPassed.WithLabelValues(suite).Add(float64(passed))
	runTestFailed.WithLabelValues(suite).Add(float64(failed))
	runDuration.WithLabelValues(suite).Set(duration.Seconds())
}
