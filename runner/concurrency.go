package runner

import (
	"context"
	"runtime"

	"github.com/ethereum/go-ethereum/log"
	"github.com/shirou/gopsutil/v4/cpu"
)

// cpuCount returns the number of logical CPUs
func cpuCount(ctx context.Context) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// determineConcurrency picks how many host invocations may run at once.
// A positive user value wins; zero derives a value from the CPU count. Hosts
// are heavyweight processes, so the derived value is half the logical CPUs.
// The result never exceeds numItems or MaxReasonableConcurrency and is at least 1.
func determineConcurrency(ctx context.Context, logger log.Logger, user int, numItems int) int {
	concurrency := user
	if concurrency <= 0 {
		cpus := cpuCount(ctx)
		concurrency = cpus / 2
		if cpus <= 2 {
			concurrency = 1
		}
		logger.Debug("Derived concurrency from CPU count", "cpus", cpus, "concurrency", concurrency)
	} else if concurrency > MaxReasonableConcurrency {
		logger.Warn("Very high concurrency requested", "concurrency", concurrency,
			"recommendation", "Consider using lower values to avoid resource exhaustion")
	}

	if concurrency > MaxReasonableConcurrency {
		concurrency = MaxReasonableConcurrency
	}
	if numItems > 0 && concurrency > numItems {
		concurrency = numItems
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return concurrency
}
