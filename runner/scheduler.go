package runner

import (
	"context"
	"sync"

	"github.com/ethereum-optimism/infra/hostrunner/metrics"
	"github.com/ethereum-optimism/infra/hostrunner/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// invocationRunner runs one planned invocation on a log slot
type invocationRunner interface {
	run(ctx context.Context, inv Invocation, slot int) []*types.RunResult
}

// scheduler executes a Plan and merges single-test reruns into the results
type scheduler struct {
	log         log.Logger
	invoker     invocationRunner
	concurrency int
	fallback    bool
}

// execute runs the parallel phase and then the sequential phase of plan. The
// returned map holds exactly one result per planned record, keyed by id.
func (s *scheduler) execute(ctx context.Context, plan Plan) map[string]*types.RunResult {
	results := make(map[string]*types.RunResult)
	store := func(rs []*types.RunResult) {
		for _, r := range rs {
			results[r.Record.ID] = r
		}
	}

	for i, rs := range s.runParallel(ctx, plan.Parallel) {
		store(s.withFallback(ctx, plan.Parallel[i], rs))
	}

	for _, inv := range plan.Sequential {
		rs := s.invoker.run(ctx, inv, 0)
		store(s.withFallback(ctx, inv, rs))
	}
	return results
}

// runParallel fans invocations out over at most s.concurrency hosts, each on
// its own log slot. The result at index i belongs to invs[i].
func (s *scheduler) runParallel(ctx context.Context, invs []Invocation) [][]*types.RunResult {
	if len(invs) == 0 {
		return nil
	}
	limit := s.concurrency
	if limit < 1 {
		limit = 1
	}
	slots := make(chan int, limit)
	for slot := 1; slot <= limit; slot++ {
		slots <- slot
	}

	out := make([][]*types.RunResult, len(invs))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(limit)
	for i, inv := range invs {
		g.Go(func() error {
			slot := <-slots
			defer func() { slots <- slot }()

			s.log.Debug("Starting parallel invocation", "slot", slot, "tests", inv.IDs())
			rs := s.invoker.run(ctx, inv, slot)

			mu.Lock()
			out[i] = rs
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// withFallback re-runs every non-passed record of a multi-record invocation on
// its own. The single-test result replaces the shared one, which is kept as
// BatchResult.
func (s *scheduler) withFallback(ctx context.Context, inv Invocation, results []*types.RunResult) []*types.RunResult {
	if !s.fallback || len(inv.Records) < 2 {
		return results
	}
	merged := make([]*types.RunResult, len(results))
	for i, r := range results {
		merged[i] = r
		if r.Status == types.TestStatusPassed {
			continue
		}
		if ctx.Err() != nil {
			// Cancelled runs keep what the shared invocation reported
			continue
		}
		s.log.Info("Re-running test on its own", "test", r.Record.ID, "shared_status", r.Status, "mode", inv.Mode)
		metrics.RecordFallbackRerun()
		single := Invocation{Records: []types.TestRecord{r.Record}, Mode: types.ModeSingle}
		rerun := s.invoker.run(ctx, single, 0)[0]
		rerun.BatchResult = r
		merged[i] = rerun
	}
	return merged
}
