package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/hostrunner/artifacts"
	"github.com/ethereum-optimism/infra/hostrunner/host"
	"github.com/ethereum-optimism/infra/hostrunner/hostlogs"
	"github.com/ethereum-optimism/infra/hostrunner/metrics"
	"github.com/ethereum-optimism/infra/hostrunner/types"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// invoker runs one host invocation end to end
type invoker struct {
	log       log.Logger
	launcher  host.Launcher
	host      types.HostDescriptor
	slotRoot  string
	artifacts *artifacts.Manager
	progress  ProgressIndicator
	tracer    trace.Tracer

	defaultTimeout time.Duration
	gracePeriod    time.Duration
	cancelGrace    time.Duration
	sentinel       int
	logCfg         hostlogs.Config
}

// recordTimeout is the budget of a single record
func (iv *invoker) recordTimeout(r types.TestRecord) time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return iv.defaultTimeout
}

// invocationTimeout is the sum of the budgets of every record in inv
func (iv *invoker) invocationTimeout(inv Invocation) time.Duration {
	var total time.Duration
	for _, r := range inv.Records {
		total += iv.recordTimeout(r)
	}
	return total
}

// slotHost returns the host descriptor an invocation on slot runs with. Every
// record gets its own artifact directory before the host starts.
func (iv *invoker) slotHost(inv Invocation, slot int) (types.HostDescriptor, error) {
	h := iv.host.ForSlot(slot, iv.slotRoot)
	dirs := make([]string, len(inv.Records))
	for i, rec := range inv.Records {
		dir, err := iv.artifacts.TestPath(rec.ID)
		if err != nil {
			return h, err
		}
		dirs[i] = dir
	}
	if h.Env == nil {
		h.Env = make(map[string]string)
	}
	h.Env[ArtifactRootEnvVar] = filepath.Dir(dirs[0])
	if len(dirs) == 1 {
		h.Env[ArtifactDirEnvVar] = dirs[0]
	}
	return h, nil
}

// run executes inv on the given slot and returns one result per record, in order.
// It never fails: every problem is expressed on the results.
func (iv *invoker) run(ctx context.Context, inv Invocation, slot int) []*types.RunResult {
	ids := inv.IDs()
	logger := iv.log.New("mode", inv.Mode, "slot", slot, "tests", len(ids))

	ctx, span := iv.tracer.Start(ctx, fmt.Sprintf("invocation %s", ids[0]))
	defer span.End()
	span.SetAttributes(
		attribute.String("mode", string(inv.Mode)),
		attribute.Int("slot", slot),
		attribute.StringSlice("tests", ids),
	)

	if ctx.Err() != nil {
		return notRunResults(inv, types.ErrorKindCancelled)
	}

	iv.progress.StartInvocation(ids, inv.Mode)
	h, err := iv.slotHost(inv, slot)
	if err != nil {
		return iv.abort(logger, inv, fmt.Errorf("preparing artifact directory: %w", err))
	}
	collector := hostlogs.NewCollector(logger, h, iv.logCfg)
	if err := collector.Prepare(); err != nil {
		return iv.abort(logger, inv, err)
	}
	if err := collector.Cycle(); err != nil {
		logger.Warn("Failed to cycle host logs", "err", err)
	}

	scripts := make([]string, len(inv.Records))
	for i, r := range inv.Records {
		scripts[i] = r.Script
	}
	spec := host.LaunchSpec{
		Host:        h,
		Args:        append(append([]string{}, inv.Records[0].ExtraArgs...), h.ScriptArgs(scripts)...),
		GracePeriod: iv.gracePeriod,
		CancelGrace: iv.cancelGrace,
	}
	timeout := iv.invocationTimeout(inv)
	logger.Debug("Launching host", "command", spec.CommandLine(), "timeout", timeout)

	proc, err := iv.launcher.Launch(ctx, spec)
	if err != nil {
		return iv.abort(logger, inv, err)
	}

	rc := proc.Wait(ctx, timeout)
	duration := proc.Duration()
	outcome := host.ClassifyReturnCode(rc, iv.sentinel)
	logger.Info("Host exited", "pid", proc.PID(), "rc", rc, "state", proc.State(), "outcome", outcome, "duration", duration)
	span.SetAttributes(attribute.Int("rc", rc), attribute.String("outcome", outcome.String()))
	metrics.RecordInvocation(inv.Mode, outcome.String(), duration)

	// Evidence is collected even when the run was cancelled
	collectCtx := context.WithoutCancel(ctx)
	var crashReport string
	if outcome == host.OutcomeCrash {
		crashReport = collector.FetchCrash(collectCtx)
	}
	hostLog := collector.FetchLogExcerpt(collectCtx)

	results := Attribute(AttributionInput{
		Records:     inv.Records,
		Mode:        inv.Mode,
		Output:      proc.Output(),
		ReturnCode:  rc,
		Sentinel:    iv.sentinel,
		CrashReport: crashReport,
		HostLog:     hostLog,
	})
	for _, r := range results {
		if r.Status != types.TestStatusNotRun {
			r.Duration = duration
		}
	}

	if outcome == host.OutcomeCrash {
		for _, p := range collector.CrashArtifacts() {
			saved, err := iv.artifacts.Save(p, true)
			if err != nil {
				logger.Warn("Failed to save crash artifact", "path", p, "err", err)
				continue
			}
			logger.Info("Saved crash artifact", "path", saved)
		}
	}

	iv.finish(logger, results)
	return results
}

// finish saves per-record artifacts and reports progress
func (iv *invoker) finish(logger log.Logger, results []*types.RunResult) {
	for _, r := range results {
		if err := iv.artifacts.SaveResult(r); err != nil {
			logger.Warn("Failed to save test artifacts", "test", r.Record.ID, "err", err)
		}
		iv.progress.UpdateTest(r.Record.ID, r.Status)
	}
}

// abort reports a host that could not be started
func (iv *invoker) abort(logger log.Logger, inv Invocation, err error) []*types.RunResult {
	logger.Error("Failed to launch host", "err", err)
	metrics.RecordErrorDetails("launch", err)
	results := iv.failedLaunch(inv, err)
	iv.finish(logger, results)
	return results
}

// failedLaunch marks every record of inv UNKNOWN with the launch error as output
func (iv *invoker) failedLaunch(inv Invocation, err error) []*types.RunResult {
	results := make([]*types.RunResult, len(inv.Records))
	for i, rec := range inv.Records {
		r := types.NewRunResult(rec, types.TestStatusUnknown, inv.Mode)
		r.ErrorKind = types.ErrorKindLaunchFailure
		r.Output = fmt.Sprintf("host launch failed: %v", err)
		results[i] = r
	}
	return results
}

// notRunResults marks every record of inv NOT_RUN
func notRunResults(inv Invocation, kind types.ErrorKind) []*types.RunResult {
	results := make([]*types.RunResult, len(inv.Records))
	for i, rec := range inv.Records {
		r := types.NewRunResult(rec, types.TestStatusNotRun, inv.Mode)
		r.ErrorKind = kind
		results[i] = r
	}
	return results
}
