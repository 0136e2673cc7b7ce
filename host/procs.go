package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	psprocess "github.com/shirou/gopsutil/v4/process"
)

// interrupt asks the process to stop gracefully
func interrupt(p *os.Process) error {
	if p == nil {
		return errors.New("process not started")
	}
	if runtime.GOOS == "windows" {
		return errors.New("interrupt is not supported on windows")
	}
	return p.Signal(os.Interrupt)
}

// killTree kills pid and every descendant it can find. Children are collected
// before the parent dies so that orphans reparented to init are not missed.
func killTree(ctx context.Context, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	root, err := psprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		// Already gone
		return nil
	}
	var errs []error
	for _, p := range descendants(ctx, root) {
		if err := p.KillWithContext(ctx); err != nil && !isProcessGone(err) {
			errs = append(errs, fmt.Errorf("kill %d: %w", p.Pid, err))
		}
	}
	if err := root.KillWithContext(ctx); err != nil && !isProcessGone(err) {
		errs = append(errs, fmt.Errorf("kill %d: %w", pid, err))
	}
	return errors.Join(errs...)
}

func descendants(ctx context.Context, p *psprocess.Process) []*psprocess.Process {
	children, err := p.ChildrenWithContext(ctx)
	if err != nil {
		return nil
	}
	var out []*psprocess.Process
	for _, c := range children {
		out = append(out, descendants(ctx, c)...)
		out = append(out, c)
	}
	return out
}

func isProcessGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, psprocess.ErrorProcessNotRunning) ||
		strings.Contains(err.Error(), "no such process")
}

// KillProcessesByName kills every running process whose executable name matches
// one of names, ignoring case and a trailing ".exe". The calling process is
// never killed. It returns the number of processes killed.
func KillProcessesByName(ctx context.Context, logger log.Logger, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[normalizeProcessName(n)] = true
	}

	procs, err := psprocess.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing processes: %w", err)
	}

	self := int32(os.Getpid())
	killed := 0
	var errs []error
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || !wanted[normalizeProcessName(name)] {
			continue
		}
		logger.Info("Killing stray host process", "name", name, "pid", p.Pid)
		if err := p.KillWithContext(ctx); err != nil && !isProcessGone(err) {
			errs = append(errs, fmt.Errorf("kill %s (%d): %w", name, p.Pid, err))
			continue
		}
		killed++
	}
	return killed, errors.Join(errs...)
}

func normalizeProcessName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".exe")
}
