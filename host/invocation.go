package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/ethereum-optimism/infra/hostrunner/types"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
)

const (
	// DefaultGracePeriod is how long a host gets to stop after an interrupt before it is killed
	DefaultGracePeriod = 5 * time.Second
	// DefaultCancelGrace is how long an in-flight host may keep running after cancellation
	DefaultCancelGrace = 10 * time.Second
)

// LaunchSpec describes one host process to start
type LaunchSpec struct {
	Host types.HostDescriptor
	// Args follow the host's base arguments
	Args []string
	// OutputFile, if set, receives the full merged output
	OutputFile string
	// GracePeriod between interrupt and kill on timeout
	GracePeriod time.Duration
	// CancelGrace bounds how long Wait lets the host run after ctx is cancelled
	CancelGrace time.Duration
	// TailBytes bounds the in-memory output; 0 uses the default
	TailBytes int
}

// CommandLine returns the full command line, quoted for a POSIX shell
func (s LaunchSpec) CommandLine() string {
	parts := []string{shellescape.Quote(s.Host.Executable)}
	for _, arg := range s.argv() {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}

func (s LaunchSpec) argv() []string {
	return append(s.Host.BaseArgs(), s.Args...)
}

// Launcher starts host processes
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// Process is a running or finished host
type Process interface {
	// Wait blocks until the host exits, the timeout elapses or ctx is done and
	// returns the host return code, TimeoutReturnCode or CancelledReturnCode.
	// A timeout of zero waits without a budget.
	Wait(ctx context.Context, timeout time.Duration) int
	// Output returns merged stdout and stderr captured so far
	Output() string
	IsAlive() bool
	Kill() error
	PID() int
	State() State
	// Duration is the wall-clock time from launch until Wait returned
	Duration() time.Duration
}

// ExecLauncher launches hosts as operating system processes
type ExecLauncher struct {
	log log.Logger
}

var _ Launcher = (*ExecLauncher)(nil)

// NewExecLauncher creates a launcher that uses os/exec
func NewExecLauncher(logger log.Logger) *ExecLauncher {
	if logger == nil {
		logger = log.Root()
	}
	return &ExecLauncher{log: logger.New("component", "launcher")}
}

// Launch starts the host and returns without waiting for it
func (l *ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	if spec.Host.Executable == "" {
		return nil, errors.New("host executable cannot be empty")
	}
	if spec.GracePeriod <= 0 {
		spec.GracePeriod = DefaultGracePeriod
	}
	if spec.CancelGrace <= 0 {
		spec.CancelGrace = DefaultCancelGrace
	}

	cmd := exec.Command(spec.Host.Executable, spec.argv()...)
	cmd.Dir = spec.Host.WorkingDir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, spec.Host.Environ(os.Environ()))
	// Descendants may hold the output pipe open after the host exits
	cmd.WaitDelay = spec.GracePeriod

	p := &process{
		log:         l.log,
		cmd:         cmd,
		out:         newTailBuffer(spec.TailBytes),
		grace:       spec.GracePeriod,
		cancelGrace: spec.CancelGrace,
		state:       StateNew,
		done:        make(chan struct{}),
	}

	var w io.Writer = p.out
	if spec.OutputFile != "" {
		f, err := os.Create(spec.OutputFile)
		if err != nil {
			return nil, fmt.Errorf("creating output file: %w", err)
		}
		p.file = f
		w = io.MultiWriter(f, p.out)
	}
	// The same writer for both streams keeps their relative order
	cmd.Stdout = w
	cmd.Stderr = w

	l.log.Debug("Launching host", "command", spec.CommandLine(), "dir", cmd.Dir)
	if err := cmd.Start(); err != nil {
		p.closeFile()
		return nil, fmt.Errorf("starting host %s: %w", spec.Host.Executable, err)
	}
	p.started = time.Now()
	p.state = StateRunning
	l.log.Debug("Host started", "pid", cmd.Process.Pid)

	go func() {
		p.waitErr = cmd.Wait()
		p.exited = time.Now()
		close(p.done)
	}()

	return p, nil
}

type process struct {
	log         log.Logger
	cmd         *exec.Cmd
	out         *tailBuffer
	file        *os.File
	grace       time.Duration
	cancelGrace time.Duration

	started time.Time
	exited  time.Time
	done    chan struct{}
	waitErr error

	mu       sync.Mutex
	state    State
	rc       int
	duration time.Duration
	waited   bool
}

var _ Process = (*process)(nil)

func (p *process) Wait(ctx context.Context, timeout time.Duration) int {
	p.mu.Lock()
	if p.waited {
		defer p.mu.Unlock()
		return p.rc
	}
	p.mu.Unlock()

	var deadline <-chan time.Time
	if timeout > 0 {
		remaining := timeout - time.Since(p.started)
		if remaining < 0 {
			remaining = 0
		}
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		deadline = timer.C
	}

	var final State
	var rc int
	select {
	case <-p.done:
		rc, final = p.exitResult()
		if timeout > 0 && p.exited.Sub(p.started) >= timeout {
			// Exiting on the boundary still counts as an overrun
			rc, final = TimeoutReturnCode, StateTimedOut
		}
	case <-deadline:
		p.log.Warn("Host exceeded its timeout, stopping", "pid", p.PID(), "timeout", timeout)
		p.terminate()
		rc, final = TimeoutReturnCode, StateTimedOut
	case <-ctx.Done():
		p.log.Info("Invocation cancelled, waiting for host", "pid", p.PID(), "grace", p.cancelGrace)
		select {
		case <-p.done:
		case <-time.After(p.cancelGrace):
			p.terminate()
		}
		rc, final = CancelledReturnCode, StateCancelled
	}

	p.closeFile()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.rc = rc
	p.state = final
	p.duration = time.Since(p.started)
	p.waited = true
	return rc
}

// exitResult reads the return code of an exited process
func (p *process) exitResult() (int, State) {
	var exitErr *exec.ExitError
	if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) && p.cmd.ProcessState == nil {
		p.log.Error("Waiting for host failed", "err", p.waitErr)
		return -1, StateCrashed
	}
	rc, signaled := exitCode(p.cmd.ProcessState)
	if signaled {
		return rc, StateCrashed
	}
	return rc, StateExited
}

// terminate interrupts the host, then kills it and its descendants if it is
// still alive after the grace period. It returns once the host has exited.
func (p *process) terminate() {
	if err := interrupt(p.cmd.Process); err != nil {
		p.log.Debug("Interrupt failed", "pid", p.PID(), "err", err)
	}
	select {
	case <-p.done:
		return
	case <-time.After(p.grace):
	}
	p.log.Warn("Host did not stop after interrupt, killing process tree", "pid", p.PID())
	if err := killTree(context.Background(), p.PID()); err != nil {
		p.log.Warn("Failed to kill process tree", "pid", p.PID(), "err", err)
	}
	select {
	case <-p.done:
	case <-time.After(p.grace):
		p.log.Error("Host still running after kill", "pid", p.PID())
	}
}

func (p *process) closeFile() {
	if p.file == nil {
		return
	}
	if err := p.file.Close(); err != nil {
		p.log.Debug("Closing output file", "err", err)
	}
	p.file = nil
}

func (p *process) Output() string {
	return p.out.String()
}

func (p *process) IsAlive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *process) Kill() error {
	if !p.IsAlive() {
		return nil
	}
	return killTree(context.Background(), p.PID())
}

func (p *process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.waited && !p.IsAlive() {
		_, st := p.exitResult()
		return st
	}
	return p.state
}

func (p *process) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waited {
		return p.duration
	}
	return time.Since(p.started)
}
