// Package hostlogs stabilises the host's on-disk log and crash artifacts so
// one invocation cannot clobber the evidence left by another.
package hostlogs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/hostrunner/types"
	"github.com/ethereum/go-ethereum/log"
)

const (
	// DefaultCrashWait bounds how long FetchCrash waits for crash artifacts
	DefaultCrashWait = 5 * time.Second
	// DefaultExcerptBytes is the size of the host log tail attached to results
	DefaultExcerptBytes = 64 * 1024

	crashPollInterval = 250 * time.Millisecond
	readRetries       = 3
	readRetryDelay    = 200 * time.Millisecond
	timestampLayout   = "20060102-150405"
)

// Config controls collector timing and size limits
type Config struct {
	CrashWait    time.Duration
	ExcerptBytes int
}

// Collector cycles, reads and reports the log and crash files of one host
// descriptor. It must only be used while no host is writing to those files.
type Collector struct {
	host  types.HostDescriptor
	cfg   Config
	log   log.Logger
	sleep func(context.Context, time.Duration) error
}

// NewCollector returns a collector bound to host's file paths
func NewCollector(logger log.Logger, host types.HostDescriptor, cfg Config) *Collector {
	if cfg.CrashWait < 0 {
		cfg.CrashWait = 0
	}
	if cfg.ExcerptBytes <= 0 {
		cfg.ExcerptBytes = DefaultExcerptBytes
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Collector{
		host:  host,
		cfg:   cfg,
		log:   logger.New("component", "hostlogs", "log_dir", host.LogDir()),
		sleep: sleepCtx,
	}
}

// Prepare creates the directories the host writes into
func (c *Collector) Prepare() error {
	for _, p := range c.paths() {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
	}
	return nil
}

// Cycle renames existing log and crash files to timestamped names in place.
// Missing files are skipped.
func (c *Collector) Cycle() error {
	var errs []error
	for _, p := range c.paths() {
		info, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		target := cycledName(p, info.ModTime())
		if err := os.Rename(p, target); err != nil {
			errs = append(errs, fmt.Errorf("cycling %s: %w", p, err))
			continue
		}
		c.log.Debug("Cycled host artifact", "from", p, "to", target)
	}
	return errors.Join(errs...)
}

// cycledName returns <name>.<mtime>[.<n>]<ext> next to path, picking the first
// name that does not exist yet
func cycledName(path string, mtime time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext) + "." + mtime.Format(timestampLayout)
	candidate := base + ext
	for n := 1; ; n++ {
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%s.%d%s", base, n, ext)
	}
}

// FetchCrash waits up to the crash wait budget for a crash log or dump to
// appear and returns a report. It never returns an empty string.
func (c *Collector) FetchCrash(ctx context.Context) string {
	if c.host.CrashLogFile == "" && c.host.CrashDumpFile == "" {
		return "no crash artifacts configured for this host"
	}

	deadline := time.Now().Add(c.cfg.CrashWait)
	for {
		if report, ok := c.readCrash(); ok {
			return report
		}
		if !time.Now().Before(deadline) {
			break
		}
		if err := c.sleep(ctx, crashPollInterval); err != nil {
			break
		}
	}
	return fmt.Sprintf("crash report unavailable: no crash log or dump appeared within %s (log: %q, dump: %q)",
		c.cfg.CrashWait, c.host.CrashLogFile, c.host.CrashDumpFile)
}

func (c *Collector) readCrash() (string, bool) {
	var parts []string
	if c.host.CrashLogFile != "" {
		data, err := os.ReadFile(c.host.CrashLogFile)
		if text := strings.TrimRight(string(data), "\n"); err == nil && text != "" {
			// An empty file means the host is still writing it
			parts = append(parts, text)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			parts = append(parts, fmt.Sprintf("error reading crash log %s: %v", c.host.CrashLogFile, err))
		}
	}
	if c.host.CrashDumpFile != "" {
		if info, err := os.Stat(c.host.CrashDumpFile); err == nil {
			parts = append(parts, fmt.Sprintf("crash dump: %s (%d bytes)", c.host.CrashDumpFile, info.Size()))
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

// FetchLogExcerpt returns the tail of the host's main log, retrying briefly
// while the host may still be flushing. On failure it returns a stand-in.
func (c *Collector) FetchLogExcerpt(ctx context.Context) string {
	if c.host.LogFile == "" {
		return ""
	}
	var lastErr error
	for attempt := 0; attempt < readRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, readRetryDelay); err != nil {
				lastErr = err
				break
			}
		}
		excerpt, err := tail(c.host.LogFile, c.cfg.ExcerptBytes)
		if err == nil {
			return excerpt
		}
		lastErr = err
	}
	c.log.Debug("Host log unavailable", "path", c.host.LogFile, "err", lastErr)
	return fmt.Sprintf("host log unavailable: %v", lastErr)
}

// CrashArtifacts returns the crash files that currently exist
func (c *Collector) CrashArtifacts() []string {
	var out []string
	for _, p := range []string{c.host.CrashLogFile, c.host.CrashDumpFile} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func (c *Collector) paths() []string {
	var out []string
	for _, p := range []string{c.host.LogFile, c.host.CrashDumpFile, c.host.CrashLogFile} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func tail(path string, maxBytes int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	var header string
	if info.Size() > int64(maxBytes) {
		if _, err := f.Seek(-int64(maxBytes), io.SeekEnd); err != nil {
			return "", err
		}
		header = fmt.Sprintf("[... %d bytes truncated ...]\n", info.Size()-int64(maxBytes))
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return header + string(data), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
