// Package types contains shared types used across the host test runner
package types

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// DefaultRunScriptArg is the argument that tells the host to execute scripts
	DefaultRunScriptArg = "--runpythontest"
	// DefaultScriptSeparator joins script paths when several records share one host
	DefaultScriptSeparator = ";"
	// LogDirPlaceholder is substituted with the invocation's log directory in LogDirArgs
	LogDirPlaceholder = "{log_dir}"
	// LogDirEnvVar carries the invocation's log directory to the host
	LogDirEnvVar = "HOSTRUNNER_LOG_DIR"
)

// HostDescriptor describes how to spawn the host process.
// It is treated as immutable once a Runner has been constructed with it.
type HostDescriptor struct {
	Executable      string            `yaml:"executable"`
	WorkingDir      string            `yaml:"working_dir,omitempty"`
	Args            []string          `yaml:"args,omitempty"`
	Env             map[string]string `yaml:"env,omitempty"`
	LogFile         string            `yaml:"log_file,omitempty"`
	CrashDumpFile   string            `yaml:"crash_dump_file,omitempty"`
	CrashLogFile    string            `yaml:"crash_log_file,omitempty"`
	Project         string            `yaml:"project,omitempty"`
	ProjectArg      string            `yaml:"project_arg,omitempty"`
	RunScriptArg    string            `yaml:"run_script_arg,omitempty"`
	ScriptSeparator string            `yaml:"script_separator,omitempty"`
	LogDirArgs      []string          `yaml:"log_dir_args,omitempty"`
	BackupFiles     []string          `yaml:"backup_files,omitempty"`
}

// Validate checks that the descriptor can be used to launch a host
func (h HostDescriptor) Validate() error {
	if h.Executable == "" {
		return errors.New("host executable is required")
	}
	info, err := os.Stat(h.Executable)
	if err != nil {
		return fmt.Errorf("host executable %s: %w", h.Executable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("host executable %s is a directory", h.Executable)
	}
	if h.WorkingDir != "" {
		info, err := os.Stat(h.WorkingDir)
		if err != nil {
			return fmt.Errorf("host working directory %s: %w", h.WorkingDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("host working directory %s is not a directory", h.WorkingDir)
		}
	}
	return nil
}

// LogDir returns the directory holding the host's main log
func (h HostDescriptor) LogDir() string {
	if h.LogFile == "" {
		return ""
	}
	return filepath.Dir(h.LogFile)
}

// ForSlot returns a copy of the descriptor whose log, crash dump and crash log
// paths live under root/slot-<n>. Slot 0 is the descriptor itself.
func (h HostDescriptor) ForSlot(slot int, root string) HostDescriptor {
	out := h.Clone()
	if slot == 0 || root == "" {
		return out
	}
	dir := filepath.Join(root, fmt.Sprintf("slot-%d", slot))
	rebase := func(p string) string {
		if p == "" {
			return ""
		}
		return filepath.Join(dir, filepath.Base(p))
	}
	out.LogFile = rebase(h.LogFile)
	out.CrashDumpFile = rebase(h.CrashDumpFile)
	out.CrashLogFile = rebase(h.CrashLogFile)
	return out
}

// Clone returns a deep copy of the descriptor
func (h HostDescriptor) Clone() HostDescriptor {
	out := h
	out.Args = slices.Clone(h.Args)
	out.LogDirArgs = slices.Clone(h.LogDirArgs)
	out.BackupFiles = slices.Clone(h.BackupFiles)
	out.Env = maps.Clone(h.Env)
	return out
}

// BaseArgs returns the arguments common to every invocation of this host:
// the configured args, the project argument and the log directory arguments.
func (h HostDescriptor) BaseArgs() []string {
	args := slices.Clone(h.Args)
	if h.Project != "" && h.ProjectArg != "" {
		args = append(args, h.ProjectArg, h.Project)
	}
	if logDir := h.LogDir(); logDir != "" {
		for _, a := range h.LogDirArgs {
			args = append(args, strings.ReplaceAll(a, LogDirPlaceholder, logDir))
		}
	}
	return args
}

// Environ returns the host's environment layered on top of base
func (h HostDescriptor) Environ(base []string) []string {
	env := slices.Clone(base)
	for _, k := range slices.Sorted(maps.Keys(h.Env)) {
		env = append(env, k+"="+h.Env[k])
	}
	if logDir := h.LogDir(); logDir != "" {
		env = append(env, LogDirEnvVar+"="+logDir)
	}
	return env
}

// ScriptArgs returns the arguments that make the host run the given scripts in order
func (h HostDescriptor) ScriptArgs(scripts []string) []string {
	if len(scripts) == 0 {
		return nil
	}
	flag := h.RunScriptArg
	if flag == "" {
		flag = DefaultRunScriptArg
	}
	sep := h.ScriptSeparator
	if sep == "" {
		sep = DefaultScriptSeparator
	}
	return []string{flag, strings.Join(scripts, sep)}
}
