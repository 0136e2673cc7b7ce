// Package testhost implements a scriptable stand-in for a host process.
//
// Test binaries re-execute themselves with EnvVar set and call Main from
// TestMain. Each script handed to the fake host is a text file of directives
// executed in order after the host prints the script's identifier:
//
//	pass            print a PASS marker
//	fail            print a FAIL marker and exit with the test failure code
//	crash           write a crash log and exit with 139
//	exit=N          exit with code N
//	hang            sleep forever
//	ignore-interrupt
//	sleep=DURATION
//	print=TEXT      print TEXT on stdout
//	stderr=TEXT     print TEXT on stderr
//	log=TEXT        append TEXT to the host log
package testhost

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/hostrunner/types"
)

const (
	// EnvVar switches a test binary into fake host mode
	EnvVar = "HOSTRUNNER_TEST_HOST"
	// LogName is the main log the fake host writes inside its log directory
	LogName = "Editor.log"
	// CrashLogName is the crash log written by the crash directive
	CrashLogName = "error.log"
	// TestFailureCode is the exit code used by the fail directive
	TestFailureCode = 0xF
	// CrashCode is the exit code used by the crash directive
	CrashCode = 139
)

// Enabled reports whether the current process was launched as a fake host
func Enabled() bool {
	return os.Getenv(EnvVar) == "1"
}

// Descriptor returns a host descriptor that launches the current test binary as
// a fake host logging into logDir
func Descriptor(logDir string) (types.HostDescriptor, error) {
	exe, err := os.Executable()
	if err != nil {
		return types.HostDescriptor{}, err
	}
	return types.HostDescriptor{
		Executable:   exe,
		Env:          map[string]string{EnvVar: "1"},
		LogFile:      filepath.Join(logDir, LogName),
		CrashLogFile: filepath.Join(logDir, CrashLogName),
	}, nil
}

// WriteScript writes a directive script named <id>.py into dir and returns its path
func WriteScript(dir, id string, directives ...string) (string, error) {
	path := filepath.Join(dir, id+".py")
	return path, os.WriteFile(path, []byte(strings.Join(directives, "\n")+"\n"), 0644)
}

// Main runs the fake host and exits
func Main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var scripts []string
	for i, a := range args {
		if a == types.DefaultRunScriptArg && i+1 < len(args) {
			scripts = strings.Split(args[i+1], types.DefaultScriptSeparator)
		}
	}
	logDir := os.Getenv(types.LogDirEnvVar)
	if logDir != "" {
		_ = os.MkdirAll(logDir, 0755)
	}
	appendFile(logDir, LogName, "host started")

	for _, script := range scripts {
		id := strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
		fmt.Println(id)
		appendFile(logDir, LogName, "running "+id)

		data, err := os.ReadFile(script)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot read %s: %v\n", script, err)
			return 1
		}
		for _, line := range strings.Split(string(data), "\n") {
			if rc, exit := directive(strings.TrimSpace(line), id, logDir); exit {
				return rc
			}
		}
	}
	appendFile(logDir, LogName, "host exiting")
	return 0
}

func directive(line, id, logDir string) (int, bool) {
	name, arg, _ := strings.Cut(line, "=")
	switch name {
	case "":
	case "pass":
		fmt.Println("PASS")
	case "fail":
		fmt.Println("FAIL")
		return TestFailureCode, true
	case "crash":
		appendFile(logDir, CrashLogName, "fatal error in "+id)
		return CrashCode, true
	case "exit":
		rc, _ := strconv.Atoi(arg)
		return rc, true
	case "hang":
		time.Sleep(time.Hour)
	case "ignore-interrupt":
		signal.Ignore(os.Interrupt)
	case "sleep":
		d, _ := time.ParseDuration(arg)
		time.Sleep(d)
	case "print":
		fmt.Println(arg)
	case "stderr":
		fmt.Fprintln(os.Stderr, arg)
	case "log":
		appendFile(logDir, LogName, arg)
	}
	return 0, false
}

func appendFile(dir, name, line string) {
	if dir == "" {
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}
