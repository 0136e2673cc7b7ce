package types

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostDescriptor_Validate(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "Editor")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0755))

	tests := []struct {
		name    string
		host    HostDescriptor
		wantErr string
	}{
		{name: "valid", host: HostDescriptor{Executable: exe, WorkingDir: dir}},
		{name: "missing executable field", host: HostDescriptor{}, wantErr: "host executable is required"},
		{name: "executable does not exist", host: HostDescriptor{Executable: filepath.Join(dir, "nope")}, wantErr: "no such file"},
		{name: "executable is a directory", host: HostDescriptor{Executable: dir}, wantErr: "is a directory"},
		{name: "working dir missing", host: HostDescriptor{Executable: exe, WorkingDir: filepath.Join(dir, "nope")}, wantErr: "working directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.host.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHostDescriptor_ForSlot(t *testing.T) {
	host := HostDescriptor{
		Executable:    "/opt/editor/Editor",
		Args:          []string{"--rhi=null"},
		LogFile:       "/proj/user/log/Editor.log",
		CrashDumpFile: "/proj/user/log/error.dmp",
		CrashLogFile:  "/proj/user/log/error.log",
		Env:           map[string]string{"A": "1"},
	}

	same := host.ForSlot(0, "/tmp/slots")
	assert.Equal(t, host.LogFile, same.LogFile, "slot 0 keeps the host's own paths")

	slot := host.ForSlot(2, "/tmp/slots")
	assert.Equal(t, filepath.Join("/tmp/slots", "slot-2", "Editor.log"), slot.LogFile)
	assert.Equal(t, filepath.Join("/tmp/slots", "slot-2", "error.dmp"), slot.CrashDumpFile)
	assert.Equal(t, filepath.Join("/tmp/slots", "slot-2", "error.log"), slot.CrashLogFile)
	assert.NotEqual(t, host.ForSlot(1, "/tmp/slots").LogDir(), slot.LogDir())

	slot.Env["A"] = "2"
	slot.Args[0] = "changed"
	assert.Equal(t, "1", host.Env["A"], "slot copy must not alias the original env")
	assert.Equal(t, "--rhi=null", host.Args[0], "slot copy must not alias the original args")
}

func TestHostDescriptor_BaseArgsAndEnviron(t *testing.T) {
	host := HostDescriptor{
		Args:       []string{"--rhi=null"},
		Project:    "AutomatedTesting",
		ProjectArg: "--project-path",
		LogFile:    "/proj/user/log/Editor.log",
		LogDirArgs: []string{"--log-dir={log_dir}"},
		Env:        map[string]string{"B": "2", "A": "1"},
	}

	assert.Equal(t, []string{"--rhi=null", "--project-path", "AutomatedTesting", "--log-dir=/proj/user/log"}, host.BaseArgs())
	assert.Equal(t, []string{"PATH=/bin", "A=1", "B=2", LogDirEnvVar + "=/proj/user/log"}, host.Environ([]string{"PATH=/bin"}))
}

func TestHostDescriptor_ScriptArgs(t *testing.T) {
	host := HostDescriptor{}
	assert.Nil(t, host.ScriptArgs(nil))
	assert.Equal(t, []string{DefaultRunScriptArg, "/a.py;/b.py"}, host.ScriptArgs([]string{"/a.py", "/b.py"}))

	host.RunScriptArg = "--exec"
	host.ScriptSeparator = ","
	assert.Equal(t, []string{"--exec", "/a.py,/b.py"}, host.ScriptArgs([]string{"/a.py", "/b.py"}))
}
