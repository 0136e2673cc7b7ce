package hostlogs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/hostrunner/types"
	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T, cfg Config) (*Collector, types.HostDescriptor) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "log")
	host := types.HostDescriptor{
		LogFile:       filepath.Join(dir, "Editor.log"),
		CrashDumpFile: filepath.Join(dir, "error.dmp"),
		CrashLogFile:  filepath.Join(dir, "error.log"),
	}
	c := NewCollector(testlog.Logger(t, log.LevelDebug), host, cfg)
	require.NoError(t, c.Prepare())
	return c, host
}

func TestCollector_CycleRenamesWithModTime(t *testing.T) {
	c, host := newTestCollector(t, Config{})

	mtime := time.Date(2024, 3, 5, 10, 11, 12, 0, time.Local)
	require.NoError(t, os.WriteFile(host.LogFile, []byte("first run"), 0644))
	require.NoError(t, os.Chtimes(host.LogFile, mtime, mtime))

	require.NoError(t, c.Cycle())

	_, err := os.Stat(host.LogFile)
	assert.True(t, os.IsNotExist(err), "original log must be moved away")

	cycled := filepath.Join(host.LogDir(), "Editor.20240305-101112.log")
	data, err := os.ReadFile(cycled)
	require.NoError(t, err)
	assert.Equal(t, "first run", string(data), "content is never modified")

	// A second file with the same mtime gets a numeric suffix
	require.NoError(t, os.WriteFile(host.LogFile, []byte("second run"), 0644))
	require.NoError(t, os.Chtimes(host.LogFile, mtime, mtime))
	require.NoError(t, c.Cycle())

	data, err = os.ReadFile(filepath.Join(host.LogDir(), "Editor.20240305-101112.1.log"))
	require.NoError(t, err)
	assert.Equal(t, "second run", string(data))
}

func TestCollector_CycleSkipsMissingFiles(t *testing.T) {
	c, _ := newTestCollector(t, Config{})
	assert.NoError(t, c.Cycle())
}

func TestCollector_FetchCrash(t *testing.T) {
	t.Run("crash log and dump", func(t *testing.T) {
		c, host := newTestCollector(t, Config{CrashWait: time.Second})
		require.NoError(t, os.WriteFile(host.CrashLogFile, []byte("segfault in physics\n"), 0644))
		require.NoError(t, os.WriteFile(host.CrashDumpFile, []byte("0123456789"), 0644))

		report := c.FetchCrash(context.Background())
		assert.Contains(t, report, "segfault in physics")
		assert.Contains(t, report, "(10 bytes)")
		assert.ElementsMatch(t, []string{host.CrashLogFile, host.CrashDumpFile}, c.CrashArtifacts())
	})

	t.Run("artifact appears while waiting", func(t *testing.T) {
		c, host := newTestCollector(t, Config{CrashWait: 5 * time.Second})
		time.AfterFunc(300*time.Millisecond, func() {
			_ = os.WriteFile(host.CrashLogFile, []byte("late crash"), 0644)
		})
		assert.Equal(t, "late crash", c.FetchCrash(context.Background()))
	})

	t.Run("stand-in when nothing appears", func(t *testing.T) {
		c, _ := newTestCollector(t, Config{CrashWait: 100 * time.Millisecond})
		start := time.Now()
		report := c.FetchCrash(context.Background())
		assert.True(t, strings.HasPrefix(report, "crash report unavailable"))
		assert.Less(t, time.Since(start), 3*time.Second)
	})

	t.Run("no crash paths configured", func(t *testing.T) {
		c := NewCollector(log.NewLogger(log.DiscardHandler()), types.HostDescriptor{}, Config{})
		assert.NotEmpty(t, c.FetchCrash(context.Background()))
	})

	t.Run("cancelled context stops polling", func(t *testing.T) {
		c, _ := newTestCollector(t, Config{CrashWait: time.Minute})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Contains(t, c.FetchCrash(ctx), "crash report unavailable")
	})
}

func TestCollector_FetchLogExcerpt(t *testing.T) {
	t.Run("full log", func(t *testing.T) {
		c, host := newTestCollector(t, Config{})
		require.NoError(t, os.WriteFile(host.LogFile, []byte("line1\nline2\n"), 0644))
		assert.Equal(t, "line1\nline2\n", c.FetchLogExcerpt(context.Background()))
	})

	t.Run("tail of a large log", func(t *testing.T) {
		c, host := newTestCollector(t, Config{ExcerptBytes: 4})
		require.NoError(t, os.WriteFile(host.LogFile, []byte("0123456789"), 0644))
		excerpt := c.FetchLogExcerpt(context.Background())
		assert.True(t, strings.HasSuffix(excerpt, "6789"))
		assert.Contains(t, excerpt, "6 bytes truncated")
	})

	t.Run("stand-in when missing", func(t *testing.T) {
		c, _ := newTestCollector(t, Config{})
		c.sleep = func(context.Context, time.Duration) error { return nil }
		assert.Contains(t, c.FetchLogExcerpt(context.Background()), "host log unavailable")
	})
}
