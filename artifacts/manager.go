// Package artifacts owns the per-run output directory. It hands out stable
// per-test paths, saves captured files without ever overwriting an earlier
// artifact, and feeds finished results to the configured sinks.
package artifacts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/hostrunner/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	backupDirName      = ".backup"
	runIDTimeLayout    = "20060102-150405"
)

// NewRunID returns a run identifier made of the timestamp and a short unique suffix
func NewRunID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.Format(runIDTimeLayout), uuid.New().String()[:8])
}

// Manager handles the artifact directory of one run
type Manager struct {
	baseDir string
	runID   string
	root    string
	log     log.Logger

	mu       sync.Mutex
	created  bool
	rotation map[string]int
	// owners maps a saved result file to the result field naming it, so
	// rotation keeps earlier results pointing at their own content
	owners  map[string]*string
	backups []backup
	sinks   []ResultSink
}

type backup struct {
	original string
	copy     string
	existed  bool
}

// NewManager creates a manager rooted at baseDir/testrun-<runID>.
// Nothing is created on disk until a path is requested.
func NewManager(baseDir, runID string, logger log.Logger) (*Manager, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}
	if logger == nil {
		logger = log.Root()
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving artifact directory: %w", err)
	}
	return &Manager{
		baseDir:  abs,
		runID:    runID,
		root:     filepath.Join(abs, RunDirectoryPrefix+runID),
		log:      logger.New("component", "artifacts", "run_id", runID),
		rotation: make(map[string]int),
		owners:   make(map[string]*string),
	}, nil
}

// RunID returns the run identifier
func (m *Manager) RunID() string {
	return m.runID
}

// GetSavePath returns the artifact root, creating it on first use
func (m *Manager) GetSavePath() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureRoot()
}

func (m *Manager) ensureRoot() (string, error) {
	if m.created {
		return m.root, nil
	}
	if err := os.MkdirAll(m.root, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", m.root, err)
	}
	m.created = true
	return m.root, nil
}

// TestPath returns the stable directory reserved for a test's own files
func (m *Manager) TestPath(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	root, err := m.ensureRoot()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, safeFilename(id))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return dir, nil
}

// Save copies src into the artifact root, or moves it when move is set. An
// existing artifact with the same basename is rotated to the next free numeric
// suffix first. It returns the saved path.
func (m *Manager) Save(src string, move bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dst, err := m.prepareDestination(filepath.Base(src))
	if err != nil {
		return "", err
	}
	if move {
		if err := os.Rename(src, dst); err == nil {
			return dst, nil
		}
		// Rename fails across filesystems
		if err := copyFile(src, dst); err != nil {
			return "", err
		}
		if err := os.Remove(src); err != nil {
			m.log.Warn("Failed to remove moved artifact source", "path", src, "err", err)
		}
		return dst, nil
	}
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// SaveContent writes data as an artifact named name, rotating any existing one
func (m *Manager) SaveContent(name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeContent(name, data)
}

func (m *Manager) writeContent(name string, data []byte) (string, error) {
	dst, err := m.prepareDestination(safeFilename(name))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", fmt.Errorf("writing artifact %s: %w", name, err)
	}
	return dst, nil
}

// prepareDestination returns root/name after moving any existing file at that
// path to root/name.<n>. Suffixes only ever increase.
func (m *Manager) prepareDestination(name string) (string, error) {
	root, err := m.ensureRoot()
	if err != nil {
		return "", err
	}
	dst := filepath.Join(root, name)
	if _, err := os.Lstat(dst); errors.Is(err, os.ErrNotExist) {
		return dst, nil
	} else if err != nil {
		return "", err
	}

	n := m.rotation[name]
	for {
		n++
		rotated := dst + "." + strconv.Itoa(n)
		if _, err := os.Lstat(rotated); errors.Is(err, os.ErrNotExist) {
			if err := os.Rename(dst, rotated); err != nil {
				return "", fmt.Errorf("rotating artifact %s: %w", name, err)
			}
			m.rotation[name] = n
			if owner, ok := m.owners[dst]; ok {
				*owner = rotated
				delete(m.owners, dst)
				m.owners[rotated] = owner
			}
			m.log.Debug("Rotated artifact", "from", dst, "to", rotated)
			return dst, nil
		}
	}
}

// Clear deletes every artifact whose name starts with prefix
func (m *Manager) Clear(prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.created {
		return nil
	}
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return fmt.Errorf("reading artifact directory: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if e.Name() == backupDirName || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		path := filepath.Join(m.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
		}
		delete(m.rotation, e.Name())
		delete(m.owners, path)
	}
	return errors.Join(errs...)
}

// Backup copies files the run may modify so Restore can put them back
func (m *Manager) Backup(paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(paths) == 0 {
		return nil
	}
	root, err := m.ensureRoot()
	if err != nil {
		return err
	}
	dir := filepath.Join(root, backupDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	for i, p := range paths {
		b := backup{original: p, copy: filepath.Join(dir, fmt.Sprintf("%d-%s", len(m.backups)+i, filepath.Base(p)))}
		if _, err := os.Stat(p); err == nil {
			if err := copyFile(p, b.copy); err != nil {
				return fmt.Errorf("backing up %s: %w", p, err)
			}
			b.existed = true
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("backing up %s: %w", p, err)
		}
		m.backups = append(m.backups, b)
	}
	return nil
}

// Restore puts backed up files back. Files that did not exist at backup time
// are removed.
func (m *Manager) Restore() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.backups) - 1; i >= 0; i-- {
		b := m.backups[i]
		if !b.existed {
			if err := os.Remove(b.original); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if err := copyFile(b.copy, b.original); err != nil {
			errs = append(errs, fmt.Errorf("restoring %s: %w", b.original, err))
		}
	}
	m.backups = nil
	return errors.Join(errs...)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	s = strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
		"...", "",
	).Replace(s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// SaveResult writes the standard per-test artifacts of a result and records
// their paths on it. Empty sections are skipped. When a later result of the
// same record rotates these files, the paths recorded here follow them.
func (m *Manager) SaveResult(r *types.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := safeFilename(r.Record.ID)
	var errs []error
	save := func(suffix, content string, dst *string) {
		if content == "" {
			return
		}
		path, err := m.writeContent(id+suffix, []byte(content))
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = path
		m.owners[path] = dst
	}
	save(".stdout.txt", r.Output, &r.Artifacts.Stdout)
	save(".hostlog.txt", r.HostLog, &r.Artifacts.HostLog)
	save(".crash.txt", r.CrashReport, &r.Artifacts.Crash)
	return errors.Join(errs...)
}
