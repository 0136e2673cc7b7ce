package registry

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/hostrunner/types"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// Registry loads a suite declaration and turns it into runnable test records
type Registry struct {
	config Config
	suite  *types.Suite
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log            log.Logger
	SuiteFile      string
	DefaultTimeout time.Duration
	// SuiteFilter keeps only records tagged with one of these suites
	SuiteFilter []string
	// TestFilter keeps only records with one of these ids
	TestFilter []string
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.SuiteFile == "" {
		return nil, fmt.Errorf("suite file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config: cfg,
	}

	if err := r.loadSuite(cfg.SuiteFile); err != nil {
		return nil, fmt.Errorf("failed to load suite: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "suite", r.suite.Name, "len(records)", len(r.suite.Records))

	return r, nil
}

func (r *Registry) loadSuite(cfgPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	suiteConfig, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	absPath, err := filepath.Abs(cfgPath)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}
	baseDir := filepath.Dir(absPath)

	suite, err := r.buildSuite(suiteConfig, baseDir)
	if err != nil {
		return err
	}

	suite = r.applyFilters(suite)
	if err := suite.Validate(); err != nil {
		return fmt.Errorf("invalid suite: %w", err)
	}
	r.suite = suite
	return nil
}

// GetSuite returns the loaded suite
func (r *Registry) GetSuite() *types.Suite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.suite
}

// GetRecordsBySuite returns records carrying the given suite tag
func (r *Registry) GetRecordsBySuite(tag string) []types.TestRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []types.TestRecord
	for _, rec := range r.suite.Records {
		if rec.Suite == tag {
			records = append(records, rec)
		}
	}
	return records
}

// loadConfig loads a suite config from a file
func loadConfig(path string) (*types.SuiteConfig, error) {
	log.Debug("Reading suite config file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg types.SuiteConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

func (r *Registry) buildSuite(cfg *types.SuiteConfig, baseDir string) (*types.Suite, error) {
	host := cfg.Host.Clone()
	host.Executable = resolvePath(baseDir, host.Executable)
	host.WorkingDir = resolvePath(baseDir, host.WorkingDir)
	host.LogFile = resolvePath(baseDir, host.LogFile)
	host.CrashDumpFile = resolvePath(baseDir, host.CrashDumpFile)
	host.CrashLogFile = resolvePath(baseDir, host.CrashLogFile)
	for i, p := range host.BackupFiles {
		host.BackupFiles[i] = resolvePath(baseDir, p)
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}
	suite := &types.Suite{Name: name, Host: host}

	scriptDir := resolvePath(baseDir, cfg.Defaults.ScriptDir)
	if scriptDir == "" {
		scriptDir = baseDir
	}

	records, err := r.buildRecords(cfg.Tests, cfg.Defaults, scriptDir, "")
	if err != nil {
		return nil, err
	}
	suite.Records = append(suite.Records, records...)

	// map iteration order is random; keep suite groups in a stable order
	for _, tag := range slices.Sorted(maps.Keys(cfg.Suites)) {
		records, err := r.buildRecords(cfg.Suites[tag].Tests, cfg.Defaults, scriptDir, tag)
		if err != nil {
			return nil, err
		}
		suite.Records = append(suite.Records, records...)
	}

	return suite, nil
}

func (r *Registry) buildRecords(configs []types.TestConfig, defaults types.TestDefaults, scriptDir, tag string) ([]types.TestRecord, error) {
	var records []types.TestRecord

	for _, cfg := range configs {
		timeout := defaults.Timeout
		if timeout == 0 {
			timeout = r.config.DefaultTimeout
		}
		if cfg.Timeout != nil {
			timeout = *cfg.Timeout
		}

		parallelSafe := false
		if defaults.ParallelSafe != nil {
			parallelSafe = *defaults.ParallelSafe
		}
		if cfg.ParallelSafe != nil {
			parallelSafe = *cfg.ParallelSafe
		}

		id := cfg.ID
		if id == "" && cfg.Script != "" {
			base := filepath.Base(cfg.Script)
			id = base[:len(base)-len(filepath.Ext(base))]
		}

		record := types.TestRecord{
			ID:           id,
			Script:       resolvePath(scriptDir, cfg.Script),
			Timeout:      timeout,
			ExtraArgs:    slices.Clone(cfg.Args),
			Suite:        tag,
			Isolate:      cfg.Isolate,
			ParallelSafe: parallelSafe,
		}

		if cfg.Expect != nil {
			expect := *cfg.Expect
			if err := expect.Compile(); err != nil {
				return nil, fmt.Errorf("test %s: %w", id, err)
			}
			record.Expect = expect
		}

		records = append(records, record)
	}

	return records, nil
}

func (r *Registry) applyFilters(suite *types.Suite) *types.Suite {
	if len(r.config.SuiteFilter) == 0 && len(r.config.TestFilter) == 0 {
		return suite
	}
	return suite.Filter(func(rec types.TestRecord) bool {
		if len(r.config.SuiteFilter) > 0 && !slices.Contains(r.config.SuiteFilter, rec.Suite) {
			return false
		}
		if len(r.config.TestFilter) > 0 && !slices.Contains(r.config.TestFilter, rec.ID) {
			return false
		}
		return true
	})
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
