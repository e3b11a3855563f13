package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Backend selects the persistence implementation.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Config carries the tunable settings of the ledger. Zero or missing
// fields take defaults; see DefaultConfig.
type Config struct {
	// DataDir holds the per-kind CSV files, or the SQLite database file
	// when Backend is "sqlite".
	DataDir string `yaml:"data_dir"`

	// Backend is "csv" (flat files, the canonical layout) or "sqlite".
	Backend string `yaml:"backend"`

	// LoanPeriodDays sets DueDate = IssueDate + LoanPeriodDays.
	LoanPeriodDays int `yaml:"loan_period_days"`

	// BcryptCost is the work factor for password hashing.
	BcryptCost int `yaml:"bcrypt_cost"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() Config {
	return Config{
		DataDir:        "data",
		Backend:        BackendCSV,
		LoanPeriodDays: 14,
		BcryptCost:     10,
	}
}

// LoadConfig reads a YAML config file, filling unset fields with defaults.
// A missing file is not an error: the defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: read config %s: %v", ErrIO, path, err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.Backend != BackendCSV && c.Backend != BackendSQLite {
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendCSV, BackendSQLite)
	}
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.LoanPeriodDays <= 0 {
		return fmt.Errorf("loan_period_days must be positive, got %d", c.LoanPeriodDays)
	}
	return nil
}

// OpenStore builds the configured Store. The returned closer is non-nil
// for backends that hold resources.
func (c Config) OpenStore() (Store, func() error, error) {
	switch c.Backend {
	case BackendSQLite:
		s, err := NewSQLiteStore(filepath.Join(c.DataDir, "library.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := NewCSVStore(c.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
}
