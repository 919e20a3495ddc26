package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for dupx.
type Config struct {
	BaseDir       string              `toml:"base_dir"`
	LogDir        string              `toml:"log_dir"`
	BackupDir     string              `toml:"backup_dir"`
	LedgerDir     string              `toml:"ledger_dir"`
	Database      DatabaseConfig      `toml:"database"`
	DecisionTable DecisionTableConfig `toml:"decision_table"`
	Filesystem    FilesystemConfig    `toml:"filesystem"`
}

// DatabaseConfig represents configuration for the run history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// DecisionTableConfig controls how decision tables are read.
type DecisionTableConfig struct {
	Delimiter string `toml:"delimiter"` // "auto" (default), "tab", or a single character
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Protect     []string `toml:"protect"`                // paths or base-name patterns never mutated
	ProtectFile string   `toml:"protect_file,omitempty"` // optional file with one pattern per line
}

// NewConfig creates a new Config with every directory placed under baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:   baseDir,
		LogDir:    filepath.Join(baseDir, "log"),
		BackupDir: filepath.Join(baseDir, "backups"),
		LedgerDir: filepath.Join(baseDir, "ledgers"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		DecisionTable: DecisionTableConfig{Delimiter: "auto"},
	}
}

// applyDefaults fills unset fields from NewConfig(c.BaseDir).
func (c *Config) applyDefaults() {
	d := NewConfig(c.BaseDir)
	if c.LogDir == "" {
		c.LogDir = d.LogDir
	}
	if c.BackupDir == "" {
		c.BackupDir = d.BackupDir
	}
	if c.LedgerDir == "" {
		c.LedgerDir = d.LedgerDir
	}
	if c.Database.Type == "" {
		c.Database = d.Database
	}
	if c.DecisionTable.Delimiter == "" {
		c.DecisionTable.Delimiter = d.DecisionTable.Delimiter
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config at path, falling back to NewConfig(baseDir) when the
// file does not exist. Fields missing from the file take their defaults.
func Load(path, baseDir string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewConfig(baseDir), nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = baseDir
	}
	cfg.applyDefaults()
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
