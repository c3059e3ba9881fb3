package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type LogRotation struct {
	MaxSizeMB  int `yaml:"max_size_mb"`  // rotate after this many MB (default 10)
	MaxBackups int `yaml:"max_backups"`  // rotated files to keep (default 3)
	MaxAgeDays int `yaml:"max_age_days"` // days to keep rotated files (default 28)
}

type Settings struct {
	DataDir  string      `yaml:"data_dir"`  // overrides ~/.datasmith
	PageSize int         `yaml:"page_size"` // default packet page size
	LogLines int         `yaml:"log_lines"` // default SQL log tail length
	Verbose  bool        `yaml:"verbose"`   // chatty runner.log
	Rotation LogRotation `yaml:"rotation"`
}

// Load reads and parses a YAML settings file.
// If path is empty, it returns default settings.
func Load(path string) (*Settings, error) {
	if path == "" {
		return defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	s := defaults()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// LoadOrDefault tries to load from the given path. If path is empty, it
// attempts to auto-detect "datasmith.yaml" in the current directory.
// Returns default settings if no file is found at the auto-detect path.
func LoadOrDefault(path string) (*Settings, error) {
	if path != "" {
		return Load(path)
	}

	const defaultFile = "datasmith.yaml"
	if _, err := os.Stat(defaultFile); err != nil {
		// File doesn't exist — that's fine, use defaults.
		return defaults(), nil
	}

	return Load(defaultFile)
}

func defaults() *Settings {
	return &Settings{
		PageSize: 100,
		LogLines: 200,
		Rotation: LogRotation{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Dir resolves the application data directory: the settings value, then
// $DATASMITH_HOME, then ~/.datasmith. The directory and its logs/
// subdirectory are created if missing.
func (s *Settings) Dir() (string, error) {
	dir := ""
	if s != nil {
		dir = s.DataDir
	}
	if dir == "" {
		dir = os.Getenv("DATASMITH_HOME")
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		dir = filepath.Join(home, ".datasmith")
	}

	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return "", fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	return dir, nil
}

// LogsDir returns <data_dir>/logs.
func (s *Settings) LogsDir() (string, error) {
	dir, err := s.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// StorePath returns <data_dir>/config.db.
func (s *Settings) StorePath() (string, error) {
	dir, err := s.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.db"), nil
}
