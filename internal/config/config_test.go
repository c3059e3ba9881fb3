package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if s.PageSize != 100 {
		t.Errorf("PageSize = %d, want 100", s.PageSize)
	}
	if s.LogLines != 200 {
		t.Errorf("LogLines = %d, want 200", s.LogLines)
	}
	if s.Rotation.MaxSizeMB != 10 || s.Rotation.MaxBackups != 3 || s.Rotation.MaxAgeDays != 28 {
		t.Errorf("Rotation = %+v, want {10 3 28}", s.Rotation)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "datasmith.yaml")
	content := []byte("data_dir: /tmp/ds\npage_size: 25\nverbose: true\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if s.DataDir != "/tmp/ds" {
		t.Errorf("DataDir = %q, want %q", s.DataDir, "/tmp/ds")
	}
	if s.PageSize != 25 {
		t.Errorf("PageSize = %d, want 25", s.PageSize)
	}
	if !s.Verbose {
		t.Error("Verbose = false, want true")
	}
	// Unset keys keep defaults.
	if s.LogLines != 200 {
		t.Errorf("LogLines = %d, want 200", s.LogLines)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	s, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault(\"\") error: %v", err)
	}
	if s.PageSize != 100 {
		t.Errorf("PageSize = %d, want 100", s.PageSize)
	}
}

func TestDir(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		dataDir string
		env     string
		want    string
	}{
		{"settings_wins", filepath.Join(base, "a"), filepath.Join(base, "b"), filepath.Join(base, "a")},
		{"env_fallback", "", filepath.Join(base, "b"), filepath.Join(base, "b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATASMITH_HOME", tt.env)
			s := &Settings{DataDir: tt.dataDir}
			got, err := s.Dir()
			if err != nil {
				t.Fatalf("Dir() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Dir() = %q, want %q", got, tt.want)
			}
			if _, err := os.Stat(filepath.Join(got, "logs")); err != nil {
				t.Errorf("logs subdirectory not created: %v", err)
			}
		})
	}
}

func TestStorePath(t *testing.T) {
	dir := t.TempDir()
	s := &Settings{DataDir: dir}
	got, err := s.StorePath()
	if err != nil {
		t.Fatalf("StorePath() error: %v", err)
	}
	if want := filepath.Join(dir, "config.db"); got != want {
		t.Errorf("StorePath() = %q, want %q", got, want)
	}
}
