package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg := NewConfig("/data/dlst")

	if cfg.LogDir != filepath.Join("/data/dlst", "log") {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
	if cfg.Keyring.Path != filepath.Join("/data/dlst", "keyring.db") {
		t.Errorf("Keyring.Path = %q", cfg.Keyring.Path)
	}
	if cfg.Extract.Jobs != 1 {
		t.Errorf("Extract.Jobs = %d, want 1", cfg.Extract.Jobs)
	}
}

func TestManager_ReadWriteRoundTrip(t *testing.T) {
	t.Parallel()
	cfg := NewConfig("/data/dlst")
	cfg.Extract.Jobs = 4
	cfg.Extract.DestDir = "/out"
	cfg.Pack.Exclude = []string{"*.tmp"}

	m := &Manager{}
	var buf bytes.Buffer
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Extract.Jobs != 4 || got.Extract.DestDir != "/out" {
		t.Errorf("Extract = %+v", got.Extract)
	}
	if len(got.Pack.Exclude) != 1 || got.Pack.Exclude[0] != "*.tmp" {
		t.Errorf("Pack.Exclude = %v", got.Pack.Exclude)
	}
	if got.Keyring.Path != cfg.Keyring.Path {
		t.Errorf("Keyring.Path = %q, want %q", got.Keyring.Path, cfg.Keyring.Path)
	}
}

func TestManager_ReadInvalid(t *testing.T) {
	t.Parallel()
	m := &Manager{}
	if _, err := m.Read(strings.NewReader("not [valid toml")); err == nil {
		t.Error("Read() accepted invalid TOML")
	}
}

func TestInit_RefusesExisting(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "dlst.toml")
	cfg := NewConfig(t.TempDir())

	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := Init(path, cfg); err == nil {
		t.Error("Init() overwrote an existing config")
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if got.BaseDir != cfg.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, cfg.BaseDir)
	}
}
