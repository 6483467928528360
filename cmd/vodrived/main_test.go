package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vodrive/internal/testsupport"
)

func TestLoadConfigHonorsEnvironment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "vodrived.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	socket := filepath.Join(base, "custom.sock")
	t.Setenv("VODRIVE_CONFIG", configPath)
	t.Setenv("VODRIVE_SOCKET", socket)

	loaded, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if loaded.Paths.Calibration != cfg.Paths.Calibration {
		t.Fatalf("unexpected calibration %q", loaded.Paths.Calibration)
	}
	if loaded.SocketPath() != socket {
		t.Fatalf("expected socket override %q, got %q", socket, loaded.SocketPath())
	}
}

func TestLoadConfigRequiresCalibration(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VODRIVE_CONFIG", "")
	t.Setenv("VODRIVE_CALIBRATION", "")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error without calibration")
	}
}
