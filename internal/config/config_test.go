package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vodrive/internal/config"
)

func TestLoadDefaultConfigUsesEnvCalibrationAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VODRIVE_CALIBRATION", "~/calib/camera.txt")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantCalib := filepath.Join(tempHome, "calib", "camera.txt")
	if cfg.Paths.Calibration != wantCalib {
		t.Fatalf("unexpected calibration: got %q want %q", cfg.Paths.Calibration, wantCalib)
	}
	wantSource := filepath.Join(tempHome, ".local", "share", "vodrive", "images")
	if cfg.Paths.Source != wantSource {
		t.Fatalf("unexpected source: got %q want %q", cfg.Paths.Source, wantSource)
	}
	if cfg.Engine.ResetThreshold != 250 {
		t.Fatalf("unexpected reset threshold: %d", cfg.Engine.ResetThreshold)
	}
	if !cfg.Linearize() {
		t.Fatal("expected default speed 0 to linearize")
	}
	if got := cfg.SocketPath(); got != filepath.Join(cfg.Paths.StateDir, "vodrive.sock") {
		t.Fatalf("unexpected socket path: %q", got)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.LogDir, cfg.Paths.StateDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "vodrive.toml")

	type payload struct {
		Paths struct {
			Calibration string `toml:"calibration"`
			Source      string `toml:"source"`
		} `toml:"paths"`
		Playback struct {
			Speed   float64 `toml:"speed"`
			Preload bool    `toml:"preload"`
			Start   int     `toml:"start"`
			End     int     `toml:"end"`
		} `toml:"playback"`
		Engine struct {
			ResetThreshold int `toml:"reset_threshold"`
		} `toml:"engine"`
	}
	custom := payload{}
	custom.Paths.Calibration = filepath.Join(tempDir, "camera.txt")
	custom.Paths.Source = filepath.Join(tempDir, "images.zip")
	custom.Playback.Speed = 2
	custom.Playback.Preload = true
	custom.Playback.Start = 10
	custom.Playback.End = 20
	custom.Engine.ResetThreshold = 100
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Playback.Speed != 2 || !cfg.Playback.Preload {
		t.Fatalf("unexpected playback settings: %+v", cfg.Playback)
	}
	if cfg.Linearize() {
		t.Fatal("expected throttled playback to disable linearize")
	}
	if cfg.Playback.Start != 10 || cfg.Playback.End != 20 {
		t.Fatalf("unexpected range: %d..%d", cfg.Playback.Start, cfg.Playback.End)
	}
	if cfg.Engine.ResetThreshold != 100 {
		t.Fatalf("expected reset threshold 100, got %d", cfg.Engine.ResetThreshold)
	}
	if cfg.Engine.KeyFrameInterval != config.Default().Engine.KeyFrameInterval {
		t.Fatalf("expected default keyframe interval, got %d", cfg.Engine.KeyFrameInterval)
	}
}

func TestLoadRequiresCalibration(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VODRIVE_CALIBRATION", "")

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error without calibration")
	}
	if !strings.Contains(err.Error(), "paths.calibration") {
		t.Fatalf("expected calibration hint, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.Calibration, "camera.txt") {
		t.Fatalf("expected sample calibration path, got %q", cfg.Paths.Calibration)
	}
	if cfg.Engine.ResetThreshold != 250 {
		t.Fatalf("expected sample reset threshold 250, got %d", cfg.Engine.ResetThreshold)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Paths.Calibration = "/tmp/camera.txt"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"negative speed", func(c *config.Config) { c.Playback.Speed = -1 }},
		{"negative start", func(c *config.Config) { c.Playback.Start = -1 }},
		{"end before start", func(c *config.Config) { c.Playback.Start = 5; c.Playback.End = 5 }},
		{"preload fraction", func(c *config.Config) { c.Playback.PreloadMemoryFraction = 1.5 }},
		{"reset threshold", func(c *config.Config) { c.Engine.ResetThreshold = 0 }},
		{"keyframe interval", func(c *config.Config) { c.Engine.KeyFrameInterval = -2 }},
		{"texture threshold", func(c *config.Config) { c.Engine.TextureThreshold = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config with calibration to validate: %v", err)
	}
}
