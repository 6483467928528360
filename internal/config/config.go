package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file locations for the image sequence, calibration, and runtime state.
type Paths struct {
	// Source is an image directory or a .zip archive of images. Optional in live mode.
	Source string `toml:"source"`
	// Calibration is the geometric camera calibration file (required).
	Calibration string `toml:"calibration"`
	// Gamma is the optional photometric response file (256 values).
	Gamma string `toml:"gamma"`
	// Vignette is the optional vignette image.
	Vignette string `toml:"vignette"`
	LogDir   string `toml:"log_dir"`
	StateDir string `toml:"state_dir"`
	Socket   string `toml:"socket"`
}

// Playback contains configuration for offline sequence replay.
type Playback struct {
	// Speed is a factor on source timestamps. Zero plays as fast as the
	// engine consumes frames, with tracking and mapping sequentialized.
	Speed                 float64 `toml:"speed"`
	Preload               bool    `toml:"preload"`
	PreloadMemoryFraction float64 `toml:"preload_memory_fraction"`
	Start                 int     `toml:"start"`
	End                   int     `toml:"end"`
	Reverse               bool    `toml:"reverse"`
}

// Engine contains the reset policy and the reference engine tuning.
type Engine struct {
	// ResetThreshold is the frame index below which an initialization
	// failure triggers an automatic reset.
	ResetThreshold   int     `toml:"reset_threshold"`
	InitFrames       int     `toml:"init_frames"`
	InitFailFrames   int     `toml:"init_fail_frames"`
	KeyFrameInterval int     `toml:"keyframe_interval"`
	TextureThreshold float64 `toml:"texture_threshold"`
}

// HTTP contains configuration for the metrics and event stream listener.
type HTTP struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
	// Token, when set, is required as a bearer token on /api and /stream.
	Token string `toml:"token"`
}

// Trajectory contains configuration for persisting poses and keyframes.
type Trajectory struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vodrive.
//
// Configuration sections by subsystem:
//   - Paths: image source, calibration files, log/state directories, socket
//   - Playback: pacing speed, preload, frame range
//   - Engine: reset threshold and reference engine tuning
//   - HTTP: metrics and websocket event stream listener
//   - Trajectory: sqlite pose/keyframe recording
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Playback   Playback   `toml:"playback"`
	Engine     Engine     `toml:"engine"`
	HTTP       HTTP       `toml:"http"`
	Trajectory Trajectory `toml:"trajectory"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vodrive/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/vodrive/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vodrive.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HasSource reports whether an image sequence is configured for playback.
func (c *Config) HasSource() bool {
	return strings.TrimSpace(c.Paths.Source) != ""
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	if c.Paths.Socket != "" {
		return c.Paths.Socket
	}
	return filepath.Join(c.Paths.StateDir, defaultSocketName)
}

// TrajectoryDBPath returns the sqlite trajectory database location.
func (c *Config) TrajectoryDBPath() string {
	return filepath.Join(c.Paths.StateDir, "trajectory.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "vodrived.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "vodrived.pid")
}

// Linearize reports whether tracking and mapping run sequentially, which is
// the case when playback is unthrottled.
func (c *Config) Linearize() bool {
	return c.Playback.Speed == 0
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
