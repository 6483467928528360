package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePlayback()
	c.normalizeEngine()
	c.normalizeHTTP()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("VODRIVE_CALIBRATION"); ok && strings.TrimSpace(value) != "" {
		c.Paths.Calibration = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("VODRIVE_SOURCE"); ok && strings.TrimSpace(value) != "" {
		c.Paths.Source = strings.TrimSpace(value)
	}

	var err error
	if c.Paths.Source, err = expandPath(strings.TrimSpace(c.Paths.Source)); err != nil {
		return fmt.Errorf("paths.source: %w", err)
	}
	if c.Paths.Calibration, err = expandPath(strings.TrimSpace(c.Paths.Calibration)); err != nil {
		return fmt.Errorf("paths.calibration: %w", err)
	}
	if c.Paths.Gamma, err = expandPath(strings.TrimSpace(c.Paths.Gamma)); err != nil {
		return fmt.Errorf("paths.gamma: %w", err)
	}
	if c.Paths.Vignette, err = expandPath(strings.TrimSpace(c.Paths.Vignette)); err != nil {
		return fmt.Errorf("paths.vignette: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.Socket, err = expandPath(strings.TrimSpace(c.Paths.Socket)); err != nil {
		return fmt.Errorf("paths.socket: %w", err)
	}
	return nil
}

func (c *Config) normalizePlayback() {
	if c.Playback.PreloadMemoryFraction == 0 {
		c.Playback.PreloadMemoryFraction = defaultPreloadMemoryFraction
	}
	if c.Playback.End == 0 {
		c.Playback.End = defaultPlaybackEnd
	}
}

func (c *Config) normalizeEngine() {
	if c.Engine.ResetThreshold == 0 {
		c.Engine.ResetThreshold = defaultResetThreshold
	}
	if c.Engine.InitFrames == 0 {
		c.Engine.InitFrames = defaultInitFrames
	}
	if c.Engine.InitFailFrames == 0 {
		c.Engine.InitFailFrames = defaultInitFailFrames
	}
	if c.Engine.KeyFrameInterval == 0 {
		c.Engine.KeyFrameInterval = defaultKeyFrameInterval
	}
}

func (c *Config) normalizeHTTP() {
	c.HTTP.Bind = strings.TrimSpace(c.HTTP.Bind)
	if c.HTTP.Bind == "" {
		c.HTTP.Bind = defaultHTTPBind
	}
	c.HTTP.Token = strings.TrimSpace(c.HTTP.Token)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
