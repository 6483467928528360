package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePlayback(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.Calibration) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/vodrive/config.toml"
		}
		return fmt.Errorf("paths.calibration is required. Set VODRIVE_CALIBRATION or edit %s (create with 'vodrive config init')", defaultPath)
	}
	return nil
}

func (c *Config) validatePlayback() error {
	if c.Playback.Speed < 0 {
		return errors.New("playback.speed must be >= 0 (0 plays unthrottled)")
	}
	if c.Playback.Start < 0 {
		return errors.New("playback.start must be >= 0")
	}
	if c.Playback.End <= c.Playback.Start {
		return errors.New("playback.end must be greater than playback.start")
	}
	if c.Playback.PreloadMemoryFraction <= 0 || c.Playback.PreloadMemoryFraction > 1 {
		return errors.New("playback.preload_memory_fraction must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if err := ensurePositiveMap(map[string]int{
		"engine.reset_threshold":   c.Engine.ResetThreshold,
		"engine.init_frames":       c.Engine.InitFrames,
		"engine.init_fail_frames":  c.Engine.InitFailFrames,
		"engine.keyframe_interval": c.Engine.KeyFrameInterval,
	}); err != nil {
		return err
	}
	if c.Engine.TextureThreshold < 0 {
		return errors.New("engine.texture_threshold must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
