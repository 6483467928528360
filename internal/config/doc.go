// Package config loads, normalizes, and validates vodrive configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VODRIVE_CALIBRATION. The Config type centralizes every knob the controller,
// daemon, and CLI need: the image sequence location, camera and photometric
// calibration files, playback pacing, engine reset policy, and log routing.
//
// A loaded Config is treated as immutable. Pass it explicitly to constructors
// instead of reading process-wide settings.
package config
