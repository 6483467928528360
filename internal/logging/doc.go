// Package logging assembles structured slog loggers and formatting helpers used
// across vodrive.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so the playback loop and live
// feed path can tag log lines with run IDs, frame IDs, and engine
// generations. The package also provides a no-op logger for tests and wiring
// code that cannot fail.
package logging
