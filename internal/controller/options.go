package controller

import (
	"log/slog"

	"vodrive/internal/engine"
	"vodrive/internal/frames"
	"vodrive/internal/metrics"
	"vodrive/internal/playback"
	"vodrive/internal/undistort"
)

// Option configures optional Controller collaborators.
type Option func(*options)

type options struct {
	factory     engine.Factory
	clock       playback.Clock
	logger      *slog.Logger
	metrics     *metrics.Recorder
	outputs     []engine.Output
	source      frames.Source
	undistorter undistort.Undistorter
	memory      playback.MemoryProbe
}

// WithEngineFactory replaces the reference engine.
func WithEngineFactory(factory engine.Factory) Option {
	return func(o *options) { o.factory = factory }
}

// WithClock replaces the wall clock used for pacing.
func WithClock(clock playback.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records controller and session activity on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithOutputs registers additional engine outputs at construction. They stay
// bound across engine resets.
func WithOutputs(outputs ...engine.Output) Option {
	return func(o *options) { o.outputs = append(o.outputs, outputs...) }
}

// WithSource uses src instead of opening the configured sequence. The
// controller takes ownership and closes it.
func WithSource(src frames.Source) Option {
	return func(o *options) { o.source = src }
}

// WithUndistorter uses u instead of loading the configured calibration.
func WithUndistorter(u undistort.Undistorter) Option {
	return func(o *options) { o.undistorter = u }
}

// WithMemoryProbe replaces the available-memory probe used by preload.
func WithMemoryProbe(probe playback.MemoryProbe) Option {
	return func(o *options) { o.memory = probe }
}
