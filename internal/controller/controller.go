package controller

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"

	"vodrive/internal/config"
	"vodrive/internal/engine"
	"vodrive/internal/engine/stationary"
	"vodrive/internal/frames"
	"vodrive/internal/logging"
	"vodrive/internal/metrics"
	"vodrive/internal/observer"
	"vodrive/internal/playback"
	"vodrive/internal/session"
	"vodrive/internal/undistort"
)

// Controller drives one engine session from offline playback and live frames.
type Controller struct {
	cfg         *config.Config
	logger      *slog.Logger
	metrics     *metrics.Recorder
	clock       playback.Clock
	memory      playback.MemoryProbe
	source      frames.Source
	undistorter undistort.Undistorter
	session     *session.Session
	snapshot    *observer.Snapshot

	skipped  atomic.Int64
	position atomic.Int64
	planned  atomic.Int64

	mu      sync.Mutex
	started bool
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	result  Result
}

// Init builds a Controller from cfg. It fails when the calibration cannot be
// loaded or the configured sequence cannot be read. A configured sequence
// path that does not exist leaves the controller in live-only mode.
func Init(ctx context.Context, cfg *config.Config, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("controller: config is required")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.NewComponentLogger(o.logger, "controller")
	if o.clock == nil {
		o.clock = playback.WallClock{}
	}
	if o.memory == nil {
		o.memory = playback.SystemMemory
	}

	undistorter := o.undistorter
	if undistorter == nil {
		rect, err := undistort.Load(cfg.Paths.Calibration, cfg.Paths.Gamma, cfg.Paths.Vignette)
		if err != nil {
			return nil, fmt.Errorf("load calibration: %w", err)
		}
		undistorter = rect
	}

	source := o.source
	if source == nil && cfg.HasSource() {
		src, err := frames.Open(cfg.Paths.Source)
		switch {
		case err == nil:
			source = src
			if path, entries, ok := src.IgnoredTimes(); ok {
				logging.WarnWithContext(logger, "times file ignored; frame timestamps are zero", "times_mismatch",
					logging.String("times", path),
					logging.Int("entries", entries),
					logging.Int("images", src.Len()),
					logging.String(logging.FieldErrorHint, "write one times.txt line per image"),
					logging.String(logging.FieldImpact, "playback is not paced by recorded time"),
				)
			}
		case errors.Is(err, fs.ErrNotExist):
			logging.WarnWithContext(logger, "image sequence not found; playback disabled", "source_missing",
				logging.String("source", cfg.Paths.Source),
				logging.String(logging.FieldErrorHint, "set paths.source or VODRIVE_SOURCE"),
				logging.String(logging.FieldImpact, "only live frames are accepted"),
			)
		default:
			return nil, fmt.Errorf("open image sequence: %w", err)
		}
	}

	factory := o.factory
	if factory == nil {
		factory = stationary.NewFactory(stationary.Config{
			InitFrames:       cfg.Engine.InitFrames,
			InitFailFrames:   cfg.Engine.InitFailFrames,
			KeyFrameInterval: cfg.Engine.KeyFrameInterval,
			TextureThreshold: cfg.Engine.TextureThreshold,
		})
	}

	sess, err := session.New(session.Options{
		Factory: factory,
		EngineOptions: engine.Options{
			Linearize:  cfg.Linearize(),
			Intrinsics: undistorter.Intrinsics(),
			Logger:     logging.NewComponentLogger(o.logger, "engine"),
		},
		Gamma:          undistorter.Gamma(),
		ResetThreshold: cfg.Engine.ResetThreshold,
		Logger:         o.logger,
		Metrics:        o.metrics,
	})
	if err != nil {
		if source != nil {
			_ = source.Close()
		}
		return nil, fmt.Errorf("create engine session: %w", err)
	}

	snapshot := observer.NewSnapshot()
	sess.AddOutput(snapshot)
	for _, out := range o.outputs {
		sess.AddOutput(out)
	}

	c := &Controller{
		cfg:         cfg,
		logger:      logger,
		metrics:     o.metrics,
		clock:       o.clock,
		memory:      o.memory,
		source:      source,
		undistorter: undistorter,
		session:     sess,
		snapshot:    snapshot,
	}
	intr := undistorter.Intrinsics()
	attrs := []logging.Attr{
		logging.String("intrinsics", intr.String()),
		logging.Bool("playback", source != nil),
		logging.Float64("speed", cfg.Playback.Speed),
		logging.Bool("photometric", undistorter.Gamma() != nil),
	}
	if source != nil {
		attrs = append(attrs, logging.Int("sequence_frames", source.Len()))
	}
	if runID, ok := logging.RunIDFromContext(ctx); ok {
		attrs = append(attrs, logging.String(logging.FieldRunID, runID))
	}
	logger.Info("controller initialized", logging.Args(attrs...)...)
	return c, nil
}

// AddOutput binds out to the session. It survives engine resets.
func (c *Controller) AddOutput(out engine.Output) error {
	if err := c.check(); err != nil {
		return err
	}
	c.session.AddOutput(out)
	return nil
}

// RemoveOutput unbinds out from the session.
func (c *Controller) RemoveOutput(out engine.Output) error {
	if err := c.check(); err != nil {
		return err
	}
	c.session.RemoveOutput(out)
	return nil
}

// RequestReset asks for an engine reset. It is serviced before the next frame
// is fed, by whichever path feeds first.
func (c *Controller) RequestReset() error {
	if err := c.check(); err != nil {
		return err
	}
	c.session.RequestReset()
	c.logger.Info("engine reset requested")
	return nil
}

// Close stops playback, waits for the in-flight feed, and releases the engine
// and the frame source. Repeated calls return nil.
func (c *Controller) Close() error {
	if c == nil {
		return ErrNotInitialized
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Stop()

	var errs []error
	if err := c.session.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if c.source != nil {
		if err := c.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close image sequence: %w", err))
		}
	}
	c.logger.Info("controller closed")
	return errors.Join(errs...)
}

func (c *Controller) check() error {
	if c == nil {
		return ErrNotInitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}
