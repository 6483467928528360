package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"vodrive/internal/config"
	"vodrive/internal/controller"
	"vodrive/internal/frames"
	"vodrive/internal/logging"
	"vodrive/internal/metrics"
	"vodrive/internal/stream"
	"vodrive/internal/trajectory"
)

// Dependencies are the optional collaborators owned by a Daemon. Nil members
// disable the corresponding feature.
type Dependencies struct {
	Store   *trajectory.Store
	Hub     *stream.Hub
	Metrics *metrics.Recorder
}

// Daemon owns a controller and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	controller *controller.Controller
	store      *trajectory.Store
	hub        *stream.Hub
	metrics    *metrics.Recorder
	http       *httpServer
	logPath    string
	startedAt  time.Time

	lockPath string
	lock     *flock.Flock

	mu       sync.Mutex
	recorder *trajectory.Recorder
	running  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool              `json:"running"`
	PID              int               `json:"pid"`
	Uptime           time.Duration     `json:"uptime"`
	Controller       controller.Status `json:"controller"`
	LockFilePath     string            `json:"lock_file"`
	TrajectoryDBPath string            `json:"trajectory_db,omitempty"`
	TrajectoryRun    string            `json:"trajectory_run,omitempty"`
	TrajectoryDrops  int64             `json:"trajectory_drops,omitempty"`
	HTTPAddress      string            `json:"http_address,omitempty"`
	StreamClients    int               `json:"stream_clients"`
}

// New constructs a daemon around an initialized controller.
func New(cfg *config.Config, logger *slog.Logger, ctrl *controller.Controller, deps Dependencies) (*Daemon, error) {
	if cfg == nil || logger == nil || ctrl == nil {
		return nil, errors.New("daemon requires config, logger, and controller")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		controller: ctrl,
		store:      deps.Store,
		hub:        deps.Hub,
		metrics:    deps.Metrics,
		logPath:    cfg.Paths.LogDir,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	if cfg.HTTP.Enabled {
		d.http = newHTTPServer(cfg, d, logger)
	}
	if d.hub != nil {
		if err := ctrl.AddOutput(d.hub); err != nil {
			return nil, fmt.Errorf("attach event stream: %w", err)
		}
	}
	return d, nil
}

// Start acquires the daemon lock, begins trajectory recording, serves HTTP
// and, when a sequence is configured, starts playback.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vodrive daemon instance is already running")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.ctx, d.cancel = context.WithCancel(ctx)
	fail := func(err error) error {
		d.stopLocked()
		_ = d.lock.Unlock()
		return err
	}

	if d.store != nil {
		if err := d.startRecorderLocked(); err != nil {
			return fail(fmt.Errorf("start trajectory recorder: %w", err))
		}
	}
	if d.http != nil {
		if err := d.http.start(d.ctx); err != nil {
			return fail(err)
		}
	}
	if d.controller.HasSource() {
		err := d.controller.Start(d.ctx)
		switch {
		case errors.Is(err, controller.ErrAlreadyStarted):
			d.logger.Info("playback already ran; accepting live frames only")
		case err != nil:
			return fail(fmt.Errorf("start playback: %w", err))
		}
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("vodrive daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("playback", d.controller.HasSource()),
	)
	return nil
}

func (d *Daemon) startRecorderLocked() error {
	run := trajectory.Run{
		ID:        uuid.NewString(),
		Mode:      trajectory.ModeLive,
		StartedAt: time.Now(),
	}
	if d.controller.HasSource() {
		run.Mode = trajectory.ModePlayback
		run.Source = d.cfg.Paths.Source
		run.Speed = d.cfg.Playback.Speed
	}
	rec, err := trajectory.NewRecorder(d.ctx, d.store, trajectory.RecorderOptions{
		Run:       run,
		Logger:    d.logger,
		Metrics:   d.metrics,
		Timestamp: d.controller.FrameTimestamp,
	})
	if err != nil {
		return err
	}
	if err := d.controller.AddOutput(rec); err != nil {
		_ = rec.Close()
		return err
	}
	d.recorder = rec
	return nil
}

// Stop halts playback, flushes the trajectory and releases the daemon lock.
// Live feeding stays possible until Close.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.mu.Lock()
	d.stopLocked()
	d.mu.Unlock()

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("vodrive daemon stopped")
}

func (d *Daemon) stopLocked() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.controller.Stop()
	if d.http != nil {
		d.http.stop()
	}
	if d.recorder != nil {
		_ = d.controller.RemoveOutput(d.recorder)
		if err := d.recorder.Close(); err != nil {
			logging.WarnWithContext(d.logger, "trajectory recording incomplete", "trajectory_close",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some poses of this run were not persisted"),
			)
		}
		d.recorder = nil
	}
	d.ctx = nil
}

// Close stops the daemon and releases the controller, hub and store.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if err := d.controller.Close(); err != nil {
		errs = append(errs, err)
	}
	if d.hub != nil {
		d.hub.Close()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Controller exposes the controller for queries.
func (d *Daemon) Controller() *controller.Controller {
	return d.controller
}

// Feed undistorts and delivers a live frame.
func (d *Daemon) Feed(ctx context.Context, img frames.Image) (int, error) {
	return d.controller.Feed(ctx, img)
}

// RequestReset asks the controller for an engine reset.
func (d *Daemon) RequestReset() error {
	return d.controller.RequestReset()
}

// LogPath returns the daemon log directory.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	ctrlStatus, _ := d.controller.Status()
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Controller:   ctrlStatus,
		LockFilePath: d.lockPath,
	}
	if d.store != nil {
		status.TrajectoryDBPath = d.store.Path()
	}
	d.mu.Lock()
	if status.Running {
		status.Uptime = time.Since(d.startedAt).Round(time.Second)
	}
	if d.recorder != nil {
		status.TrajectoryRun = d.recorder.RunID()
		status.TrajectoryDrops = d.recorder.Dropped()
	}
	if d.http != nil {
		status.HTTPAddress = d.http.address()
	}
	d.mu.Unlock()
	if d.hub != nil {
		status.StreamClients = d.hub.Clients()
	}
	return status
}
