// Package daemonrun assembles and runs the vodrive daemon process.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"vodrive/internal/config"
	"vodrive/internal/controller"
	"vodrive/internal/daemon"
	"vodrive/internal/ipc"
	"vodrive/internal/logging"
	"vodrive/internal/metrics"
	"vodrive/internal/preflight"
	"vodrive/internal/stream"
	"vodrive/internal/trajectory"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the vodrive daemon runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	runID := uuid.NewString()
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("vodrived-%s.log", stamp))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		RunID:            runID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update vodrived.log link: %v\n", err)
	}

	recorder := metrics.New()
	var hub *stream.Hub
	if cfg.HTTP.Enabled {
		hub = stream.NewHub(stream.HubOptions{Logger: logger, Metrics: recorder})
		logger = logging.TeeLogger(logger, hub.LogHandler(slog.LevelWarn))
	}

	logStartupSnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var store *trajectory.Store
	if cfg.Trajectory.Enabled {
		store, err = trajectory.Open(cfg)
		if err != nil {
			logging.ErrorWithContext(logger, "open trajectory store", "trajectory_open_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check "+cfg.TrajectoryDBPath()+" or disable [trajectory]"),
			)
			return err
		}
	}

	ctx := logging.WithRunID(signalCtx, runID)
	ctrl, err := controller.Init(ctx, cfg,
		controller.WithLogger(logger),
		controller.WithMetrics(recorder),
	)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return fmt.Errorf("init controller: %w", err)
	}

	d, err := daemon.New(cfg, logger, ctrl, daemon.Dependencies{
		Store:   store,
		Hub:     hub,
		Metrics: recorder,
	})
	if err != nil {
		_ = ctrl.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and the state directory lock"),
			logging.String(logging.FieldImpact, "playback is not running; live frames are still accepted"),
		)
	}

	<-signalCtx.Done()
	logger.Info("vodrive daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "vodrived.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logStartupSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	report := preflight.Run(cfg)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "startup_snapshot"),
		logging.String("calibration", cfg.Paths.Calibration),
		logging.String("source", cfg.Paths.Source),
		logging.Float64("speed", cfg.Playback.Speed),
		logging.Bool("linearize", cfg.Linearize()),
		logging.Bool("preload", cfg.Playback.Preload),
		logging.Int("reset_threshold", cfg.Engine.ResetThreshold),
		logging.Bool("trajectory", cfg.Trajectory.Enabled),
		logging.Bool("http", cfg.HTTP.Enabled),
	}
	for _, check := range report.Checks {
		attrs = append(attrs, logging.Bool("check_"+check.Name, check.Passed))
	}
	logger.Info("startup snapshot", logging.Args(attrs...)...)
	for _, check := range report.Failed() {
		if check.Optional {
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldErrorHint, check.Hint),
		)
	}
}
