package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vodrive/internal/daemonctl"
	"vodrive/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the vodrive daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startLogLevel),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the launched daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the vodrive daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Stopping playback...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, engine and playback status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := daemonctl.BuildStatusSnapshot(ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, snapshot)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			if snapshot.Daemon == nil {
				renderOfflineStatus(stdout, snapshot, colorize)
				return nil
			}
			renderDaemonStatus(stdout, snapshot.Daemon, colorize)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status snapshot as JSON")

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the vodrive daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx, restartLogLevel),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override logging.level for the launched daemon")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderOfflineStatus(w io.Writer, snapshot daemonctl.Snapshot, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, renderStatusLine("vodrive", statusError, "Not running", colorize))
	fmt.Fprintln(w)
	for _, line := range renderSectionHeader("Preflight", colorize) {
		fmt.Fprintln(w, line)
	}
	for _, line := range preflightLines(snapshot.Preflight, colorize) {
		fmt.Fprintln(w, line)
	}
}

func renderDaemonStatus(w io.Writer, status *ipc.StatusResponse, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(w, line)
	}
	if status.Running {
		uptime := (time.Duration(status.UptimeSeconds) * time.Second).String()
		fmt.Fprintln(w, renderStatusLine("vodrive", statusOK, fmt.Sprintf("Running (pid %d, up %s)", status.PID, uptime), colorize))
	} else {
		fmt.Fprintln(w, renderStatusLine("vodrive", statusWarn, fmt.Sprintf("Idle (pid %d)", status.PID), colorize))
	}
	if status.HTTPAddress != "" {
		fmt.Fprintln(w, renderStatusLine("HTTP", statusInfo, fmt.Sprintf("%s (%d stream clients)", status.HTTPAddress, status.StreamClients), colorize))
	}
	if status.TrajectoryRun != "" {
		kind := statusOK
		detail := fmt.Sprintf("run %s", status.TrajectoryRun)
		if status.TrajectoryDrops > 0 {
			kind = statusWarn
			detail = fmt.Sprintf("%s, %d events dropped", detail, status.TrajectoryDrops)
		}
		fmt.Fprintln(w, renderStatusLine("Trajectory", kind, detail, colorize))
	}
	fmt.Fprintln(w)

	ctrl := status.Controller
	for _, line := range renderSectionHeader("Engine", colorize) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, renderStatusLine("State", engineStateKind(ctrl.State), stateLabel(ctrl.State), colorize))
	fmt.Fprintln(w, renderStatusLine("Generation", statusInfo, fmt.Sprintf("%d (%d resets)", ctrl.Generation, ctrl.Resets), colorize))
	fmt.Fprintln(w, renderStatusLine("Reset pending", statusInfo, yesNo(ctrl.ResetPending), colorize))
	fmt.Fprintln(w, renderStatusLine("Keyframes", statusInfo, fmt.Sprintf("%d", ctrl.KeyFrames), colorize))
	fmt.Fprintln(w)

	for _, line := range renderSectionHeader("Frames", colorize) {
		fmt.Fprintln(w, line)
	}
	rows := [][]string{
		{"Fed", fmt.Sprintf("%d", ctrl.FramesFed)},
		{"Skipped", fmt.Sprintf("%d", ctrl.FramesSkipped)},
		{"Outputs", fmt.Sprintf("%d", ctrl.Outputs)},
	}
	if ctrl.Playback {
		rows = append(rows,
			[]string{"Playback", playbackState(ctrl.Running, ctrl.Started)},
			[]string{"Position", fmt.Sprintf("%d / %d", ctrl.Position, ctrl.Planned)},
		)
	}
	fmt.Fprint(w, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func playbackState(running, started bool) string {
	switch {
	case running:
		return "running"
	case started:
		return "finished"
	default:
		return "not started"
	}
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
