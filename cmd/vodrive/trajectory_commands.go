package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vodrive/internal/trajectory"
)

// latestRun selects the most recent run wherever a run id is accepted.
const latestRun = "latest"

func newTrajectoryCommand(ctx *commandContext) *cobra.Command {
	trajCmd := &cobra.Command{
		Use:     "trajectory",
		Aliases: []string{"traj"},
		Short:   "Inspect recorded trajectories",
	}

	trajCmd.AddCommand(newTrajectoryListCommand(ctx))
	trajCmd.AddCommand(newTrajectoryShowCommand(ctx))
	trajCmd.AddCommand(newTrajectoryExportCommand(ctx))
	trajCmd.AddCommand(newTrajectoryDeleteCommand(ctx))

	return trajCmd
}

func (c *commandContext) withStore(fn func(*trajectory.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.TrajectoryDBPath()); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no trajectory database at %s; set trajectory.enabled = true and run the daemon", cfg.TrajectoryDBPath())
	}
	store, err := trajectory.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func resolveRunID(ctx context.Context, store *trajectory.Store, runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID != "" && runID != latestRun {
		return runID, nil
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no recorded runs")
	}
	return runs[0].ID, nil
}

func runArg(args []string) string {
	if len(args) == 0 {
		return latestRun
	}
	return args[0]
}

func newTrajectoryListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *trajectory.Store) error {
				runs, err := store.ListRuns(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No recorded runs")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				totalPoses := 0
				for _, run := range runs {
					totalPoses += run.Poses
					rows = append(rows, []string{
						run.ID,
						run.Mode,
						formatRunTime(run.StartedAt),
						yesNo(run.Finished()),
						fmt.Sprintf("%d", run.Poses),
						fmt.Sprintf("%d", run.KeyFrames),
						fmt.Sprintf("%d", run.Resets),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Run", "Mode", "Started", "Finished", "Poses", "Keyframes", "Resets"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
					fmt.Sprintf("%d runs", len(runs)), "", "", "", fmt.Sprintf("%d", totalPoses),
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print runs as JSON")
	return cmd
}

func newTrajectoryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show [run-id|latest]",
		Short: "Summarize a recorded run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *trajectory.Store) error {
				runID, err := resolveRunID(cmd.Context(), store, runArg(args))
				if err != nil {
					return err
				}
				summary, err := store.Summarize(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, summary)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run:         %s\n", summary.ID)
				fmt.Fprintf(out, "Mode:        %s\n", summary.Mode)
				if summary.Source != "" {
					fmt.Fprintf(out, "Source:      %s (speed %.2f)\n", summary.Source, summary.Speed)
				}
				fmt.Fprintf(out, "Started:     %s\n", formatRunTime(summary.StartedAt))
				if summary.Finished() {
					fmt.Fprintf(out, "Finished:    %s (%s)\n", formatRunTime(summary.FinishedAt),
						summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
				} else {
					fmt.Fprintln(out, "Finished:    no")
				}
				fmt.Fprintf(out, "Poses:       %d\n", summary.Poses)
				fmt.Fprintf(out, "Keyframes:   %d\n", summary.KeyFrames)
				fmt.Fprintf(out, "Generations: %d (%d resets)\n", summary.Generations, summary.Resets)
				fmt.Fprintf(out, "Path length: %.3f\n", summary.PathLength)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

func newTrajectoryExportCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "export [run-id|latest]",
		Short: "Export a run's poses in TUM format",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *trajectory.Store) error {
				runID, err := resolveRunID(cmd.Context(), store, runArg(args))
				if err != nil {
					return err
				}
				if strings.TrimSpace(outputPath) == "" {
					_, err := store.ExportTUM(cmd.Context(), cmd.OutOrStdout(), runID)
					return err
				}
				file, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				count, err := store.ExportTUM(cmd.Context(), file, runID)
				if closeErr := file.Close(); err == nil && closeErr != nil {
					err = fmt.Errorf("close export file: %w", closeErr)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d poses to %s\n", count, outputPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func newTrajectoryDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *trajectory.Store) error {
				runID := strings.TrimSpace(args[0])
				if err := store.DeleteRun(cmd.Context(), runID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", runID)
				return nil
			})
		},
	}
}

func formatRunTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
