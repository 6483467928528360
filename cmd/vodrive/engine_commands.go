package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vodrive/internal/ipc"
)

func newEngineCommands(ctx *commandContext) []*cobra.Command {
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Request an engine reset before the next frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reset()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Pending {
					fmt.Fprintln(out, "Reset requested; the engine restarts on the next frame")
					return nil
				}
				fmt.Fprintln(out, "Reset already applied")
				return nil
			})
		},
	}

	var poseJSON bool
	poseCmd := &cobra.Command{
		Use:   "pose",
		Short: "Show the most recent camera pose",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CurrentPose()
				if err != nil {
					return err
				}
				if poseJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !resp.Available {
					fmt.Fprintln(out, "No pose published yet")
					return nil
				}
				t := resp.Pose.Translation()
				qx, qy, qz, qw := resp.Pose.Quaternion()
				fmt.Fprintf(out, "Frame:       %d\n", resp.FrameID)
				fmt.Fprintf(out, "Translation: %.4f %.4f %.4f\n", t.X, t.Y, t.Z)
				fmt.Fprintf(out, "Rotation:    %.4f %.4f %.4f %.4f\n", qx, qy, qz, qw)
				return nil
			})
		},
	}
	poseCmd.Flags().BoolVar(&poseJSON, "json", false, "Print the pose as JSON")

	var keyFramesJSON bool
	keyFramesCmd := &cobra.Command{
		Use:     "keyframes",
		Aliases: []string{"kf"},
		Short:   "List the current keyframes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.KeyFrames()
				if err != nil {
					return err
				}
				if keyFramesJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.KeyFrames) == 0 {
					fmt.Fprintln(out, "No keyframes")
					return nil
				}
				rows := make([][]string, 0, len(resp.KeyFrames))
				for _, kf := range resp.KeyFrames {
					t := kf.Pose.Translation()
					rows = append(rows, []string{
						fmt.Sprintf("%d", kf.ID),
						fmt.Sprintf("%d", kf.FrameID),
						fmt.Sprintf("%.3f", kf.Timestamp),
						fmt.Sprintf("%.3f", t.X),
						fmt.Sprintf("%.3f", t.Y),
						fmt.Sprintf("%.3f", t.Z),
						fmt.Sprintf("%d", kf.PointCount),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Frame", "Time", "X", "Y", "Z", "Points"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	keyFramesCmd.Flags().BoolVar(&keyFramesJSON, "json", false, "Print keyframes as JSON")

	intrinsicsCmd := &cobra.Command{
		Use:   "intrinsics",
		Short: "Show the rectified camera intrinsics and resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				intr, err := client.Intrinsics()
				if err != nil {
					return err
				}
				res, err := client.Resolution()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Resolution: %dx%d\n", res.Width, res.Height)
				fmt.Fprintf(out, "fx=%.4f fy=%.4f cx=%.4f cy=%.4f\n", intr.Values[0], intr.Values[1], intr.Values[2], intr.Values[3])
				return nil
			})
		},
	}

	return []*cobra.Command{resetCmd, poseCmd, keyFramesCmd, intrinsicsCmd}
}
