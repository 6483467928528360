package trajectory

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// ExportTUM writes a run's poses as "timestamp tx ty tz qx qy qz qw" lines.
// It returns the number of poses written.
func (s *Store) ExportTUM(ctx context.Context, w io.Writer, runID string) (int, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return 0, err
	}
	poses, err := s.Poses(ctx, runID)
	if err != nil {
		return 0, err
	}
	return WriteTUM(w, poses)
}

// WriteTUM writes poses in the TUM RGB-D trajectory format.
func WriteTUM(w io.Writer, poses []PoseRecord) (int, error) {
	bw := bufio.NewWriter(w)
	for _, p := range poses {
		t := p.Translation()
		qx, qy, qz, qw := p.Pose.Quaternion()
		if _, err := fmt.Fprintf(bw, "%.6f %.6f %.6f %.6f %.6f %.6f %.6f %.6f\n",
			p.Timestamp, t.X, t.Y, t.Z, qx, qy, qz, qw); err != nil {
			return 0, fmt.Errorf("write pose: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("flush trajectory: %w", err)
	}
	return len(poses), nil
}
