package trajectory

import (
	"time"

	"github.com/golang/geo/r3"

	"vodrive/internal/engine"
)

// Run modes.
const (
	ModePlayback = "playback"
	ModeLive     = "live"
)

// Run is one recorded controller lifetime.
type Run struct {
	ID         string
	Mode       string
	Source     string
	Speed      float64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Finished reports whether the run was closed cleanly.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// RunSummary aggregates a run's recorded content.
type RunSummary struct {
	Run
	Poses       int
	KeyFrames   int
	Resets      int
	Generations int
	PathLength  float64
}

// PoseRecord is one published camera pose.
type PoseRecord struct {
	Generation int
	FrameID    int
	Timestamp  float64
	Pose       engine.Pose
}

// Translation returns the camera position in world coordinates.
func (p PoseRecord) Translation() r3.Vector { return p.Pose.Translation() }

// KeyFrameRecord is one keyframe of a generation's final keyframe set.
type KeyFrameRecord struct {
	Generation int
	engine.KeyFrame
}

// Reasons stored with a ResetRecord.
const (
	ReasonReset = "reset"
	ReasonLost  = "lost"
)

// ResetRecord marks the start of a new engine generation within a run, or
// the point where the generation lost tracking.
type ResetRecord struct {
	Generation int
	Reason     string
	FrameID    int
	OccurredAt time.Time
}

// PathLength sums the distances between consecutive camera positions within
// each generation. Jumps across a reset are not counted.
func PathLength(poses []PoseRecord) float64 {
	var total float64
	for i := 1; i < len(poses); i++ {
		if poses[i].Generation != poses[i-1].Generation {
			continue
		}
		total += poses[i].Translation().Sub(poses[i-1].Translation()).Norm()
	}
	return total
}
