// Package engine defines the contract between the frame-ingestion controller
// and a visual-odometry engine.
//
// The controller owns exactly one Engine at a time. Every method is called
// with the session lock held, so implementations need not guard against
// concurrent calls from the controller, though they may run their own
// background mapping goroutines.
package engine

import (
	"log/slog"

	"vodrive/internal/frames"
	"vodrive/internal/undistort"
)

// Engine consumes undistorted frames and publishes poses and keyframes to its
// outputs.
type Engine interface {
	AddActiveFrame(img *frames.ImageAndExposure, id int)
	Initialized() bool
	InitFailed() bool
	IsLost() bool
	SetGammaFunction(gamma []float32)
	SetOutputs(outputs []Output)
	// BlockUntilMappingIsFinished waits for asynchronous mapping work to drain.
	BlockUntilMappingIsFinished()
	Close() error
}

// Options configure a new Engine instance.
type Options struct {
	// Linearize runs tracking and mapping sequentially on the feeding goroutine.
	Linearize  bool
	Intrinsics undistort.Intrinsics
	Logger     *slog.Logger
}

// Factory constructs a fresh Engine.
type Factory func(opts Options) (Engine, error)

// Output receives engine results. Identity persists across engine resets.
// Implementations must be safe for concurrent use: the mapping goroutine of
// an engine may publish keyframes while the feeding goroutine publishes poses.
type Output interface {
	PublishPose(pose Pose, frameID int)
	// PublishKeyFrames delivers the current keyframe set; final is true for
	// the last publication before mapping finishes.
	PublishKeyFrames(keyFrames []KeyFrame, final bool)
	PublishLiveFrame(img frames.Image, frameID int)
	// Reset is called once per engine reset, after the old engine is closed
	// and before the new one receives frames.
	Reset()
}

// LossObserver is an optional Output extension notified when tracking is lost.
type LossObserver interface {
	TrackingLost(frameID int)
}
