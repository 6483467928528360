package controller

import (
	"vodrive/internal/engine"
	"vodrive/internal/frames"
	"vodrive/internal/undistort"
)

// Status is a point-in-time summary of the controller.
type Status struct {
	State         string `json:"state"`
	Generation    int    `json:"generation"`
	FramesFed     int64  `json:"frames_fed"`
	FramesSkipped int64  `json:"frames_skipped"`
	Resets        int    `json:"resets"`
	ResetPending  bool   `json:"reset_pending"`
	Running       bool   `json:"running"`
	Started       bool   `json:"started"`
	Playback      bool   `json:"playback"`
	Position      int    `json:"position"`
	Planned       int    `json:"planned"`
	KeyFrames     int    `json:"keyframes"`
	Outputs       int    `json:"outputs"`
}

// Status reports session health and playback progress.
func (c *Controller) Status() (Status, error) {
	if c == nil {
		return Status{}, ErrNotInitialized
	}
	stats := c.session.Stats()
	c.mu.Lock()
	running, started := c.running, c.started
	c.mu.Unlock()
	return Status{
		State:         stats.State.String(),
		Generation:    stats.Generation,
		FramesFed:     stats.Fed,
		FramesSkipped: c.skipped.Load(),
		Resets:        stats.Resets,
		ResetPending:  stats.ResetPending,
		Running:       running,
		Started:       started,
		Playback:      c.source != nil,
		Position:      int(c.position.Load()),
		Planned:       int(c.planned.Load()),
		KeyFrames:     c.snapshot.KeyFrameCount(),
		Outputs:       stats.Outputs,
	}, nil
}

// Intrinsics returns the pinhole parameters of the rectified camera.
func (c *Controller) Intrinsics() (undistort.Intrinsics, error) {
	if c == nil {
		return undistort.Intrinsics{}, ErrNotInitialized
	}
	return c.undistorter.Intrinsics(), nil
}

// Resolution returns the size of rectified frames.
func (c *Controller) Resolution() (int, int, error) {
	if c == nil {
		return 0, 0, ErrNotInitialized
	}
	intr := c.undistorter.Intrinsics()
	return intr.Width, intr.Height, nil
}

// CurrentPose returns the latest camera-to-world pose and its frame id. ok is
// false before the first pose and after a reset.
func (c *Controller) CurrentPose() (pose engine.Pose, frameID int, ok bool, err error) {
	if c == nil {
		return engine.Pose{}, 0, false, ErrNotInitialized
	}
	pose, frameID, ok = c.snapshot.CurrentPose()
	return pose, frameID, ok, nil
}

// KeyFrames returns the current keyframe set ordered by id.
func (c *Controller) KeyFrames() ([]engine.KeyFrame, error) {
	if c == nil {
		return nil, ErrNotInitialized
	}
	return c.snapshot.KeyFrames(), nil
}

// KeyFrameCount returns the number of keyframes in the current set.
func (c *Controller) KeyFrameCount() (int, error) {
	if c == nil {
		return 0, ErrNotInitialized
	}
	return c.snapshot.KeyFrameCount(), nil
}

// CurrentImage returns a copy of the frame the engine last published and its
// frame id.
func (c *Controller) CurrentImage() (frames.Image, int, bool, error) {
	if c == nil {
		return frames.Image{}, 0, false, ErrNotInitialized
	}
	img, id, ok := c.snapshot.CurrentImage()
	return img, id, ok, nil
}

// HasSource reports whether an image sequence is available for playback.
func (c *Controller) HasSource() bool {
	return c != nil && c.source != nil
}

// FrameTimestamp returns the capture time of the frame being fed under
// frameID: the sequence timestamp for playback frames and the arrival time for
// live frames. Outputs call it synchronously from PublishPose.
func (c *Controller) FrameTimestamp(frameID int) (float64, bool) {
	if c == nil || c.session == nil {
		return 0, false
	}
	return c.session.FrameTimestamp(frameID)
}
