package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vodrive/internal/frames"
	"vodrive/internal/logging"
	"vodrive/internal/session"
)

// liveExposure is the exposure assigned to live frames, which carry none.
const liveExposure = 1.0

// Feed undistorts a live frame and hands it to the engine under the next
// monotonic frame id, which it returns. A pending reset runs before the frame
// is fed. Engine failures never surface here; they become session state.
func (c *Controller) Feed(ctx context.Context, img frames.Image) (int, error) {
	if err := c.check(); err != nil {
		return -1, err
	}
	if err := img.Validate(); err != nil {
		return -1, err
	}
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	arrived := float64(c.clock.Now().UnixNano()) / float64(time.Second)
	undistorted, err := c.undistorter.Undistort(img, liveExposure, arrived)
	if err != nil {
		return -1, fmt.Errorf("undistort live frame: %w", err)
	}
	id, err := c.session.FeedLive(undistorted)
	if err != nil {
		if errors.Is(err, session.ErrTerminated) {
			return -1, ErrClosed
		}
		return -1, err
	}
	c.logger.Debug("live frame fed", logging.FrameID(id))
	return id, nil
}
