package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vodrive/internal/frames"
	"vodrive/internal/logging"
	"vodrive/internal/playback"
	"vodrive/internal/session"
)

// Result summarizes one playback run.
type Result struct {
	Planned    int
	Delivered  int
	Skipped    int
	LoadErrors int
	Resets     int
	Lost       bool
	Cancelled  bool
	Err        error
}

// Start builds the playback plan and runs it on a background goroutine. It
// returns immediately. Start is accepted once per Controller.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.source == nil {
		return ErrNoSource
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	plan, err := c.buildPlan()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.started = true
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.planned.Store(int64(plan.Len()))
	c.mu.Unlock()

	c.logger.Info("playback started",
		logging.Int("frames", plan.Len()),
		logging.Float64("speed", plan.Speed()),
		logging.Float64("duration_seconds", plan.Duration()),
		logging.Bool("preload", c.cfg.Playback.Preload),
		logging.Bool("reverse", c.cfg.Playback.Reverse),
	)
	go c.run(runCtx, plan)
	return nil
}

func (c *Controller) buildPlan() (playback.Plan, error) {
	pb := c.cfg.Playback
	indices := playback.Indices(c.source.Len(), pb.Start, pb.End, pb.Reverse)
	if len(indices) == 0 {
		return playback.Plan{}, fmt.Errorf("%w: start %d end %d of %d frames",
			playback.ErrEmptySelection, pb.Start, pb.End, c.source.Len())
	}
	timestamps := make([]float64, len(indices))
	for i, idx := range indices {
		timestamps[i] = c.source.Timestamp(idx)
	}
	plan, err := playback.NewPlan(indices, timestamps, pb.Speed)
	if err != nil {
		return playback.Plan{}, fmt.Errorf("build playback plan: %w", err)
	}
	return plan, nil
}

// Stop cancels playback and waits for the loop to return. It is a no-op when
// playback is not running.
func (c *Controller) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
}

// Wait blocks until playback finishes and returns its result. It returns a
// zero Result when playback was never started.
func (c *Controller) Wait() Result {
	if c == nil {
		return Result{Err: ErrNotInitialized}
	}
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return Result{}
	}
	<-done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Controller) run(ctx context.Context, plan playback.Plan) {
	result := Result{Planned: plan.Len()}
	started := time.Now()
	defer func() {
		c.finish(result, time.Since(started))
	}()

	var buffer *playback.Buffer
	if c.cfg.Playback.Preload {
		var err error
		buffer, err = playback.Preload(ctx, plan, c.loadFrame, playback.Budget{
			Fraction: c.cfg.Playback.PreloadMemoryFraction,
			Probe:    c.memory,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				result.Cancelled = true
				return
			}
			result.Err = err
			logging.ErrorWithContext(c.logger, "preload failed", "preload_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "lower playback.preload_memory_fraction or disable preload"),
			)
			return
		}
		c.metrics.PreloadBytes(buffer.Bytes())
		c.logger.Info("preload complete",
			logging.Int("frames", buffer.Len()),
			logging.Int64("bytes", buffer.Bytes()),
		)
	}

	pacer := playback.NewPacer(plan, c.clock)
	sampler := logging.NewProgressSampler(10)
	for ii := 0; ii < plan.Len(); ii++ {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}
		entry := plan.At(ii)
		c.position.Store(int64(ii))

		if c.session.ServicePendingReset() {
			result.Resets++
		}
		if !c.session.Initialized() {
			pacer.Rebase(ii)
		}

		img, err := c.fetchFrame(ctx, buffer, ii, entry.Index)
		if buffer != nil {
			c.metrics.PreloadBytes(buffer.Bytes())
		}
		if err != nil {
			result.LoadErrors++
			logging.WarnWithContext(c.logger, "frame load failed", "frame_load_failed",
				logging.Error(err),
				logging.FrameID(entry.Index),
				logging.String(logging.FieldImpact, "frame dropped; playback continues"),
			)
		}

		decision, err := pacer.Pace(ctx, ii)
		if err != nil {
			result.Cancelled = true
			break
		}
		switch {
		case decision == playback.Skip:
			result.Skipped++
			c.skipped.Add(1)
			c.metrics.FrameSkipped()
			c.logger.Debug("frame skipped",
				logging.FrameID(entry.Index),
				logging.Float64("elapsed", pacer.Elapsed()),
				logging.Float64("due", entry.Time),
			)
		case img != nil:
			if err := c.session.Feed(img, entry.Index); err != nil {
				if errors.Is(err, session.ErrTerminated) {
					result.Cancelled = true
					return
				}
				result.Err = err
				return
			}
			result.Delivered++
		}

		if c.session.Reconcile(ii) {
			result.Resets++
		}
		if c.session.State() == session.Lost {
			result.Lost = true
			break
		}
		if sampler.ShouldLog(ii+1, plan.Len()) {
			c.logger.Info("playback progress",
				logging.Int("position", ii+1),
				logging.Int("frames", plan.Len()),
				logging.Int("delivered", result.Delivered),
				logging.Int("skipped", result.Skipped),
			)
		}
	}

	c.session.BlockUntilMappingIsFinished()
}

func (c *Controller) fetchFrame(ctx context.Context, buffer *playback.Buffer, position, index int) (*frames.ImageAndExposure, error) {
	if buffer != nil {
		if img, ok := buffer.Take(position); ok {
			return img, nil
		}
	}
	return c.loadFrame(ctx, index)
}

// loadFrame reads and undistorts sequence frame index. It runs outside the
// session lock.
func (c *Controller) loadFrame(ctx context.Context, index int) (*frames.ImageAndExposure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := c.source.Image(index)
	if err != nil {
		return nil, err
	}
	return c.undistorter.Undistort(raw, c.source.Exposure(index), c.source.Timestamp(index))
}

func (c *Controller) finish(result Result, elapsed time.Duration) {
	c.metrics.PreloadBytes(0)
	c.mu.Lock()
	c.result = result
	c.running = false
	cancel := c.cancel
	c.cancel = nil
	done := c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	close(done)

	attrs := []logging.Attr{
		logging.Int("planned", result.Planned),
		logging.Int("delivered", result.Delivered),
		logging.Int("skipped", result.Skipped),
		logging.Int("resets", result.Resets),
		logging.Bool("lost", result.Lost),
		logging.Bool("cancelled", result.Cancelled),
		logging.Duration("elapsed", elapsed),
	}
	if pose, frameID, ok := c.snapshot.CurrentPose(); ok {
		t := pose.Translation()
		attrs = append(attrs, logging.Int("last_pose_frame", frameID), logging.Vector("last_position", t.X, t.Y, t.Z))
	}
	if result.Err != nil {
		logging.ErrorWithContext(c.logger, "playback failed", "playback_failed",
			append(attrs, logging.Error(result.Err))...)
		return
	}
	c.logger.Info("playback finished", logging.Args(attrs...)...)
}
