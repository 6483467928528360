package trajectory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"vodrive/internal/engine"
	"vodrive/internal/frames"
	"vodrive/internal/logging"
	"vodrive/internal/metrics"
)

const (
	defaultQueueSize = 1024
	poseBatchSize    = 128
)

type eventKind int

const (
	eventPose eventKind = iota
	eventKeyFrames
	eventReset
	eventLost
)

type event struct {
	kind       eventKind
	generation int
	frameID    int
	at         time.Time
	timestamp  float64
	stamped    bool
	pose       engine.Pose
	keyFrames  []engine.KeyFrame
}

// RecorderOptions configure a Recorder.
type RecorderOptions struct {
	Run       Run
	QueueSize int
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	// Timestamp maps a frame id to its capture time in seconds. It is called
	// from PublishPose. When nil or not ok, poses are stamped with the wall
	// time they were published.
	Timestamp func(frameID int) (float64, bool)
}

// Recorder is an engine output that persists poses, keyframe sets, resets and
// tracking loss to a Store. Publication never blocks on the database.
type Recorder struct {
	store     *Store
	run       Run
	logger    *slog.Logger
	metrics   *metrics.Recorder
	timestamp func(int) (float64, bool)

	generation atomic.Int64
	lastFrame  atomic.Int64
	dropped    atomic.Int64
	written    atomic.Int64

	mu      sync.RWMutex
	closed  bool
	events  chan event
	done    chan struct{}
	lastErr error
}

// NewRecorder creates the run and starts the writer goroutine.
func NewRecorder(ctx context.Context, store *Store, opts RecorderOptions) (*Recorder, error) {
	if err := store.CreateRun(ctx, opts.Run); err != nil {
		return nil, err
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	r := &Recorder{
		store:     store,
		run:       opts.Run,
		logger:    logging.NewComponentLogger(opts.Logger, "trajectory"),
		metrics:   opts.Metrics,
		timestamp: opts.Timestamp,
		events:    make(chan event, size),
		done:      make(chan struct{}),
	}
	r.generation.Store(1)
	r.lastFrame.Store(-1)
	go r.write()
	r.logger.Info("trajectory recording started",
		logging.String("trajectory_run", opts.Run.ID),
		logging.String("database", store.Path()),
	)
	return r, nil
}

// RunID returns the id of the run being recorded.
func (r *Recorder) RunID() string { return r.run.ID }

// Dropped returns the number of events dropped because the queue was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// PublishPose queues a pose.
func (r *Recorder) PublishPose(pose engine.Pose, frameID int) {
	r.lastFrame.Store(int64(frameID))
	ev := event{kind: eventPose, pose: pose, frameID: frameID}
	if r.timestamp != nil {
		ev.timestamp, ev.stamped = r.timestamp(frameID)
	}
	r.enqueue(ev)
}

// PublishKeyFrames queues the generation's keyframe set.
func (r *Recorder) PublishKeyFrames(keyFrames []engine.KeyFrame, _ bool) {
	r.enqueue(event{kind: eventKeyFrames, keyFrames: append([]engine.KeyFrame(nil), keyFrames...)})
}

// PublishLiveFrame is ignored; images are not persisted.
func (r *Recorder) PublishLiveFrame(frames.Image, int) {}

// Reset starts a new generation.
func (r *Recorder) Reset() {
	r.generation.Add(1)
	r.enqueue(event{kind: eventReset, frameID: int(r.lastFrame.Load())})
}

// TrackingLost records the loss as a marker in the reset log.
func (r *Recorder) TrackingLost(frameID int) {
	r.enqueue(event{kind: eventLost, frameID: frameID})
}

func (r *Recorder) enqueue(ev event) {
	ev.generation = int(r.generation.Load())
	ev.at = time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
		r.metrics.TrajectoryDropped()
	}
}

func (r *Recorder) write() {
	defer close(r.done)
	ctx := context.Background()
	batch := make([]PoseRecord, 0, poseBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.store.AppendPoses(ctx, r.run.ID, batch); err != nil {
			r.fail("append poses", err)
		} else {
			r.written.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	for ev := range r.events {
		switch ev.kind {
		case eventPose:
			batch = append(batch, PoseRecord{
				Generation: ev.generation,
				FrameID:    ev.frameID,
				Timestamp:  r.stamp(ev),
				Pose:       ev.pose,
			})
			if len(batch) < poseBatchSize && len(r.events) > 0 {
				continue
			}
			flush()
		case eventKeyFrames:
			flush()
			if err := r.store.ReplaceKeyFrames(ctx, r.run.ID, ev.generation, ev.keyFrames); err != nil {
				r.fail("store keyframes", err)
			}
		case eventReset, eventLost:
			flush()
			reason := ReasonReset
			if ev.kind == eventLost {
				reason = ReasonLost
			}
			if err := r.store.AppendReset(ctx, r.run.ID, ResetRecord{
				Generation: ev.generation,
				Reason:     reason,
				FrameID:    ev.frameID,
				OccurredAt: ev.at,
			}); err != nil {
				r.fail("append reset", err)
			}
		}
	}
	flush()
}

func (r *Recorder) stamp(ev event) float64 {
	if ev.stamped {
		return ev.timestamp
	}
	return float64(ev.at.UnixNano()) / float64(time.Second)
}

func (r *Recorder) fail(op string, err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	logging.WarnWithContext(r.logger, "trajectory write failed", "trajectory_write_failed",
		logging.String("op", op),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check state_dir permissions and free space"),
		logging.String(logging.FieldImpact, "trajectory is incomplete; tracking continues"),
	)
}

// Close stops accepting events, flushes the queue, and marks the run
// finished. It returns the last write error, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		err := r.lastErr
		r.mu.Unlock()
		return err
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	<-r.done
	if err := r.store.FinishRun(context.Background(), r.run.ID, time.Now()); err != nil {
		r.fail("finish run", err)
	}
	r.logger.Info("trajectory recording finished",
		logging.String("trajectory_run", r.run.ID),
		logging.Int64("poses", r.written.Load()),
		logging.Int64("dropped", r.dropped.Load()),
	)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}
