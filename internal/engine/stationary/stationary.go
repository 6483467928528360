// Package stationary implements a reference Engine for a camera that does not
// move.
//
// A frame is trackable when the standard deviation of its irradiance exceeds
// a texture threshold. The engine initializes after InitFrames consecutive
// trackable frames and fails initialization after InitFailFrames consecutive
// untrackable ones. Once initialized, a single untrackable frame loses
// tracking. Every tracked frame yields an identity pose and every
// KeyFrameInterval-th tracked frame a keyframe. Keyframes are mapped on a
// background goroutine unless the engine runs linearized.
package stationary

import (
	"log/slog"
	"math"
	"sync"

	"vodrive/internal/engine"
	"vodrive/internal/frames"
	"vodrive/internal/logging"
)

// Config tunes initialization and keyframe cadence.
type Config struct {
	InitFrames       int
	InitFailFrames   int
	KeyFrameInterval int
	TextureThreshold float64
}

func (c Config) withDefaults() Config {
	if c.InitFrames <= 0 {
		c.InitFrames = 5
	}
	if c.InitFailFrames <= 0 {
		c.InitFailFrames = 30
	}
	if c.KeyFrameInterval <= 0 {
		c.KeyFrameInterval = 5
	}
	return c
}

// NewFactory returns an engine.Factory producing stationary engines.
func NewFactory(cfg Config) engine.Factory {
	return func(opts engine.Options) (engine.Engine, error) {
		return New(cfg, opts), nil
	}
}

// Engine is the stationary reference engine.
type Engine struct {
	cfg    Config
	opts   engine.Options
	logger *slog.Logger

	// tracking state, touched only by the feeding goroutine
	initialized   bool
	initFailed    bool
	lost          bool
	closed        bool
	trackableRun  int
	untrackedRun  int
	trackedFrames int
	gamma         []float32

	mu        sync.Mutex
	outputs   []engine.Output
	keyFrames []engine.KeyFrame

	mapping chan engine.KeyFrame
	pending sync.WaitGroup
	done    sync.WaitGroup
}

// New constructs an engine. Unless opts.Linearize is set, a mapping goroutine
// runs until Close.
func New(cfg Config, opts engine.Options) *Engine {
	e := &Engine{
		cfg:    cfg.withDefaults(),
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "engine"),
	}
	if !opts.Linearize {
		e.mapping = make(chan engine.KeyFrame, 16)
		e.done.Add(1)
		go e.runMapping()
	}
	return e
}

// AddActiveFrame tracks one frame. Frames are ignored once tracking is lost.
func (e *Engine) AddActiveFrame(img *frames.ImageAndExposure, id int) {
	if e.closed || e.lost || img == nil {
		return
	}

	mean, stddev := irradianceStats(img.Irradiance)
	e.publishLiveFrame(img, id)
	trackable := stddev > e.cfg.TextureThreshold

	if !e.initialized {
		if trackable {
			e.trackableRun++
			e.untrackedRun = 0
		} else {
			e.trackableRun = 0
			e.untrackedRun++
		}
		switch {
		case e.trackableRun >= e.cfg.InitFrames:
			e.initialized = true
			e.initFailed = false
			e.logger.Debug("engine initialized", logging.FrameID(id))
		case e.untrackedRun >= e.cfg.InitFailFrames:
			if !e.initFailed {
				e.logger.Debug("engine initialization failed", logging.FrameID(id))
			}
			e.initFailed = true
			return
		default:
			return
		}
	} else if !trackable {
		e.lost = true
		e.logger.Debug("tracking lost", logging.FrameID(id), logging.Float64("stddev", stddev))
		return
	}

	e.publishPose(engine.Identity(), id)
	if e.trackedFrames%e.cfg.KeyFrameInterval == 0 {
		kf := engine.KeyFrame{
			FrameID:    id,
			Timestamp:  img.Timestamp,
			Pose:       engine.Identity(),
			PointCount: countPoints(img.Irradiance, mean, stddev),
		}
		e.makeKeyFrame(kf)
	}
	e.trackedFrames++
}

func (e *Engine) makeKeyFrame(kf engine.KeyFrame) {
	if e.mapping == nil {
		e.mapKeyFrame(kf)
		return
	}
	e.pending.Add(1)
	e.mapping <- kf
}

func (e *Engine) runMapping() {
	defer e.done.Done()
	for kf := range e.mapping {
		e.mapKeyFrame(kf)
		e.pending.Done()
	}
}

func (e *Engine) mapKeyFrame(kf engine.KeyFrame) {
	e.mu.Lock()
	kf.ID = len(e.keyFrames)
	e.keyFrames = append(e.keyFrames, kf)
	snapshot := append([]engine.KeyFrame(nil), e.keyFrames...)
	outputs := e.outputs
	e.mu.Unlock()

	for _, out := range outputs {
		out.PublishKeyFrames(snapshot, false)
	}
}

func (e *Engine) publishPose(pose engine.Pose, id int) {
	for _, out := range e.currentOutputs() {
		out.PublishPose(pose, id)
	}
}

func (e *Engine) publishLiveFrame(img *frames.ImageAndExposure, id int) {
	outputs := e.currentOutputs()
	if len(outputs) == 0 {
		return
	}
	live := frames.Image{Width: img.Width, Height: img.Height, Pix: make([]byte, len(img.Irradiance))}
	for i, v := range img.Irradiance {
		live.Pix[i] = clampByte(v)
	}
	for _, out := range outputs {
		out.PublishLiveFrame(live, id)
	}
}

func (e *Engine) currentOutputs() []engine.Output {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputs
}

// Initialized reports whether initialization completed.
func (e *Engine) Initialized() bool { return e.initialized }

// InitFailed reports whether initialization failed. The flag stays set; the
// engine keeps attempting to initialize.
func (e *Engine) InitFailed() bool { return e.initFailed }

// IsLost reports whether tracking was lost.
func (e *Engine) IsLost() bool { return e.lost }

// SetGammaFunction stores the photometric response.
func (e *Engine) SetGammaFunction(gamma []float32) {
	e.gamma = append([]float32(nil), gamma...)
}

// Gamma returns the stored photometric response.
func (e *Engine) Gamma() []float32 { return e.gamma }

// SetOutputs replaces the output list.
func (e *Engine) SetOutputs(outputs []engine.Output) {
	e.mu.Lock()
	e.outputs = append([]engine.Output(nil), outputs...)
	e.mu.Unlock()
}

// BlockUntilMappingIsFinished waits for queued keyframes and publishes the
// final keyframe set.
func (e *Engine) BlockUntilMappingIsFinished() {
	if e.closed {
		return
	}
	e.pending.Wait()

	e.mu.Lock()
	snapshot := append([]engine.KeyFrame(nil), e.keyFrames...)
	outputs := e.outputs
	e.mu.Unlock()
	for _, out := range outputs {
		out.PublishKeyFrames(snapshot, true)
	}
}

// Close stops the mapping goroutine. It is safe to call more than once.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.mapping != nil {
		close(e.mapping)
		e.done.Wait()
	}
	e.SetOutputs(nil)
	return nil
}

func irradianceStats(values []float32) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for _, v := range values {
		f := float64(v)
		sum += f
		sumSq += f * f
	}
	n := float64(len(values))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// countPoints counts pixels more than half a standard deviation from the mean.
func countPoints(values []float32, mean, stddev float64) int {
	count := 0
	for _, v := range values {
		if math.Abs(float64(v)-mean) > stddev/2 {
			count++
		}
	}
	return count
}

func clampByte(v float32) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v + 0.5)
	}
}
