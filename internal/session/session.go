package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"vodrive/internal/engine"
	"vodrive/internal/frames"
	"vodrive/internal/logging"
	"vodrive/internal/metrics"
	"vodrive/internal/observer"
)

// DefaultResetThreshold is the frame index below which an initialization
// failure resets the engine automatically.
const DefaultResetThreshold = 250

// ErrTerminated is returned by feeds after Shutdown.
var ErrTerminated = errors.New("session terminated")

// Options configure a Session.
type Options struct {
	Factory       engine.Factory
	EngineOptions engine.Options
	// Gamma is the photometric response handed to every engine instance.
	// Nil leaves the engine default.
	Gamma          []float32
	ResetThreshold int
	Logger         *slog.Logger
	Metrics        *metrics.Recorder
}

// Stats is a point-in-time summary of a Session.
type Stats struct {
	State        State
	Generation   int
	Processed    int
	Fed          int64
	Resets       int
	ResetPending bool
	Outputs      int
}

// Session is the exclusive owner of the live engine.
type Session struct {
	factory    engine.Factory
	engineOpts engine.Options
	gamma      []float32
	threshold  int
	logger     *slog.Logger
	metrics    *metrics.Recorder

	resetRequested atomic.Bool
	feeding        atomic.Pointer[inFlight]

	mu         sync.Mutex
	eng        engine.Engine
	registry   observer.Registry
	state      State
	generation int
	processed  int
	fed        int64
	resets     int
	liveID     int
}

// inFlight is the frame the engine is consuming.
type inFlight struct {
	id        int
	timestamp float64
}

// New constructs the first engine. A construction failure here is returned;
// later failures are absorbed into the InitFailed state.
func New(opts Options) (*Session, error) {
	if opts.Factory == nil {
		return nil, errors.New("session: engine factory is required")
	}
	threshold := opts.ResetThreshold
	if threshold <= 0 {
		threshold = DefaultResetThreshold
	}
	s := &Session{
		factory:    opts.Factory,
		engineOpts: opts.EngineOptions,
		gamma:      append([]float32(nil), opts.Gamma...),
		threshold:  threshold,
		logger:     logging.NewComponentLogger(opts.Logger, "session"),
		metrics:    opts.Metrics,
	}

	eng, err := s.factory(s.engineOpts)
	if err != nil {
		return nil, fmt.Errorf("construct engine: %w", err)
	}
	s.install(eng)
	s.logger.Info("engine session created",
		logging.Generation(s.generation),
		logging.Int("reset_threshold", s.threshold),
		logging.Bool("linearize", s.engineOpts.Linearize),
	)
	return s, nil
}

// Feed services a pending reset, then delivers img to the engine under id.
// Engine failures become state transitions; the only error is ErrTerminated.
func (s *Session) Feed(img *frames.ImageAndExposure, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Terminated {
		return ErrTerminated
	}
	s.servicePendingLocked()
	s.feedLocked(img, id)
	return nil
}

// FeedLive services a pending reset, assigns the next live frame id, feeds
// the frame, and applies the automatic reset rule using the number of frames
// the current engine has processed. Live ids are never rewound.
func (s *Session) FeedLive(img *frames.ImageAndExposure) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Terminated {
		return -1, ErrTerminated
	}
	s.servicePendingLocked()
	id := s.liveID
	s.liveID++
	s.feedLocked(img, id)
	s.reconcileLocked(s.processed - 1)
	return id, nil
}

func (s *Session) feedLocked(img *frames.ImageAndExposure, id int) {
	if s.eng == nil && !s.constructLocked() {
		return
	}
	start := time.Now()
	s.feeding.Store(&inFlight{id: id, timestamp: img.Timestamp})
	s.eng.AddActiveFrame(img, id)
	s.feeding.Store(nil)
	s.processed++
	s.fed++
	s.metrics.FrameFed(time.Since(start).Seconds())
	s.evaluateLocked(id)
}

func (s *Session) evaluateLocked(id int) {
	prev := s.state
	switch {
	case s.eng.IsLost():
		s.state = Lost
	case s.eng.Initialized():
		s.state = Tracking
	case s.eng.InitFailed():
		s.state = InitFailed
	default:
		s.state = Uninitialized
	}
	if s.state == prev {
		return
	}
	s.metrics.EngineState(s.state.String())

	attrs := []logging.Attr{
		logging.Generation(s.generation),
		logging.FrameID(id),
		logging.Int("processed", s.processed),
	}
	switch s.state {
	case Tracking:
		s.logger.Info("engine initialized", logging.Args(attrs...)...)
	case InitFailed:
		logging.WarnWithContext(s.logger, "engine initialization failed", "engine_init_failed",
			append(attrs, logging.String(logging.FieldErrorHint, "check calibration and scene texture"))...)
	case Lost:
		logging.WarnWithContext(s.logger, "engine lost tracking", "engine_lost",
			append(attrs, logging.String(logging.FieldImpact, "playback stops; request a reset to resume"))...)
		s.registry.NotifyLost(id)
	}
}

// Reconcile applies the automatic reset rule after a frame at plan position
// index: an InitFailed engine is reset when index is below the threshold, and
// a pending request always forces a reset. It reports whether a reset ran.
func (s *Session) Reconcile(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Terminated {
		return false
	}
	return s.reconcileLocked(index)
}

func (s *Session) reconcileLocked(index int) bool {
	if s.resetRequested.Load() {
		s.resetLocked(ReasonRequested)
		return true
	}
	// An empty slot is retried by the next feed.
	if s.state != InitFailed || s.eng == nil {
		return false
	}
	if index >= s.threshold {
		return false
	}
	s.resetLocked(ReasonInitFailed)
	return true
}

// ServicePendingReset performs the reset transition if one was requested. It
// reports whether a reset ran.
func (s *Session) ServicePendingReset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Terminated {
		return false
	}
	return s.servicePendingLocked()
}

func (s *Session) servicePendingLocked() bool {
	if !s.resetRequested.Load() {
		return false
	}
	s.resetLocked(ReasonRequested)
	return true
}

// resetLocked tears down the current engine, resets every output, and
// installs a fresh engine bound to the same outputs.
func (s *Session) resetLocked(reason string) {
	s.resetRequested.Store(false)

	if old := s.eng; old != nil {
		s.eng = nil
		old.SetOutputs(nil)
		if err := old.Close(); err != nil {
			logging.WarnWithContext(s.logger, "engine close failed", "engine_close_failed",
				logging.Error(err),
				logging.Generation(s.generation),
			)
		}
	}
	s.registry.ResetAll()
	s.resets++
	s.processed = 0
	s.state = Uninitialized
	s.metrics.EngineReset(reason)

	s.constructLocked()
	s.metrics.EngineState(s.state.String())
	s.logger.Info("engine reset",
		logging.String("reason", reason),
		logging.Generation(s.generation),
		logging.Int("resets", s.resets),
		logging.Bool("engine_ready", s.eng != nil),
	)
}

func (s *Session) constructLocked() bool {
	eng, err := s.factory(s.engineOpts)
	if err != nil {
		s.state = InitFailed
		s.metrics.EngineState(s.state.String())
		logging.ErrorWithContext(s.logger, "engine construction failed", "engine_construct_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next frame retries construction"),
		)
		return false
	}
	s.install(eng)
	return true
}

func (s *Session) install(eng engine.Engine) {
	s.generation++
	if s.gamma != nil {
		eng.SetGammaFunction(s.gamma)
	}
	eng.SetOutputs(s.registry.List())
	s.eng = eng
	s.state = Uninitialized
	s.metrics.EngineGeneration(s.generation)
	s.metrics.EngineState(s.state.String())
}

// RequestReset raises the reset flag. Concurrent requests collapse into one
// transition.
func (s *Session) RequestReset() {
	s.resetRequested.Store(true)
}

// ResetPending reports whether a reset was requested and not yet serviced.
func (s *Session) ResetPending() bool {
	return s.resetRequested.Load()
}

// Initialized reports whether the current engine has initialized.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng != nil && s.state != Terminated && s.eng.Initialized()
}

// State returns the current health state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation returns the number of engines constructed so far.
// FrameTimestamp returns the capture time of the frame the engine is
// consuming when its id is frameID. It takes no lock, so outputs may call it
// while publishing.
func (s *Session) FrameTimestamp(frameID int) (float64, bool) {
	f := s.feeding.Load()
	if f == nil || f.id != frameID {
		return 0, false
	}
	return f.timestamp, true
}

func (s *Session) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// AddOutput registers out and rebinds the current engine's outputs.
func (s *Session) AddOutput(out engine.Output) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Terminated || !s.registry.Add(out) {
		return false
	}
	if s.eng != nil {
		s.eng.SetOutputs(s.registry.List())
	}
	return true
}

// RemoveOutput unregisters out and rebinds the current engine's outputs.
func (s *Session) RemoveOutput(out engine.Output) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.registry.Remove(out) {
		return false
	}
	if s.eng != nil {
		s.eng.SetOutputs(s.registry.List())
	}
	return true
}

// Outputs returns the registered outputs in registration order.
func (s *Session) Outputs() []engine.Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.List()
}

// BlockUntilMappingIsFinished waits for the current engine's background
// mapping to drain.
func (s *Session) BlockUntilMappingIsFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng != nil {
		s.eng.BlockUntilMappingIsFinished()
	}
}

// Shutdown waits for any in-flight feed, closes the engine, and leaves the
// session Terminated. Repeated calls are no-ops.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Terminated {
		return nil
	}
	s.state = Terminated
	s.metrics.EngineState(s.state.String())
	old := s.eng
	s.eng = nil
	if old == nil {
		return nil
	}
	old.SetOutputs(nil)
	if err := old.Close(); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	s.logger.Info("engine session terminated",
		logging.Generation(s.generation),
		logging.Int64("frames_fed", s.fed),
		logging.Int("resets", s.resets),
	)
	return nil
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:        s.state,
		Generation:   s.generation,
		Processed:    s.processed,
		Fed:          s.fed,
		Resets:       s.resets,
		ResetPending: s.resetRequested.Load(),
		Outputs:      s.registry.Len(),
	}
}
