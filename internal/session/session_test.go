package session_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"vodrive/internal/engine"
	"vodrive/internal/engine/stationary"
	"vodrive/internal/frames"
	"vodrive/internal/session"
	"vodrive/internal/testsupport"
)

// engineTracker constructs fake engines and records contract violations.
type engineTracker struct {
	initAt int
	failAt int
	lostAt int

	failConstruct func(call int) bool

	mu         sync.Mutex
	calls      int
	engines    []*fakeEngine
	live       int
	violations []string
	inFeed     atomic.Int32
}

func (tr *engineTracker) factory(engine.Options) (engine.Engine, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.calls++
	if tr.failConstruct != nil && tr.failConstruct(tr.calls) {
		return nil, errors.New("construct failed")
	}
	tr.live++
	if tr.live > 1 {
		tr.violations = append(tr.violations, "two engines live")
	}
	eng := &fakeEngine{tracker: tr, initAt: tr.initAt, failAt: tr.failAt, lostAt: tr.lostAt}
	tr.engines = append(tr.engines, eng)
	return eng, nil
}

func (tr *engineTracker) violate(msg string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.violations = append(tr.violations, msg)
}

func (tr *engineTracker) engine(i int) *fakeEngine {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.engines[i]
}

func (tr *engineTracker) count() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.engines)
}

func (tr *engineTracker) check(t *testing.T) {
	t.Helper()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.violations) > 0 {
		t.Fatalf("engine contract violations: %v", tr.violations)
	}
}

type fakeEngine struct {
	tracker *engineTracker
	initAt  int
	failAt  int
	lostAt  int

	frames  []int
	outputs []engine.Output
	gamma   []float32
	closed  int
}

func (e *fakeEngine) AddActiveFrame(_ *frames.ImageAndExposure, id int) {
	if e.tracker.inFeed.Add(1) > 1 {
		e.tracker.violate("concurrent feeds")
	}
	defer e.tracker.inFeed.Add(-1)
	if e.closed > 0 {
		e.tracker.violate("feed on closed engine")
	}
	e.frames = append(e.frames, id)
	if e.Initialized() && !e.IsLost() {
		for _, out := range e.outputs {
			out.PublishPose(engine.Identity(), id)
		}
	}
}

func (e *fakeEngine) Initialized() bool {
	return e.initAt > 0 && len(e.frames) >= e.initAt
}

func (e *fakeEngine) InitFailed() bool {
	return e.failAt > 0 && len(e.frames) >= e.failAt && !e.Initialized()
}

func (e *fakeEngine) IsLost() bool {
	return e.lostAt > 0 && len(e.frames) >= e.lostAt
}

func (e *fakeEngine) SetGammaFunction(gamma []float32)   { e.gamma = gamma }
func (e *fakeEngine) SetOutputs(outputs []engine.Output) { e.outputs = outputs }
func (e *fakeEngine) BlockUntilMappingIsFinished()       {}

func (e *fakeEngine) Close() error {
	e.closed++
	e.tracker.mu.Lock()
	e.tracker.live--
	e.tracker.mu.Unlock()
	return nil
}

type recordingOutput struct {
	mu     sync.Mutex
	resets int
	poses  []int
	lost   []int
}

func (o *recordingOutput) PublishPose(_ engine.Pose, frameID int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.poses = append(o.poses, frameID)
}

func (o *recordingOutput) PublishKeyFrames([]engine.KeyFrame, bool) {}
func (o *recordingOutput) PublishLiveFrame(frames.Image, int)       {}

func (o *recordingOutput) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resets++
}

func (o *recordingOutput) TrackingLost(frameID int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lost = append(o.lost, frameID)
}

func (o *recordingOutput) resetCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resets
}

func (o *recordingOutput) poseCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.poses)
}

func newImage() *frames.ImageAndExposure {
	return frames.NewImageAndExposure(2, 2, 1, 0)
}

func newSession(t *testing.T, tr *engineTracker, threshold int) *session.Session {
	t.Helper()
	s, err := session.New(session.Options{Factory: tr.factory, ResetThreshold: threshold})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestNewRequiresWorkingFactory(t *testing.T) {
	if _, err := session.New(session.Options{}); err == nil {
		t.Fatal("expected error without factory")
	}
	tr := &engineTracker{failConstruct: func(int) bool { return true }}
	if _, err := session.New(session.Options{Factory: tr.factory}); err == nil {
		t.Fatal("expected construction error to surface from New")
	}
}

func TestFeedTransitionsToTracking(t *testing.T) {
	tr := &engineTracker{initAt: 3}
	s := newSession(t, tr, 0)

	for i := 0; i < 2; i++ {
		if err := s.Feed(newImage(), i); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	if s.State() != session.Uninitialized || s.Initialized() {
		t.Fatalf("expected uninitialized after 2 frames, got %s", s.State())
	}
	if err := s.Feed(newImage(), 2); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if s.State() != session.Tracking || !s.Initialized() {
		t.Fatalf("expected tracking, got %s", s.State())
	}
	if got := tr.engine(0).frames; len(got) != 3 || got[2] != 2 {
		t.Fatalf("unexpected frames delivered: %v", got)
	}
}

func TestResetThreshold(t *testing.T) {
	tr := &engineTracker{failAt: 1}
	out := &recordingOutput{}
	s := newSession(t, tr, 250)
	s.AddOutput(out)

	if err := s.Feed(newImage(), 300); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if s.State() != session.InitFailed {
		t.Fatalf("expected init_failed, got %s", s.State())
	}
	if s.Reconcile(300) {
		t.Fatal("init failure at index 300 must not reset")
	}
	if s.Generation() != 1 || out.resetCount() != 0 {
		t.Fatalf("unexpected reset: generation %d resets %d", s.Generation(), out.resetCount())
	}

	if !s.Reconcile(100) {
		t.Fatal("init failure at index 100 must reset")
	}
	if s.Generation() != 2 || out.resetCount() != 1 {
		t.Fatalf("expected one reset: generation %d resets %d", s.Generation(), out.resetCount())
	}
	if s.State() != session.Uninitialized {
		t.Fatalf("expected uninitialized after reset, got %s", s.State())
	}
	if tr.engine(0).closed != 1 {
		t.Fatalf("expected old engine closed once, got %d", tr.engine(0).closed)
	}
	tr.check(t)
}

func irradianceOf(img frames.Image) *frames.ImageAndExposure {
	out := frames.NewImageAndExposure(img.Width, img.Height, 0, 0)
	for i, p := range img.Pix {
		out.Irradiance[i] = float32(p)
	}
	return out
}

func TestLateInitFailureRecoversToTracking(t *testing.T) {
	cfg := stationary.Config{InitFrames: 2, InitFailFrames: 3, KeyFrameInterval: 5, TextureThreshold: 2}
	s, err := session.New(session.Options{Factory: stationary.NewFactory(cfg), ResetThreshold: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown() })
	out := &recordingOutput{}
	s.AddOutput(out)

	feed := func(img frames.Image, id int) {
		t.Helper()
		s.Reconcile(id)
		if err := s.Feed(irradianceOf(img), id); err != nil {
			t.Fatalf("Feed %d: %v", id, err)
		}
	}
	for id := 0; id < 3; id++ {
		feed(testsupport.FlatImage(16, 16), id)
	}
	if s.State() != session.InitFailed {
		t.Fatalf("expected init_failed after flat frames, got %s", s.State())
	}
	for id := 3; id < 8; id++ {
		feed(testsupport.TexturedImage(16, 16), id)
	}
	if s.State() != session.Tracking || !s.Initialized() {
		t.Fatalf("expected tracking once the engine initializes, got %s", s.State())
	}
	if s.Generation() != 1 || out.resetCount() != 0 {
		t.Fatalf("expected no reset above the threshold: generation %d resets %d", s.Generation(), out.resetCount())
	}
	if out.poseCount() == 0 {
		t.Fatal("expected poses after recovery")
	}
}

func TestRequestedResetIgnoresThreshold(t *testing.T) {
	tr := &engineTracker{initAt: 1}
	s := newSession(t, tr, 250)
	if err := s.Feed(newImage(), 0); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	s.RequestReset()
	if !s.ResetPending() {
		t.Fatal("expected pending reset")
	}
	if !s.Reconcile(1000) {
		t.Fatal("requested reset must run regardless of index")
	}
	if s.ResetPending() {
		t.Fatal("expected reset flag cleared")
	}
	if s.Stats().Resets != 1 {
		t.Fatalf("expected 1 reset, got %d", s.Stats().Resets)
	}
}

func TestPendingResetServicedBeforeFeedAndCollapses(t *testing.T) {
	tr := &engineTracker{initAt: 1}
	out := &recordingOutput{}
	s := newSession(t, tr, 0)
	s.AddOutput(out)

	s.RequestReset()
	s.RequestReset()
	s.RequestReset()
	if err := s.Feed(newImage(), 7); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if out.resetCount() != 1 {
		t.Fatalf("expected requests to collapse into one reset, got %d", out.resetCount())
	}
	if tr.count() != 2 {
		t.Fatalf("expected 2 engines constructed, got %d", tr.count())
	}
	if len(tr.engine(0).frames) != 0 {
		t.Fatal("old engine must not receive the frame")
	}
	if got := tr.engine(1).frames; len(got) != 1 || got[0] != 7 {
		t.Fatalf("new engine frames: %v", got)
	}
	if s.ServicePendingReset() {
		t.Fatal("no reset should be pending")
	}
	tr.check(t)
}

func TestObserverContinuityAcrossResets(t *testing.T) {
	tr := &engineTracker{initAt: 1}
	out := &recordingOutput{}
	s := newSession(t, tr, 0)
	if !s.AddOutput(out) || s.AddOutput(out) {
		t.Fatal("expected first add to succeed and duplicate to be ignored")
	}

	id := 0
	for round := 1; round <= 3; round++ {
		if err := s.Feed(newImage(), id); err != nil {
			t.Fatalf("Feed: %v", err)
		}
		id++
		s.RequestReset()
		if !s.ServicePendingReset() {
			t.Fatal("expected reset to run")
		}
		if out.resetCount() != round {
			t.Fatalf("round %d: expected %d resets, got %d", round, round, out.resetCount())
		}
	}
	if err := s.Feed(newImage(), id); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	out.mu.Lock()
	poses := append([]int(nil), out.poses...)
	out.mu.Unlock()
	if len(poses) != 4 || poses[3] != 3 {
		t.Fatalf("expected poses from every engine, got %v", poses)
	}
	last := tr.engine(tr.count() - 1)
	if len(last.outputs) != 1 || last.outputs[0] != out {
		t.Fatalf("expected output reattached to the new engine: %v", last.outputs)
	}
	for i := 0; i < tr.count()-1; i++ {
		if tr.engine(i).outputs != nil {
			t.Fatalf("engine %d still has outputs attached", i)
		}
	}
}

func TestGammaReattachedOnReset(t *testing.T) {
	tr := &engineTracker{}
	gamma := []float32{0, 1, 2}
	s, err := session.New(session.Options{Factory: tr.factory, Gamma: gamma})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()

	s.RequestReset()
	s.ServicePendingReset()
	for i := 0; i < tr.count(); i++ {
		if got := tr.engine(i).gamma; len(got) != 3 || got[2] != 2 {
			t.Fatalf("engine %d gamma: %v", i, got)
		}
	}
}

func TestLostNotifiesOnce(t *testing.T) {
	tr := &engineTracker{initAt: 1, lostAt: 3}
	out := &recordingOutput{}
	s := newSession(t, tr, 0)
	s.AddOutput(out)

	for i := 0; i < 5; i++ {
		if err := s.Feed(newImage(), 10+i); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	if s.State() != session.Lost {
		t.Fatalf("expected lost, got %s", s.State())
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.lost) != 1 || out.lost[0] != 12 {
		t.Fatalf("expected one loss notification at frame 12, got %v", out.lost)
	}
	if tr.engine(0).closed != 0 {
		t.Fatal("loss must not destroy the engine")
	}
}

func TestConstructionFailureRetriesOnNextFeed(t *testing.T) {
	tr := &engineTracker{initAt: 1}
	tr.failConstruct = func(call int) bool { return call == 2 }
	s := newSession(t, tr, 0)

	s.RequestReset()
	s.ServicePendingReset()
	if s.State() != session.InitFailed {
		t.Fatalf("expected init_failed after failed construction, got %s", s.State())
	}
	if s.Reconcile(0) {
		t.Fatal("empty slot must wait for the next feed")
	}
	if err := s.Feed(newImage(), 1); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if s.Generation() != 2 || s.State() != session.Tracking {
		t.Fatalf("expected retried engine tracking, generation %d state %s", s.Generation(), s.State())
	}
	if got := tr.engine(1).frames; len(got) != 1 {
		t.Fatalf("expected frame delivered to retried engine: %v", got)
	}
	tr.check(t)
}

func TestShutdownIsIdempotent(t *testing.T) {
	tr := &engineTracker{}
	s, err := session.New(session.Options{Factory: tr.factory})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if tr.engine(0).closed != 1 {
		t.Fatalf("expected engine closed once, got %d", tr.engine(0).closed)
	}
	if s.State() != session.Terminated {
		t.Fatalf("expected terminated, got %s", s.State())
	}
	if err := s.Feed(newImage(), 0); !errors.Is(err, session.ErrTerminated) {
		t.Fatalf("expected ErrTerminated, got %v", err)
	}
	if _, err := s.FeedLive(newImage()); !errors.Is(err, session.ErrTerminated) {
		t.Fatalf("expected ErrTerminated from live feed, got %v", err)
	}
	s.RequestReset()
	if s.ServicePendingReset() || s.Reconcile(0) {
		t.Fatal("terminated session must not reset")
	}
}

func TestFeedLiveIDsNeverRewind(t *testing.T) {
	tr := &engineTracker{initAt: 1}
	s := newSession(t, tr, 0)

	var ids []int
	for i := 0; i < 6; i++ {
		if i == 3 {
			s.RequestReset()
		}
		id, err := s.FeedLive(newImage())
		if err != nil {
			t.Fatalf("FeedLive: %v", err)
		}
		ids = append(ids, id)
	}
	for i, id := range ids {
		if id != i {
			t.Fatalf("expected ids 0..5, got %v", ids)
		}
	}
	if got := tr.engine(1).frames; len(got) != 3 || got[0] != 3 {
		t.Fatalf("expected new engine to continue at id 3: %v", got)
	}
}

func TestFeedLiveResetsOnEarlyInitFailure(t *testing.T) {
	tr := &engineTracker{failAt: 2}
	out := &recordingOutput{}
	s := newSession(t, tr, 250)
	s.AddOutput(out)

	for i := 0; i < 4; i++ {
		if _, err := s.FeedLive(newImage()); err != nil {
			t.Fatalf("FeedLive: %v", err)
		}
	}
	if out.resetCount() != 2 {
		t.Fatalf("expected a reset every second frame, got %d", out.resetCount())
	}
	if s.Stats().Fed != 4 {
		t.Fatalf("expected 4 frames fed, got %d", s.Stats().Fed)
	}
}

func TestConcurrentFeedsAndResetsKeepOneEngine(t *testing.T) {
	tr := &engineTracker{initAt: 2}
	out := &recordingOutput{}
	s := newSession(t, tr, 0)
	s.AddOutput(out)

	var wg sync.WaitGroup
	const perWorker = 200
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < perWorker; i++ {
			if err := s.Feed(newImage(), i); err != nil {
				t.Errorf("Feed: %v", err)
				return
			}
			s.Reconcile(i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perWorker; i++ {
			if _, err := s.FeedLive(newImage()); err != nil {
				t.Errorf("FeedLive: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s.RequestReset()
		}
	}()
	wg.Wait()
	s.ServicePendingReset()

	tr.check(t)
	stats := s.Stats()
	if stats.Fed != 2*perWorker {
		t.Fatalf("expected %d frames fed, got %d", 2*perWorker, stats.Fed)
	}
	if stats.Resets != out.resetCount() {
		t.Fatalf("observer saw %d resets, session made %d", out.resetCount(), stats.Resets)
	}
	if stats.Generation != stats.Resets+1 {
		t.Fatalf("expected generation %d, got %d", stats.Resets+1, stats.Generation)
	}
}
