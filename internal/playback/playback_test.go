package playback_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"vodrive/internal/frames"
	"vodrive/internal/playback"
)

func planTimes(p playback.Plan) []float64 {
	out := make([]float64, p.Len())
	for i := range out {
		out[i] = p.At(i).Time
	}
	return out
}

func approxEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestNewPlanTimes(t *testing.T) {
	indices := []int{0, 1, 2, 3}
	timestamps := []float64{0, 1, 3, 6}

	tests := []struct {
		speed float64
		want  []float64
	}{
		{1, []float64{0, 1, 3, 6}},
		{2, []float64{0, 0.5, 1.5, 3.0}},
		{0, []float64{0, 0, 0, 0}},
	}
	for _, tt := range tests {
		plan, err := playback.NewPlan(indices, timestamps, tt.speed)
		if err != nil {
			t.Fatalf("NewPlan(speed=%v): %v", tt.speed, err)
		}
		if got := planTimes(plan); !approxEqual(got, tt.want) {
			t.Fatalf("speed %v: times %v, want %v", tt.speed, got, tt.want)
		}
	}
}

func TestNewPlanReverseUsesAbsoluteDeltas(t *testing.T) {
	indices := playback.Indices(4, 0, 4, true)
	timestamps := []float64{6, 3, 1, 0}
	plan, err := playback.NewPlan(indices, timestamps, 1)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	if got := planTimes(plan); !approxEqual(got, []float64{0, 3, 5, 6}) {
		t.Fatalf("unexpected times %v", got)
	}
	if plan.At(0).Index != 3 || plan.At(3).Index != 0 {
		t.Fatalf("unexpected indices %v", plan.Entries())
	}
	if plan.Duration() != 6 {
		t.Fatalf("duration = %v", plan.Duration())
	}
}

func TestNewPlanErrors(t *testing.T) {
	if _, err := playback.NewPlan([]int{0, 1}, []float64{0}, 1); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if _, err := playback.NewPlan([]int{0}, []float64{0}, -1); err == nil {
		t.Fatal("expected negative speed error")
	}
}

func TestIndices(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		start, end int
		reverse    bool
		want       []int
	}{
		{"all", 3, 0, 100000, false, []int{0, 1, 2}},
		{"window", 10, 2, 5, false, []int{2, 3, 4}},
		{"reverse", 10, 2, 5, true, []int{4, 3, 2}},
		{"empty", 3, 5, 8, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := playback.Indices(tt.n, tt.start, tt.end, tt.reverse)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

// fakeClock advances only when told to or when slept on.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestPacerSleepsUntilDue(t *testing.T) {
	plan, _ := playback.NewPlan([]int{0, 1, 2}, []float64{0, 1, 2}, 1)
	clock := newFakeClock()
	pacer := playback.NewPacer(plan, clock)

	decision, err := pacer.Pace(context.Background(), 0)
	if err != nil || decision != playback.Deliver {
		t.Fatalf("frame 0: %v %v", decision, err)
	}
	clock.Advance(250 * time.Millisecond)
	decision, err = pacer.Pace(context.Background(), 1)
	if err != nil || decision != playback.Deliver {
		t.Fatalf("frame 1: %v %v", decision, err)
	}
	if len(clock.slept) != 1 || clock.slept[0] != 750*time.Millisecond {
		t.Fatalf("expected one 750ms sleep, got %v", clock.slept)
	}
}

func TestPacerSkipThreshold(t *testing.T) {
	plan, _ := playback.NewPlan([]int{0, 1, 2, 3}, []float64{0, 1, 2, 3}, 1)

	tests := []struct {
		name string
		pos  int
		late time.Duration
		want playback.Decision
	}{
		{"even within slack", 2, 500 * time.Millisecond, playback.Deliver},
		{"even past slack", 2, 510 * time.Millisecond, playback.Skip},
		{"odd within staggered slack", 3, 590 * time.Millisecond, playback.Deliver},
		{"odd past staggered slack", 3, 610 * time.Millisecond, playback.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			pacer := playback.NewPacer(plan, clock)
			target := time.Duration(plan.At(tt.pos).Time * float64(time.Second))
			clock.Advance(target + tt.late)

			decision, err := pacer.Pace(context.Background(), tt.pos)
			if err != nil {
				t.Fatalf("Pace: %v", err)
			}
			if decision != tt.want {
				t.Fatalf("decision = %v, want %v", decision, tt.want)
			}
			if len(clock.slept) != 0 {
				t.Fatalf("late frames must not sleep, slept %v", clock.slept)
			}
		})
	}
}

func TestPacerRebaseRestartsOrigin(t *testing.T) {
	plan, _ := playback.NewPlan([]int{0, 1, 2, 3}, []float64{0, 1, 2, 3}, 1)
	clock := newFakeClock()
	pacer := playback.NewPacer(plan, clock)

	clock.Advance(10 * time.Second)
	pacer.Rebase(2)
	if got := pacer.Elapsed(); got != 2 {
		t.Fatalf("elapsed after rebase = %v, want 2", got)
	}
	decision, err := pacer.Pace(context.Background(), 2)
	if err != nil || decision != playback.Deliver {
		t.Fatalf("expected rebased frame to deliver, got %v %v", decision, err)
	}
}

func TestPacerUnthrottledNeverWaits(t *testing.T) {
	plan, _ := playback.NewPlan([]int{0, 1}, []float64{0, 100}, 0)
	clock := newFakeClock()
	pacer := playback.NewPacer(plan, clock)
	clock.Advance(time.Hour)
	for i := 0; i < plan.Len(); i++ {
		decision, err := pacer.Pace(context.Background(), i)
		if err != nil || decision != playback.Deliver {
			t.Fatalf("frame %d: %v %v", i, decision, err)
		}
	}
	if len(clock.slept) != 0 {
		t.Fatalf("unexpected sleeps %v", clock.slept)
	}
}

func TestWallClockSleepHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := playback.WallClock{}.Sleep(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep ignored cancellation")
	}
}

func TestPreloadBuffersAndReleases(t *testing.T) {
	plan, _ := playback.NewPlan([]int{4, 5, 6}, []float64{0, 1, 2}, 1)
	var loaded []int
	load := func(_ context.Context, index int) (*frames.ImageAndExposure, error) {
		loaded = append(loaded, index)
		return frames.NewImageAndExposure(4, 4, 0, float64(index)), nil
	}
	probe := func() (uint64, error) { return 1 << 20, nil }

	buf, err := playback.Preload(context.Background(), plan, load, playback.Budget{Fraction: 0.5, Probe: probe})
	if err != nil {
		t.Fatalf("Preload: %v", err)
	}
	if len(loaded) != 3 || loaded[0] != 4 || loaded[2] != 6 {
		t.Fatalf("unexpected load order %v", loaded)
	}
	if buf.Bytes() != 3*64 {
		t.Fatalf("bytes = %d, want 192", buf.Bytes())
	}

	img, ok := buf.Take(1)
	if !ok || img.Timestamp != 5 {
		t.Fatalf("Take(1) = %+v, %v", img, ok)
	}
	if _, ok := buf.Take(1); ok {
		t.Fatal("expected frame to be released after first take")
	}
	if buf.Bytes() != 2*64 {
		t.Fatalf("bytes after take = %d", buf.Bytes())
	}
}

func TestPreloadRejectsOverBudget(t *testing.T) {
	plan, _ := playback.NewPlan([]int{0, 1, 2, 3}, []float64{0, 0, 0, 0}, 0)
	calls := 0
	load := func(_ context.Context, index int) (*frames.ImageAndExposure, error) {
		calls++
		return frames.NewImageAndExposure(100, 100, 0, 0), nil
	}
	probe := func() (uint64, error) { return 100000, nil }

	_, err := playback.Preload(context.Background(), plan, load, playback.Budget{Fraction: 1, Probe: probe})
	if !errors.Is(err, playback.ErrPreloadBudget) {
		t.Fatalf("expected ErrPreloadBudget, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected only the sizing frame to load, got %d", calls)
	}
}
