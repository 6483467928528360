package playback

import (
	"context"
	"time"
)

// Decision tells the playback loop what to do with a frame.
type Decision int

const (
	// Deliver hands the frame to the engine.
	Deliver Decision = iota
	// Skip drops a late frame.
	Skip
)

func (d Decision) String() string {
	if d == Skip {
		return "skip"
	}
	return "deliver"
}

// Clock supplies wall time and interruptible sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// WallClock is the real-time Clock.
type WallClock struct{}

// Now returns the current time.
func (WallClock) Now() time.Time { return time.Now() }

// Sleep blocks for d or until ctx ends.
func (WallClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// skipSlack is the base lateness, in seconds, tolerated before a frame is
// skipped. Odd plan positions get an extra tenth of a second so sustained
// light lag does not drop every other frame.
const skipSlack = 0.5

// Pacer paces delivery of plan entries against wall time. It is used by a
// single playback goroutine.
type Pacer struct {
	plan   Plan
	clock  Clock
	origin time.Time
	offset float64
}

// NewPacer starts pacing a plan with the origin at the current time.
func NewPacer(plan Plan, clock Clock) *Pacer {
	if clock == nil {
		clock = WallClock{}
	}
	return &Pacer{plan: plan, clock: clock, origin: clock.Now()}
}

// Rebase moves the elapsed-time origin to now, counting from the target time
// of plan position i.
func (p *Pacer) Rebase(i int) {
	p.origin = p.clock.Now()
	p.offset = p.plan.At(i).Time
}

// Elapsed returns the playback time since the origin, in seconds.
func (p *Pacer) Elapsed() float64 {
	return p.offset + p.clock.Now().Sub(p.origin).Seconds()
}

// Pace sleeps until plan position i is due, or returns Skip when it is more
// than the slack late. Unthrottled plans always deliver immediately. The
// only error is context cancellation during the sleep.
func (p *Pacer) Pace(ctx context.Context, i int) (Decision, error) {
	if p.plan.Unthrottled() {
		return Deliver, nil
	}
	target := p.plan.At(i).Time
	elapsed := p.Elapsed()
	if elapsed < target {
		wait := time.Duration((target - elapsed) * float64(time.Second))
		if err := p.clock.Sleep(ctx, wait); err != nil {
			return Deliver, err
		}
		return Deliver, nil
	}
	if elapsed > target+skipSlack+0.1*float64(i%2) {
		return Skip, nil
	}
	return Deliver, nil
}
