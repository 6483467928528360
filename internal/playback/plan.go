package playback

import (
	"errors"
	"fmt"
	"math"
)

// Entry is one frame of a plan.
type Entry struct {
	// Index is the frame index in the source sequence.
	Index int `json:"index"`
	// Time is the target presentation time in seconds since the run started.
	Time float64 `json:"time"`
}

// Plan is an immutable, ordered playback schedule. Times are non-decreasing
// and the first entry is always at zero.
type Plan struct {
	entries []Entry
	speed   float64
}

// NewPlan derives target times from per-index timestamps:
// time[0] = 0 and time[i] = time[i-1] + |ts[i] - ts[i-1]| / speed.
// Speed zero is the unthrottled mode in which every time is zero.
func NewPlan(indices []int, timestamps []float64, speed float64) (Plan, error) {
	if len(indices) != len(timestamps) {
		return Plan{}, fmt.Errorf("plan: %d indices but %d timestamps", len(indices), len(timestamps))
	}
	if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return Plan{}, fmt.Errorf("plan: invalid speed %v", speed)
	}
	entries := make([]Entry, len(indices))
	for i, index := range indices {
		entries[i].Index = index
		if i == 0 || speed == 0 {
			continue
		}
		entries[i].Time = entries[i-1].Time + math.Abs(timestamps[i]-timestamps[i-1])/speed
	}
	return Plan{entries: entries, speed: speed}, nil
}

// Len returns the number of entries.
func (p Plan) Len() int { return len(p.entries) }

// At returns the entry at plan position i.
func (p Plan) At(i int) Entry { return p.entries[i] }

// Entries returns a copy of the schedule.
func (p Plan) Entries() []Entry { return append([]Entry(nil), p.entries...) }

// Speed returns the playback speed factor.
func (p Plan) Speed() float64 { return p.speed }

// Unthrottled reports whether frames are delivered without pacing.
func (p Plan) Unthrottled() bool { return p.speed == 0 }

// Duration returns the target time of the last entry.
func (p Plan) Duration() float64 {
	if len(p.entries) == 0 {
		return 0
	}
	return p.entries[len(p.entries)-1].Time
}

// ErrEmptySelection reports a frame range that selects nothing.
var ErrEmptySelection = errors.New("frame selection is empty")

// Indices selects the frame indices [start, end) of a sequence of n frames,
// clamped to the sequence, optionally in reverse order.
func Indices(n, start, end int, reverse bool) []int {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start >= end {
		return nil
	}
	out := make([]int, 0, end-start)
	if reverse {
		for i := end - 1; i >= start; i-- {
			out = append(out, i)
		}
		return out
	}
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}
