package playback

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/mem"

	"vodrive/internal/frames"
)

// ErrPreloadBudget reports that a preload would not fit in memory.
var ErrPreloadBudget = errors.New("preload exceeds memory budget")

// Loader reads and undistorts one source frame.
type Loader func(ctx context.Context, index int) (*frames.ImageAndExposure, error)

// MemoryProbe reports available system memory in bytes.
type MemoryProbe func() (uint64, error)

// SystemMemory reads available memory from the operating system.
func SystemMemory() (uint64, error) {
	stat, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("read virtual memory: %w", err)
	}
	return stat.Available, nil
}

// Budget bounds preload memory to a fraction of available memory.
type Budget struct {
	Fraction float64
	Probe    MemoryProbe
}

// Buffer holds preloaded frames by plan position. Each frame is handed out
// once and then released.
type Buffer struct {
	images []*frames.ImageAndExposure
	bytes  int64
}

// Preload loads every plan entry. The first frame sizes the estimate, which
// must fit within the budget before the rest are loaded.
func Preload(ctx context.Context, plan Plan, load Loader, budget Budget) (*Buffer, error) {
	buf := &Buffer{images: make([]*frames.ImageAndExposure, plan.Len())}
	if plan.Len() == 0 {
		return buf, nil
	}

	first, err := load(ctx, plan.At(0).Index)
	if err != nil {
		return nil, fmt.Errorf("preload frame %d: %w", plan.At(0).Index, err)
	}
	estimate := first.Bytes() * int64(plan.Len())
	if err := budget.check(estimate); err != nil {
		return nil, err
	}
	buf.images[0] = first
	buf.bytes = first.Bytes()

	for i := 1; i < plan.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := load(ctx, plan.At(i).Index)
		if err != nil {
			return nil, fmt.Errorf("preload frame %d: %w", plan.At(i).Index, err)
		}
		buf.images[i] = img
		buf.bytes += img.Bytes()
	}
	return buf, nil
}

func (b Budget) check(estimate int64) error {
	probe := b.Probe
	if probe == nil {
		probe = SystemMemory
	}
	fraction := b.Fraction
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	available, err := probe()
	if err != nil {
		return err
	}
	limit := int64(float64(available) * fraction)
	if estimate > limit {
		return fmt.Errorf("%w: need %d bytes, limit %d bytes (%.0f%% of %d available)",
			ErrPreloadBudget, estimate, limit, fraction*100, available)
	}
	return nil
}

// Take returns the frame at plan position i and drops the buffer's reference.
func (b *Buffer) Take(i int) (*frames.ImageAndExposure, bool) {
	if b == nil || i < 0 || i >= len(b.images) || b.images[i] == nil {
		return nil, false
	}
	img := b.images[i]
	b.images[i] = nil
	b.bytes -= img.Bytes()
	return img, true
}

// Bytes returns the memory still held by the buffer.
func (b *Buffer) Bytes() int64 {
	if b == nil {
		return 0
	}
	return b.bytes
}

// Len returns the number of buffered positions.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.images)
}
