package demo

import (
	"math"
	"sync/atomic"
	"time"
)

// FrameClock accumulates frame durations and turns each one into a
// FrameTiming. It is safe for concurrent use.
type FrameClock struct {
	count   atomic.Uint64
	totalNs atomic.Int64
	minNs   atomic.Int64
	maxNs   atomic.Int64
	lastNs  atomic.Int64
	dropped atomic.Uint64
}

// NewFrameClock creates an empty clock.
func NewFrameClock() *FrameClock {
	c := &FrameClock{}
	// First frame is always smaller.
	c.minNs.Store(math.MaxInt64)
	return c
}

// Record adds one frame and returns its timing.
func (c *FrameClock) Record(d time.Duration) FrameTiming {
	ns := d.Nanoseconds()

	n := c.count.Add(1)
	c.totalNs.Add(ns)
	c.lastNs.Store(ns)

	for {
		old := c.minNs.Load()
		if ns >= old || c.minNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := c.maxNs.Load()
		if ns <= old || c.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}

	ft := FrameTiming{Frame: n, FrameTimeMs: float64(ns) / 1e6}
	if ns > 0 {
		ft.FPS = 1e9 / float64(ns)
	}
	return ft
}

// Drop records a frame that was skipped because the previous one had not
// been delivered yet.
func (c *FrameClock) Drop() {
	c.dropped.Add(1)
}

// Snapshot returns the accumulated numbers.
func (c *FrameClock) Snapshot() ClockSnapshot {
	count := c.count.Load()
	var avg int64
	if count > 0 {
		avg = c.totalNs.Load() / int64(count)
	}
	minNs := c.minNs.Load()
	if minNs == math.MaxInt64 {
		minNs = 0
	}
	return ClockSnapshot{
		Frames:  count,
		Dropped: c.dropped.Load(),
		Avg:     time.Duration(avg),
		Min:     time.Duration(minNs),
		Max:     time.Duration(c.maxNs.Load()),
		Last:    time.Duration(c.lastNs.Load()),
	}
}

// ClockSnapshot is a point-in-time view of a FrameClock.
type ClockSnapshot struct {
	Frames  uint64
	Dropped uint64
	Avg     time.Duration
	Min     time.Duration
	Max     time.Duration
	Last    time.Duration
}

// AvgFPS returns the average frames per second.
func (s ClockSnapshot) AvgFPS() float64 {
	if s.Avg == 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Avg)
}

// DropRate returns the percentage of dropped frames.
func (s ClockSnapshot) DropRate() float64 {
	total := s.Frames + s.Dropped
	if total == 0 {
		return 0
	}
	return float64(s.Dropped) / float64(total) * 100
}
