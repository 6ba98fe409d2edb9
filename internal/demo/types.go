package demo

import (
	"math"

	"github.com/dshills/statebus/internal/event"
)

// Window is the state of an application window.
type Window struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Title   string `json:"title"`
	Focused bool   `json:"focused"`
}

// FrameTiming carries per-frame performance numbers.
type FrameTiming struct {
	Frame       uint64  `json:"frame"`
	FPS         float64 `json:"fps"`
	FrameTimeMs float64 `json:"frame_time_ms"`
}

// Window members.
var (
	WindowWidth   = event.Field("Width", func(w *Window) *int { return &w.Width })
	WindowHeight  = event.Field("Height", func(w *Window) *int { return &w.Height })
	WindowTitle   = event.Field("Title", func(w *Window) *string { return &w.Title })
	WindowFocused = event.Field("Focused", func(w *Window) *bool { return &w.Focused })
)

// FrameTiming members. Float members compare with a tolerance so jitter
// below it does not count as a change.
var (
	FrameNumber = event.Field("Frame", func(f *FrameTiming) *uint64 { return &f.Frame })
	FrameFPS    = event.FieldFunc("FPS", func(f *FrameTiming) *float64 { return &f.FPS }, within(0.05))
	FrameTime   = event.FieldFunc("FrameTimeMs", func(f *FrameTiming) *float64 { return &f.FrameTimeMs }, within(0.001))
)

func within(eps float64) func(a, b float64) bool {
	return func(a, b float64) bool {
		return math.Abs(a-b) <= eps
	}
}
