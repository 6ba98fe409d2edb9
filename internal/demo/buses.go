package demo

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dshills/statebus/internal/event"
)

// Bus names.
const (
	WindowBus = "window"
	FrameBus  = "frame"
)

// Buses holds one bus per demo event type.
type Buses struct {
	Window *event.Bus[Window]
	Frame  *event.Bus[FrameTiming]
}

// NewBuses creates both buses on pool and registers their members.
// A nil pool runs each async drain on its own goroutine.
func NewBuses(pool event.Submitter, log zerolog.Logger, opts ...event.Option) (*Buses, error) {
	withName := func(name string) []event.Option {
		o := []event.Option{event.WithName(name), event.WithLogger(log)}
		return append(o, opts...)
	}

	b := &Buses{
		Window: event.NewBus[Window](pool, withName(WindowBus)...),
		Frame:  event.NewBus[FrameTiming](pool, withName(FrameBus)...),
	}
	if err := b.Window.RegisterMembers(WindowWidth, WindowHeight, WindowTitle, WindowFocused); err != nil {
		return nil, fmt.Errorf("register window members: %w", err)
	}
	if err := b.Frame.RegisterMembers(FrameNumber, FrameFPS, FrameTime); err != nil {
		return nil, fmt.Errorf("register frame members: %w", err)
	}
	return b, nil
}

// Inspectors returns both buses sorted by name.
func (b *Buses) Inspectors() []event.Inspector {
	out := []event.Inspector{b.Window, b.Frame}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Lookup returns the bus with the given name.
func (b *Buses) Lookup(name string) (event.Inspector, bool) {
	switch name {
	case b.Window.Name():
		return b.Window, true
	case b.Frame.Name():
		return b.Frame, true
	default:
		return nil, false
	}
}
