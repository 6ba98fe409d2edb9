package demo

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/statebus/internal/config"
	"github.com/dshills/statebus/internal/event"
	"github.com/dshills/statebus/internal/event/dispatch"
)

func newBuses(t *testing.T) *Buses {
	t.Helper()
	pool := dispatch.NewPool(dispatch.WithWorkers(2))
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	b, err := NewBuses(pool, zerolog.Nop())
	require.NoError(t, err)
	return b
}

func TestNewBuses(t *testing.T) {
	b := newBuses(t)

	assert.Equal(t, []string{"Width", "Height", "Title", "Focused"}, b.Window.Members())
	assert.Equal(t, []string{"Frame", "FPS", "FrameTimeMs"}, b.Frame.Members())

	ins := b.Inspectors()
	require.Len(t, ins, 2)
	assert.Equal(t, FrameBus, ins[0].Name())
	assert.Equal(t, WindowBus, ins[1].Name())

	got, ok := b.Lookup(WindowBus)
	require.True(t, ok)
	assert.Equal(t, WindowBus, got.Name())
	_, ok = b.Lookup("audio")
	assert.False(t, ok)
}

func TestRunScenario(t *testing.T) {
	b := newBuses(t)
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := RunScenario(ctx, b, DefaultScenario(), &out)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"width updated: 1",
		"height updated: 1",
		`window updated: 1x1 "sandbox" changed=true`,
		`window updated: 1x2 "sandbox" changed=true`,
		"width updated: 5",
		"height updated: 4",
		`window updated: 5x4 "sandbox" changed=true`,
		`window updated: 5x5 "sandbox" changed=true`,
		"frames: 4 topics, 40 frames, 4 fps changes",
	}, rep.Lines())
	assert.Contains(t, out.String(), "height updated: 4\n")

	cur, ok := b.Window.CurrentState("main")
	require.True(t, ok)
	assert.Equal(t, Window{Width: 5, Height: 5, Title: "sandbox"}, cur)

	// The echo subscriber never heard its own two publishes.
	assert.Equal(t, uint64(2), b.Window.Stats().Suppressed)
	assert.Len(t, b.Frame.Topics("main.frames.*"), 4)
}

func TestFrameMembers_Tolerance(t *testing.T) {
	a := FrameTiming{FPS: 60, FrameTimeMs: 16.6}
	b := a
	b.FPS = 60.04
	assert.Equal(t, 60.04, FrameFPS.Get(b))

	bus := event.NewBus[FrameTiming](nil)
	require.NoError(t, bus.RegisterMembers(FrameFPS))
	calls := 0
	sub := event.SubscribeMember(bus, "t", event.NextIdentity(), FrameFPS, func(ctx context.Context, v float64) error {
		calls++
		return nil
	}, event.NotifyOnChange)
	defer sub.Close()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, "t", event.Unidentified, a))
	require.NoError(t, bus.Publish(ctx, "t", event.Unidentified, b))
	b.FPS = 30
	require.NoError(t, bus.Publish(ctx, "t", event.Unidentified, b))
	assert.Equal(t, 2, calls)
}

func TestFrameClock(t *testing.T) {
	c := NewFrameClock()
	assert.Zero(t, c.Snapshot().Min)
	assert.Zero(t, c.Snapshot().AvgFPS())

	ft := c.Record(20 * time.Millisecond)
	assert.Equal(t, uint64(1), ft.Frame)
	assert.InDelta(t, 50.0, ft.FPS, 0.001)
	assert.InDelta(t, 20.0, ft.FrameTimeMs, 0.001)

	c.Record(10 * time.Millisecond)
	c.Drop()

	s := c.Snapshot()
	assert.Equal(t, uint64(2), s.Frames)
	assert.Equal(t, 10*time.Millisecond, s.Min)
	assert.Equal(t, 20*time.Millisecond, s.Max)
	assert.Equal(t, 15*time.Millisecond, s.Avg)
	assert.Equal(t, 10*time.Millisecond, s.Last)
	assert.InDelta(t, 33.33, s.DropRate(), 0.01)

	last := c.Record(0)
	assert.Equal(t, uint64(3), last.Frame)
	assert.Zero(t, last.FPS)
}

func TestDriver_StopsAfterFrames(t *testing.T) {
	b := newBuses(t)
	d := NewDriver(b, config.DemoConfig{Topic: "main", IntervalMS: 1, Frames: 12}, zerolog.Nop())

	d.Start(context.Background())
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not stop after its frame limit")
	}
	require.NoError(t, d.Stop(context.Background()))

	s := d.Clock().Snapshot()
	assert.Equal(t, uint64(12), s.Frames)

	require.Eventually(t, func() bool {
		cur, ok := b.Frame.CurrentState("main")
		return ok && cur.Frame == 12
	}, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		w, ok := b.Window.CurrentState("main")
		return ok && w.Width == 1280+160
	}, 2*time.Second, time.Millisecond)
}

func TestDriver_DisabledAndStop(t *testing.T) {
	b := newBuses(t)

	idle := NewDriver(b, config.DemoConfig{Topic: "main"}, zerolog.Nop())
	idle.Start(context.Background())
	assert.Nil(t, idle.Done())
	assert.NoError(t, idle.Stop(context.Background()))

	d := NewDriver(b, config.DemoConfig{Topic: "main", IntervalMS: 1}, zerolog.Nop())
	d.Start(context.Background())
	require.Eventually(t, func() bool { return d.Clock().Snapshot().Frames > 0 }, 2*time.Second, time.Millisecond)
	require.NoError(t, d.Stop(context.Background()))

	select {
	case <-d.Done():
	default:
		t.Fatal("Stop returned before the loop exited")
	}
}

func TestLoadScript(t *testing.T) {
	b := newBuses(t)
	var logs bytes.Buffer
	log := zerolog.New(&logs)

	width, err := LoadScript(b, config.ScriptConfig{
		Path: filepath.Join("testdata", "focus.lua"), Bus: WindowBus,
		Topic: "main", Handler: "on_width", Member: "Width", Mode: "change",
	}, log)
	require.NoError(t, err)
	defer width.Close()

	frames, err := LoadScript(b, config.ScriptConfig{
		Path: filepath.Join("testdata", "focus.lua"), Bus: FrameBus,
		Topic: "main", Handler: "on_frame", Mode: "always",
	}, log)
	require.NoError(t, err)
	defer frames.Close()

	ctx := context.Background()
	require.NoError(t, b.Window.Publish(ctx, "main", event.Unidentified, Window{Width: 800}))
	require.NoError(t, b.Frame.Publish(ctx, "main", event.Unidentified, FrameTiming{Frame: 1}))

	require.Eventually(t, func() bool {
		w, ok := b.Window.CurrentState("preview")
		return ok && w.Width == 400
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, logs.String(), `width changed\t800`)

	calls, failures := frames.Stats()
	assert.Zero(t, failures)
	assert.Positive(t, calls)
}

func TestLoadScript_Errors(t *testing.T) {
	b := newBuses(t)
	path := filepath.Join("testdata", "focus.lua")

	_, err := LoadScript(b, config.ScriptConfig{Path: path, Bus: WindowBus, Handler: "on_width", Mode: "never"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown mode")

	_, err = LoadScript(b, config.ScriptConfig{Path: path, Bus: "audio", Handler: "on_width"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown bus")

	_, err = LoadScript(b, config.ScriptConfig{Path: path, Bus: WindowBus, Handler: "missing"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = LoadScript(b, config.ScriptConfig{Path: "testdata/none.lua", Bus: WindowBus, Handler: "on_width"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = LoadScript(b, config.ScriptConfig{Path: path, Bus: WindowBus, Handler: "on_width", Member: "Depth"}, zerolog.Nop())
	assert.ErrorIs(t, err, event.ErrUnknownMember)
}
