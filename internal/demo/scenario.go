package demo

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/statebus/internal/event"
	"github.com/dshills/statebus/internal/event/topic"
)

// Report lists what the subscribers observed during a scenario run.
type Report struct {
	mu    sync.Mutex
	lines []string
	out   io.Writer

	// Frame publishing summary.
	FrameTopics int
	Frames      int
	FPSChanges  int
}

func (r *Report) add(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if r.out != nil {
		fmt.Fprintln(r.out, line)
	}
}

// Lines returns the observed notifications in delivery order.
func (r *Report) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// ScenarioOptions tunes RunScenario.
type ScenarioOptions struct {
	// Topic is the window topic. Frame topics are nested under it.
	Topic string
	// Publishers is the number of concurrent frame publishers.
	Publishers int
	// FramesPerPublisher is the number of frames each publisher sends.
	FramesPerPublisher int
}

// DefaultScenario returns the options used by `statebus demo`.
func DefaultScenario() ScenarioOptions {
	return ScenarioOptions{Topic: "main", Publishers: 4, FramesPerPublisher: 10}
}

// RunScenario exercises every bus operation once and reports the
// notifications observed. Lines are also written to w when it is not nil.
//
// The window part seeds a snapshot, publishes a whole update and a member
// update asynchronously and waits for both. A member subscriber re-publishes
// every height it sees plus one under its own identity; it never hears its
// own echo. The frame part runs concurrent publishers on separate topics.
func RunScenario(ctx context.Context, b *Buses, opts ScenarioOptions, w io.Writer) (*Report, error) {
	rep := &Report{out: w}
	if err := runWindow(ctx, b.Window, opts.Topic, rep); err != nil {
		return rep, fmt.Errorf("window scenario: %w", err)
	}
	if err := runFrames(ctx, b.Frame, opts, rep); err != nil {
		return rep, fmt.Errorf("frame scenario: %w", err)
	}
	return rep, nil
}

func runWindow(ctx context.Context, bus *event.Bus[Window], name string, rep *Report) error {
	whole := event.NewSubscriber(bus, name, func(ctx context.Context, v Window, changed bool) error {
		rep.add("window updated: %dx%d %q changed=%t", v.Width, v.Height, v.Title, changed)
		return nil
	}, event.NotifyAlways)
	defer whole.Close()

	echoes := make(chan *event.Completion, 8)
	members := event.NewMemberSubscriber(name)
	defer members.Close()

	err := event.Watch(members, bus, WindowWidth, func(ctx context.Context, v int) error {
		rep.add("width updated: %d", v)
		return nil
	}, event.NotifyOnChange)
	if err != nil {
		return err
	}
	err = event.Watch(members, bus, WindowHeight, func(ctx context.Context, v int) error {
		rep.add("height updated: %d", v)
		echoes <- bus.PublishMembersAsync(ctx, name, members.ID(), Window{Height: v + 1}, WindowHeight)
		return nil
	}, event.NotifyOnChange)
	if err != nil {
		return err
	}

	bus.SetInitialState(name, Window{Title: "sandbox"})

	if err := bus.PublishAsync(ctx, name, event.Unidentified, Window{Width: 1, Height: 1, Title: "sandbox"}).Wait(ctx); err != nil {
		return err
	}
	if err := bus.PublishMembersAsync(ctx, name, event.Unidentified, Window{Width: 5, Height: 4}, WindowWidth, WindowHeight).Wait(ctx); err != nil {
		return err
	}

	for {
		select {
		case c := <-echoes:
			if err := c.Wait(ctx); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func runFrames(ctx context.Context, bus *event.Bus[FrameTiming], opts ScenarioOptions, rep *Report) error {
	var fpsChanges atomic.Int32
	var watcher event.Identifier

	topics := make([]string, opts.Publishers)
	subs := make([]*event.Subscription, 0, opts.Publishers)
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()
	for p := range topics {
		topics[p] = topic.Join(opts.Topic, "frames", strconv.Itoa(p)).String()
		subs = append(subs, event.SubscribeMember(bus, topics[p], watcher.ID(), FrameFPS, func(ctx context.Context, fps float64) error {
			fpsChanges.Add(1)
			return nil
		}, event.NotifyOnChange))
	}

	g, gctx := errgroup.WithContext(ctx)
	for p, name := range topics {
		pub := event.NewPublisher(bus, name, event.WithSender(event.NextIdentity()), event.WithDeliveryMode(event.DeliverySync))
		g.Go(func() error {
			for i := 1; i <= opts.FramesPerPublisher; i++ {
				// FPS jitters within the comparator tolerance.
				ft := FrameTiming{
					Frame:       uint64(i),
					FPS:         60 + float64(i%2)*0.01,
					FrameTimeMs: 16.6 + float64(p),
				}
				if err := pub.Publish(gctx, ft).Err(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rep.FrameTopics = len(topics)
	rep.Frames = len(topics) * opts.FramesPerPublisher
	rep.FPSChanges = int(fpsChanges.Load())
	rep.add("frames: %d topics, %d frames, %d fps changes", rep.FrameTopics, rep.Frames, rep.FPSChanges)
	return nil
}
