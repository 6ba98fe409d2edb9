package demo

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/statebus/internal/config"
	"github.com/dshills/statebus/internal/event"
)

// Driver publishes a frame every interval and resizes the window every
// tenth frame, the way a render loop would.
type Driver struct {
	frames *event.Publisher[FrameTiming]
	window *event.Publisher[Window]
	clock  *FrameClock
	cfg    config.DemoConfig
	log    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the loop goroutine.
	pending *event.Completion
}

// NewDriver creates a driver publishing on cfg.Topic of both buses.
func NewDriver(b *Buses, cfg config.DemoConfig, log zerolog.Logger) *Driver {
	id := event.NextIdentity()
	return &Driver{
		frames: event.NewPublisher(b.Frame, cfg.Topic, event.WithSender(id)),
		window: event.NewPublisher(b.Window, cfg.Topic, event.WithSender(id)),
		clock:  NewFrameClock(),
		cfg:    cfg,
		log:    log.With().Str("component", "driver").Logger(),
	}
}

// Clock returns the driver's frame clock.
func (d *Driver) Clock() *FrameClock {
	return d.clock
}

// Start launches the publishing loop. It does nothing when the interval is
// zero or the driver is already running.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.Interval() <= 0 || d.done != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.loop(ctx, d.done)
}

// Done is closed when the loop exits. It is nil before Start.
func (d *Driver) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Stop ends the loop and waits for it to exit or for ctx to expire.
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.cfg.Interval())
	defer ticker.Stop()

	d.log.Info().Str("topic", d.cfg.Topic).Dur("interval", d.cfg.Interval()).Msg("driver started")
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Uint64("frames", d.clock.Snapshot().Frames).Msg("driver stopped")
			return
		case now := <-ticker.C:
			if !d.tick(ctx, now.Sub(last)) {
				return
			}
			last = now
		}
	}
}

// tick publishes one frame. It returns false once the frame limit is hit.
func (d *Driver) tick(ctx context.Context, elapsed time.Duration) bool {
	// A render loop never queues frames behind a slow consumer.
	if d.pending != nil {
		select {
		case <-d.pending.Done():
			if err := d.pending.Err(); err != nil {
				d.log.Warn().Err(err).Msg("frame delivery failed")
			}
		default:
			d.clock.Drop()
			return true
		}
	}

	ft := d.clock.Record(elapsed)
	d.pending = d.frames.Publish(ctx, ft)

	if ft.Frame%10 == 0 {
		step := int(ft.Frame/10) % 4
		d.window.PublishMembers(ctx, Window{Width: 1280 + step*160, Height: 720 + step*90}, WindowWidth, WindowHeight)
	}
	return d.cfg.Frames == 0 || ft.Frame < uint64(d.cfg.Frames)
}
