// Package event provides an in-process, strongly typed publish/subscribe
// bus for state updates.
//
// # Buses and Topics
//
// One Bus is created per event type. A bus holds any number of topics,
// created on first use and never destroyed. Each topic keeps the last
// applied value (its snapshot) and a FIFO queue of pending updates.
//
//	pool := dispatch.NewPool(dispatch.WithWorkers(4))
//	windows := event.NewBus[Window](pool, event.WithName("window"))
//
// # Members
//
// Registering member descriptors lets the bus work out which fields an
// update changed:
//
//	width := event.Field("Width", func(w *Window) *int { return &w.Width })
//	title := event.Field("Title", func(w *Window) *string { return &w.Title })
//	_ = windows.RegisterMembers(width, title)
//
// Members are registered once, before the first publish.
//
// # Subscribing
//
// Whole-event subscribers receive the new snapshot and whether anything
// changed. Member subscribers receive the new value of a single field.
// NotifyOnChange subscribers are skipped when nothing they watch changed;
// NotifyAlways subscribers hear every update.
//
//	sub := windows.Subscribe("main", id, func(ctx context.Context, w Window, changed bool) error {
//	    return nil
//	}, event.NotifyOnChange)
//	defer sub.Close()
//
// The bus references subscribers weakly. Keep the Subscription (or the
// Subscriber facade) reachable for as long as updates should arrive.
//
// # Publishing
//
// Publish blocks until the update has been delivered; PublishAsync returns
// a Completion at once and lets the worker pool deliver it. A subscriber
// registered under the sender's identity never hears that sender's
// updates, unless the sender is Unidentified.
//
// # Ordering
//
// Updates to one topic are applied in enqueue order by a single draining
// goroutine at a time. Nothing is ordered across topics or buses.
// Subscribers run without the topic lock, so they may publish again; a
// nested publish must use the ctx the subscriber received.
//
// # Failures
//
// A subscriber that returns an error or panics does not affect the others.
// Failures are logged, counted in Stats and returned, aggregated, from
// Publish or the Completion. Updates are never redelivered.
package event
