package event

import (
	"context"
	"sync/atomic"
	"weak"
)

// handlerBox is the only strong holder of a subscriber callback.
// Topics reference it weakly; the Subscription (or the facade holding the
// Subscription) keeps it alive.
type handlerBox[T any] struct {
	call   func(ctx context.Context, value T, changed bool) error
	closed atomic.Bool
}

// entry is one registration in a subscriber list.
type entry[T any] struct {
	id  Identity
	ref weak.Pointer[handlerBox[T]]
}

// target returns the live box, or nil if the registration is dead.
func (e entry[T]) target() *handlerBox[T] {
	b := e.ref.Value()
	if b == nil || b.closed.Load() {
		return nil
	}
	return b
}

// subscriberList splits registrations by notify mode.
type subscriberList[T any] struct {
	onChange []entry[T]
	always   []entry[T]
}

func (l *subscriberList[T]) add(mode NotifyMode, e entry[T]) {
	if mode == NotifyAlways {
		l.always = append(l.always, e)
		return
	}
	l.onChange = append(l.onChange, e)
}

// visit calls fn for every live registration that should hear an update.
// On-change registrations are skipped entirely when nothing changed, and a
// registration whose identity equals a non-zero sender is skipped. Dead
// registrations met on the way are removed.
func (l *subscriberList[T]) visit(changed bool, sender Identity, fn func(*handlerBox[T], Identity)) (suppressed, pruned int) {
	walk := func(entries []entry[T]) []entry[T] {
		kept := entries[:0]
		for _, e := range entries {
			box := e.target()
			if box == nil {
				pruned++
				continue
			}
			kept = append(kept, e)
			if sender != Unidentified && e.id == sender {
				suppressed++
				continue
			}
			fn(box, e.id)
		}
		clear(entries[len(kept):])
		return kept
	}

	if changed {
		l.onChange = walk(l.onChange)
	}
	l.always = walk(l.always)
	return suppressed, pruned
}

// live counts registrations that are still reachable.
func (l *subscriberList[T]) live() int {
	n := 0
	for _, e := range l.onChange {
		if e.target() != nil {
			n++
		}
	}
	for _, e := range l.always {
		if e.target() != nil {
			n++
		}
	}
	return n
}

// Subscription is the handle for one registration.
//
// The bus only holds a weak reference to the callback: the registration
// stays live while the Subscription is reachable and Close has not been
// called. Dropping every reference to the Subscription ends it the same
// way Close does, once the garbage collector has run.
type Subscription struct {
	keep   any
	closed *atomic.Bool
	topic  string
	member string
	id     Identity
	mode   NotifyMode
}

func newSubscription[T any](box *handlerBox[T], topic, member string, id Identity, mode NotifyMode) *Subscription {
	return &Subscription{
		keep:   box,
		closed: &box.closed,
		topic:  topic,
		member: member,
		id:     id,
		mode:   mode,
	}
}

// Close ends the registration. The bus prunes it on the next update.
func (s *Subscription) Close() {
	s.closed.Store(true)
}

// Active reports whether Close has not been called.
func (s *Subscription) Active() bool {
	return !s.closed.Load()
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Member returns the watched member name, or "" for whole-event subscriptions.
func (s *Subscription) Member() string {
	return s.member
}

// ID returns the identity the subscription was registered with.
func (s *Subscription) ID() Identity {
	return s.id
}

// Mode returns the notify mode.
func (s *Subscription) Mode() NotifyMode {
	return s.mode
}
