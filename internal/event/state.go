package event

import (
	"context"
	"sync"
)

// drainToken marks one claim of a topic queue. It has non-zero size so
// every claim gets a distinct address.
type drainToken struct{ _ byte }

type drainScopeKey struct{}

// drainScope is the chain of claims held by the goroutine that runs a
// delivery. It travels in the ctx handed to subscribers.
type drainScope struct {
	token  *drainToken
	parent *drainScope
}

func withDrainScope(ctx context.Context, tok *drainToken) context.Context {
	parent, _ := ctx.Value(drainScopeKey{}).(*drainScope)
	return context.WithValue(ctx, drainScopeKey{}, &drainScope{token: tok, parent: parent})
}

// holdsDrain reports whether ctx belongs to the goroutine holding tok.
func holdsDrain(ctx context.Context, tok *drainToken) bool {
	if tok == nil {
		return false
	}
	for s, _ := ctx.Value(drainScopeKey{}).(*drainScope); s != nil; s = s.parent {
		if s.token == tok {
			return true
		}
	}
	return false
}

// pending is one queued delivery.
type pending struct {
	deliver func(ctx context.Context) error
	done    *Completion
}

// topicState is the mutable state of one topic. mu guards every field;
// current is only written by the goroutine holding owner.
type topicState[T any] struct {
	name string

	mu         sync.Mutex
	current    T
	hasCurrent bool
	queue      []pending
	owner      *drainToken
	whole      subscriberList[T]
	members    map[string]*subscriberList[T]
}

func newTopicState[T any](name string) *topicState[T] {
	return &topicState[T]{
		name:    name,
		members: make(map[string]*subscriberList[T]),
	}
}

// memberList returns the list for a member name, creating it. Caller holds mu.
func (ts *topicState[T]) memberList(name string) *subscriberList[T] {
	l, ok := ts.members[name]
	if !ok {
		l = &subscriberList[T]{}
		ts.members[name] = l
	}
	return l
}

// pop removes the queue head. When the queue is empty it releases the
// claim and returns false. Caller must hold the claim.
func (ts *topicState[T]) pop() (pending, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if len(ts.queue) == 0 {
		ts.owner = nil
		return pending{}, false
	}
	p := ts.queue[0]
	ts.queue[0] = pending{}
	ts.queue = ts.queue[1:]
	return p, true
}

func (ts *topicState[T]) info() TopicInfo {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	info := TopicInfo{
		Name:        ts.name,
		HasSnapshot: ts.hasCurrent,
		Pending:     len(ts.queue),
		Draining:    ts.owner != nil,
		Subscribers: ts.whole.live(),
	}
	if ts.hasCurrent {
		info.Snapshot = ts.current
	}
	for name, l := range ts.members {
		if n := l.live(); n > 0 {
			if info.Members == nil {
				info.Members = make(map[string]int)
			}
			info.Members[name] = n
		}
	}
	return info
}
