package event

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/dshills/statebus/internal/event/dispatch"
	"github.com/dshills/statebus/internal/event/topic"
)

// Bus carries state updates of one event type T across any number of
// named topics. Each topic keeps the last applied snapshot and delivers
// its updates strictly in enqueue order, drained by one goroutine at a time.
type Bus[T any] struct {
	cfg  busConfig
	log  zerolog.Logger
	pool Submitter
	exec *dispatch.Executor

	mu     sync.RWMutex
	topics map[string]*topicState[T]
	order  []string

	members atomic.Pointer[memberSet[T]]
	frozen  atomic.Bool

	// Stats
	syncPublishes  atomic.Uint64
	asyncPublishes atomic.Uint64
	drains         atomic.Uint64
	deliveries     atomic.Uint64
	suppressed     atomic.Uint64
	pruned         atomic.Uint64
	handlerErrors  atomic.Uint64
	handlerPanics  atomic.Uint64
}

type memberSet[T any] struct {
	list   []Member[T]
	byName map[string]Member[T]
}

// call is one subscriber invocation collected under the topic lock.
type call[T any] struct {
	box     *handlerBox[T]
	id      Identity
	member  string
	changed bool
}

// NewBus creates a bus for T. Asynchronous drains run on pool; a nil pool
// runs each drain attempt on its own goroutine.
func NewBus[T any](pool Submitter, opts ...Option) *Bus[T] {
	cfg := defaultBusConfig(reflect.TypeFor[T]().String())
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Bus[T]{
		cfg:    cfg,
		log:    cfg.logger.With().Str("bus", cfg.name).Logger(),
		pool:   pool,
		exec:   dispatch.NewExecutor(),
		topics: make(map[string]*topicState[T]),
	}
	b.members.Store(&memberSet[T]{byName: map[string]Member[T]{}})
	return b
}

// Name returns the bus name.
func (b *Bus[T]) Name() string {
	return b.cfg.name
}

// RegisterMembers sets the members diffed on every whole-event publish.
// It may be called several times before the first publish; each call adds
// to the set. Once anything has been published it fails with ErrMembersFrozen.
func (b *Bus[T]) RegisterMembers(members ...Member[T]) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen.Load() {
		return ErrMembersFrozen
	}

	cur := b.members.Load()
	next := &memberSet[T]{
		list:   append([]Member[T](nil), cur.list...),
		byName: make(map[string]Member[T], len(cur.byName)+len(members)),
	}
	for name, m := range cur.byName {
		next.byName[name] = m
	}
	for _, m := range members {
		if m == nil {
			return ErrNilMember
		}
		if _, dup := next.byName[m.Name()]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateMember, m.Name())
		}
		next.list = append(next.list, m)
		next.byName[m.Name()] = m
	}
	b.members.Store(next)
	return nil
}

// Member returns the registered member with the given name.
func (b *Bus[T]) Member(name string) (Member[T], bool) {
	m, ok := b.members.Load().byName[name]
	return m, ok
}

// Members returns the registered member names in registration order.
func (b *Bus[T]) Members() []string {
	set := b.members.Load()
	names := make([]string, len(set.list))
	for i, m := range set.list {
		names[i] = m.Name()
	}
	return names
}

func (b *Bus[T]) freeze() {
	if b.frozen.Load() {
		return
	}
	b.mu.Lock()
	b.frozen.Store(true)
	b.mu.Unlock()
}

// state resolves a topic, creating it on first use.
func (b *Bus[T]) state(name string) *topicState[T] {
	b.mu.RLock()
	ts, ok := b.topics[name]
	b.mu.RUnlock()
	if ok {
		return ts
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ts, ok = b.topics[name]; ok {
		return ts
	}
	ts = newTopicState[T](name)
	b.topics[name] = ts
	b.order = append(b.order, name)
	b.log.Debug().Str("topic", name).Msg("topic created")
	return ts
}

func (b *Bus[T]) lookup(name string) (*topicState[T], bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ts, ok := b.topics[name]
	return ts, ok
}

// Publish applies value to topic and blocks until it has been delivered.
// Every registered member is diffed against the snapshot; subscribers
// registered under sender are skipped.
//
// The returned error aggregates subscriber failures. If ctx ends first,
// Publish returns ctx.Err() and the update is still delivered later.
// Called from a subscriber of the same topic with the ctx it received,
// Publish queues the update behind the running one and returns nil.
func (b *Bus[T]) Publish(ctx context.Context, topic string, sender Identity, value T) error {
	b.syncPublishes.Add(1)
	ts := b.state(topic)
	_, err := b.publishSync(ctx, ts, func(ctx context.Context) error {
		return b.deliverWhole(ctx, ts, sender, value)
	})
	return err
}

// PublishAsync queues value for topic and returns at once.
func (b *Bus[T]) PublishAsync(ctx context.Context, topic string, sender Identity, value T) *Completion {
	b.asyncPublishes.Add(1)
	ts := b.state(topic)
	return b.publishAsync(ctx, ts, func(ctx context.Context) error {
		return b.deliverWhole(ctx, ts, sender, value)
	})
}

// PublishMembers applies only the named members of value to topic and
// blocks until delivered. Other fields of value are ignored. With no
// snapshot yet, the snapshot starts from the zero T.
func (b *Bus[T]) PublishMembers(ctx context.Context, topic string, sender Identity, value T, members ...Member[T]) error {
	b.syncPublishes.Add(1)
	ts := b.state(topic)
	_, err := b.publishSync(ctx, ts, func(ctx context.Context) error {
		return b.deliverMembers(ctx, ts, sender, value, members)
	})
	return err
}

// PublishMembersAsync is the non-blocking form of PublishMembers.
func (b *Bus[T]) PublishMembersAsync(ctx context.Context, topic string, sender Identity, value T, members ...Member[T]) *Completion {
	b.asyncPublishes.Add(1)
	ts := b.state(topic)
	return b.publishAsync(ctx, ts, func(ctx context.Context) error {
		return b.deliverMembers(ctx, ts, sender, value, members)
	})
}

func (b *Bus[T]) publishSync(ctx context.Context, ts *topicState[T], deliver func(context.Context) error) (*Completion, error) {
	b.freeze()
	c := newCompletion()

	ts.mu.Lock()
	ts.queue = append(ts.queue, pending{deliver: deliver, done: c})
	owner := ts.owner
	var tok *drainToken
	if owner == nil {
		tok = new(drainToken)
		ts.owner = tok
	}
	ts.mu.Unlock()

	switch {
	case tok != nil:
		b.drain(ctx, ts, tok)
		return c, c.Err()
	case holdsDrain(ctx, owner):
		// Nested publish from a subscriber of this topic; the running drain
		// reaches it once the current delivery returns.
		return c, nil
	default:
		return c, c.Wait(ctx)
	}
}

func (b *Bus[T]) publishAsync(ctx context.Context, ts *topicState[T], deliver func(context.Context) error) *Completion {
	b.freeze()
	c := newCompletion()

	ts.mu.Lock()
	ts.queue = append(ts.queue, pending{deliver: deliver, done: c})
	owner := ts.owner
	ts.mu.Unlock()

	if owner != nil {
		// The current owner observes the queue under the same lock before
		// releasing, so it will reach this entry.
		return c
	}

	dctx := context.WithoutCancel(ctx)
	attempt := func() { b.tryDrain(dctx, ts) }
	if b.pool == nil {
		go attempt()
	} else {
		b.pool.Submit(attempt)
	}
	return c
}

// tryDrain claims the topic if nobody holds it and drains it.
func (b *Bus[T]) tryDrain(ctx context.Context, ts *topicState[T]) {
	ts.mu.Lock()
	if ts.owner != nil || len(ts.queue) == 0 {
		ts.mu.Unlock()
		return
	}
	tok := new(drainToken)
	ts.owner = tok
	ts.mu.Unlock()

	b.drain(ctx, ts, tok)
}

// drain runs queued deliveries until the queue is observed empty.
// The caller holds the claim tok.
func (b *Bus[T]) drain(ctx context.Context, ts *topicState[T], tok *drainToken) {
	b.drains.Add(1)
	b.log.Debug().Str("topic", ts.name).Msg("drain claimed")

	dctx := withDrainScope(context.WithoutCancel(ctx), tok)
	for {
		p, ok := ts.pop()
		if !ok {
			return
		}
		p.done.complete(b.run(dctx, ts.name, p.deliver))
	}
}

// run executes one delivery. A panic outside the subscribers (a member
// comparator for instance) is converted so the drain keeps going.
func (b *Bus[T]) run(ctx context.Context, topic string, deliver func(context.Context) error) error {
	res := b.exec.Execute(ctx, topic, deliver)
	if !res.Panicked {
		return res.Error
	}
	perr := &PanicError{
		Bus:   b.cfg.name,
		Topic: topic,
		Value: res.PanicValue,
		Stack: res.PanicStack,
	}
	b.reportPanic(perr)
	return perr
}

func (b *Bus[T]) deliverWhole(ctx context.Context, ts *topicState[T], sender Identity, value T) error {
	snap, calls := b.applyWhole(ts, sender, value)
	return b.notify(ctx, ts.name, snap, calls)
}

func (b *Bus[T]) deliverMembers(ctx context.Context, ts *topicState[T], sender Identity, value T, members []Member[T]) error {
	snap, calls := b.applyMembers(ts, sender, value, members)
	return b.notify(ctx, ts.name, snap, calls)
}

// applyWhole diffs value against the snapshot, collects the subscribers to
// call and replaces the snapshot.
func (b *Bus[T]) applyWhole(ts *topicState[T], sender Identity, value T) (T, []call[T]) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	set := b.members.Load()
	first := !ts.hasCurrent
	anyChanged := first || len(set.list) == 0

	var calls []call[T]
	for _, m := range set.list {
		changed := first || m.changed(&ts.current, &value)
		anyChanged = anyChanged || changed
		if l, ok := ts.members[m.Name()]; ok {
			b.collect(ts, l, changed, sender, m.Name(), &calls)
		}
	}
	b.collect(ts, &ts.whole, anyChanged, sender, "", &calls)

	ts.current = value
	ts.hasCurrent = true
	return ts.current, calls
}

// applyMembers applies the named members of value onto the snapshot.
func (b *Bus[T]) applyMembers(ts *topicState[T], sender Identity, value T, members []Member[T]) (T, []call[T]) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	first := !ts.hasCurrent
	if first {
		var zero T
		ts.current = zero
		ts.hasCurrent = true
	}
	anyChanged := first

	var calls []call[T]
	for _, m := range members {
		if m == nil {
			continue
		}
		changed := first || m.changed(&ts.current, &value)
		anyChanged = anyChanged || changed
		m.apply(&ts.current, &value)
		if l, ok := ts.members[m.Name()]; ok {
			b.collect(ts, l, changed, sender, m.Name(), &calls)
		}
	}
	b.collect(ts, &ts.whole, anyChanged, sender, "", &calls)
	return ts.current, calls
}

// collect appends the subscribers of l that should hear this update.
// Caller holds ts.mu.
func (b *Bus[T]) collect(ts *topicState[T], l *subscriberList[T], changed bool, sender Identity, member string, calls *[]call[T]) {
	suppressed, pruned := l.visit(changed, sender, func(box *handlerBox[T], id Identity) {
		*calls = append(*calls, call[T]{box: box, id: id, member: member, changed: changed})
	})
	b.suppressed.Add(uint64(suppressed))
	if pruned > 0 {
		b.pruned.Add(uint64(pruned))
		b.log.Debug().Str("topic", ts.name).Str("member", member).Int("pruned", pruned).Msg("dead subscribers removed")
	}
}

// notify calls the collected subscribers outside the topic lock. Each call
// is isolated: failures are reported and aggregated, never stop the rest.
func (b *Bus[T]) notify(ctx context.Context, topic string, snap T, calls []call[T]) error {
	var errs error
	for _, c := range calls {
		errs = multierr.Append(errs, b.invoke(ctx, topic, snap, c))
	}
	return errs
}

func (b *Bus[T]) invoke(ctx context.Context, topic string, snap T, c call[T]) error {
	res := b.exec.ExecuteWithTimeout(ctx, c.id, func(ctx context.Context) error {
		return c.box.call(ctx, snap, c.changed)
	}, b.cfg.handlerTimeout)
	b.deliveries.Add(1)

	switch {
	case res.Panicked:
		perr := &PanicError{
			Bus:        b.cfg.name,
			Topic:      topic,
			Member:     c.member,
			Subscriber: c.id,
			Value:      res.PanicValue,
			Stack:      res.PanicStack,
		}
		b.reportPanic(perr)
		return perr
	case res.Error != nil:
		herr := &HandlerError{
			Bus:        b.cfg.name,
			Topic:      topic,
			Member:     c.member,
			Subscriber: c.id,
			Err:        res.Error,
		}
		b.handlerErrors.Add(1)
		b.log.Warn().Err(res.Error).
			Str("topic", topic).
			Str("member", c.member).
			Uint64("subscriber", uint64(c.id)).
			Msg("subscriber failed")
		if h := b.cfg.errorHandler; h != nil {
			protect(func() { h(herr) })
		}
		return herr
	}
	return nil
}

func (b *Bus[T]) reportPanic(perr *PanicError) {
	b.handlerPanics.Add(1)
	b.log.Error().
		Str("topic", perr.Topic).
		Str("member", perr.Member).
		Uint64("subscriber", uint64(perr.Subscriber)).
		Interface("panic", perr.Value).
		Bytes("stack", perr.Stack).
		Msg("subscriber panicked")
	if h := b.cfg.panicHandler; h != nil {
		protect(func() { h(perr) })
	}
}

// protect runs a user callback that must not take the drain down.
func protect(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

// SetInitialState seeds the snapshot of topic without notifying anyone.
// It bypasses the queue and is meant to run before the first publish.
func (b *Bus[T]) SetInitialState(topic string, value T) {
	ts := b.state(topic)
	ts.mu.Lock()
	ts.current = value
	ts.hasCurrent = true
	ts.mu.Unlock()
}

// CurrentState returns a copy of the snapshot of topic. It never waits
// for queued updates and never creates the topic.
func (b *Bus[T]) CurrentState(topic string) (T, bool) {
	ts, ok := b.lookup(topic)
	if !ok {
		var zero T
		return zero, false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.current, ts.hasCurrent
}

// Subscribe registers a whole-event handler on topic under identity id.
// The registration lives as long as the returned Subscription is
// reachable and not closed. A nil handler panics with ErrNilHandler.
func (b *Bus[T]) Subscribe(topic string, id Identity, h Handler[T], mode NotifyMode) *Subscription {
	if h == nil {
		panic(ErrNilHandler)
	}
	box := &handlerBox[T]{call: h}

	ts := b.state(topic)
	ts.mu.Lock()
	ts.whole.add(mode, entry[T]{id: id, ref: weak.Make(box)})
	ts.mu.Unlock()

	return newSubscription(box, topic, "", id, mode)
}

// SubscribeMember registers a handler for one member of T on topic.
// Members are matched by name, so field does not need to be the very
// descriptor that was registered.
func SubscribeMember[T, M any](b *Bus[T], topic string, id Identity, field *FieldOf[T, M], h MemberHandler[M], mode NotifyMode) *Subscription {
	if h == nil {
		panic(ErrNilHandler)
	}
	box := &handlerBox[T]{call: func(ctx context.Context, v T, _ bool) error {
		return h(ctx, field.Get(v))
	}}
	b.addMember(topic, field.Name(), id, box, mode)
	return newSubscription(box, topic, field.Name(), id, mode)
}

// SubscribeMemberByName registers a type-erased handler for a registered
// member. It is meant for bindings that only know members by name.
func (b *Bus[T]) SubscribeMemberByName(topic string, id Identity, name string, h MemberHandler[any], mode NotifyMode) (*Subscription, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	m, ok := b.Member(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q on bus %s", ErrUnknownMember, name, b.cfg.name)
	}
	box := &handlerBox[T]{call: func(ctx context.Context, v T, _ bool) error {
		return h(ctx, m.ValueOf(&v))
	}}
	b.addMember(topic, name, id, box, mode)
	return newSubscription(box, topic, name, id, mode), nil
}

func (b *Bus[T]) addMember(topic, name string, id Identity, box *handlerBox[T], mode NotifyMode) {
	ts := b.state(topic)
	ts.mu.Lock()
	ts.memberList(name).add(mode, entry[T]{id: id, ref: weak.Make(box)})
	ts.mu.Unlock()
}

// Topics returns the topics created so far that match pattern, in creation
// order. An empty pattern matches every topic.
func (b *Bus[T]) Topics(pattern string) []string {
	b.mu.RLock()
	names := append([]string(nil), b.order...)
	b.mu.RUnlock()
	return topic.Compile(pattern).Filter(names)
}

// Inspect describes the topics matching pattern.
func (b *Bus[T]) Inspect(pattern string) []TopicInfo {
	names := b.Topics(pattern)
	infos := make([]TopicInfo, 0, len(names))
	for _, name := range names {
		if ts, ok := b.lookup(name); ok {
			infos = append(infos, ts.info())
		}
	}
	return infos
}

// Stats returns bus statistics.
func (b *Bus[T]) Stats() Stats {
	b.mu.RLock()
	states := make([]*topicState[T], 0, len(b.topics))
	for _, ts := range b.topics {
		states = append(states, ts)
	}
	b.mu.RUnlock()

	pendingCount := 0
	for _, ts := range states {
		ts.mu.Lock()
		pendingCount += len(ts.queue)
		ts.mu.Unlock()
	}

	return Stats{
		Name:           b.cfg.name,
		SyncPublishes:  b.syncPublishes.Load(),
		AsyncPublishes: b.asyncPublishes.Load(),
		Drains:         b.drains.Load(),
		Deliveries:     b.deliveries.Load(),
		Suppressed:     b.suppressed.Load(),
		Pruned:         b.pruned.Load(),
		HandlerErrors:  b.handlerErrors.Load(),
		HandlerPanics:  b.handlerPanics.Load(),
		Topics:         len(states),
		Pending:        pendingCount,
	}
}

var _ Inspector = (*Bus[struct{}])(nil)
