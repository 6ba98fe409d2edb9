package event

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/statebus/internal/event/dispatch"
)

type sample struct {
	A int
	B float64
}

var (
	fieldA = Field("a", func(s *sample) *int { return &s.A })
	fieldB = Field("b", func(s *sample) *float64 { return &s.B })
)

// recorder collects notifications in arrival order.
type recorder[V any] struct {
	mu   sync.Mutex
	got  []V
	flag []bool
}

func (r *recorder[V]) member(ctx context.Context, v V) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, v)
	return nil
}

func (r *recorder[V]) whole(ctx context.Context, v V, changed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, v)
	r.flag = append(r.flag, changed)
	return nil
}

func (r *recorder[V]) values() []V {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]V(nil), r.got...)
}

func (r *recorder[V]) flags() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.flag...)
}

func newSampleBus(t *testing.T, opts ...Option) *Bus[sample] {
	t.Helper()
	bus := NewBus[sample](nil, opts...)
	require.NoError(t, bus.RegisterMembers(fieldA, fieldB))
	return bus
}

func TestBus_NameDefaultsToType(t *testing.T) {
	assert.Equal(t, "event.sample", NewBus[sample](nil).Name())
	assert.Equal(t, "custom", NewBus[sample](nil, WithName("custom")).Name())
}

func TestBus_InitialStateThenPublish(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)
	bus.SetInitialState("topic", sample{A: 0, B: 0})

	var a recorder[int]
	var b recorder[float64]
	var whole recorder[sample]
	subA := SubscribeMember(bus, "topic", NextIdentity(), fieldA, a.member, NotifyOnChange)
	defer subA.Close()
	subB := SubscribeMember(bus, "topic", NextIdentity(), fieldB, b.member, NotifyOnChange)
	defer subB.Close()
	subW := bus.Subscribe("topic", NextIdentity(), whole.whole, NotifyOnChange)
	defer subW.Close()

	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 1, B: 0}))

	assert.Equal(t, []int{1}, a.values())
	assert.Empty(t, b.values())
	assert.Equal(t, []sample{{A: 1}}, whole.values())
	assert.Equal(t, []bool{true}, whole.flags())
}

func TestBus_FirstPublishMarksEveryMemberChanged(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)

	var a recorder[int]
	var b recorder[float64]
	var whole recorder[sample]
	subA := SubscribeMember(bus, "topic", NextIdentity(), fieldA, a.member, NotifyOnChange)
	defer subA.Close()
	subB := SubscribeMember(bus, "topic", NextIdentity(), fieldB, b.member, NotifyOnChange)
	defer subB.Close()
	subW := bus.Subscribe("topic", NextIdentity(), whole.whole, NotifyOnChange)
	defer subW.Close()

	// Zero value on purpose: nothing differs from zero but there is no snapshot yet.
	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{}))

	assert.Equal(t, []int{0}, a.values())
	assert.Equal(t, []float64{0}, b.values())
	assert.Equal(t, []bool{true}, whole.flags())
}

func TestBus_ChangeOnlyAndAlways(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)

	var onChange, always recorder[int]
	var whole recorder[sample]
	s1 := SubscribeMember(bus, "topic", NextIdentity(), fieldA, onChange.member, NotifyOnChange)
	defer s1.Close()
	s2 := SubscribeMember(bus, "topic", NextIdentity(), fieldA, always.member, NotifyAlways)
	defer s2.Close()
	s3 := bus.Subscribe("topic", NextIdentity(), whole.whole, NotifyAlways)
	defer s3.Close()

	v := sample{A: 7, B: 1.5}
	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, v))
	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, v))
	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 7, B: 2.5}))

	assert.Equal(t, []int{7}, onChange.values())
	assert.Equal(t, []int{7, 7, 7}, always.values())
	// Whole-event changed is the OR over members: b changed on the third publish.
	assert.Equal(t, []bool{true, false, true}, whole.flags())
}

func TestBus_WholeChangeOnlySkippedWhenUnchanged(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)

	var whole recorder[sample]
	sub := bus.Subscribe("topic", NextIdentity(), whole.whole, NotifyOnChange)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 1}))
	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 1}))

	assert.Len(t, whole.values(), 1)
}

func TestBus_NoMembersAlwaysChanged(t *testing.T) {
	ctx := context.Background()
	bus := NewBus[sample](nil)

	var whole recorder[sample]
	sub := bus.Subscribe("topic", NextIdentity(), whole.whole, NotifyOnChange)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 1}))
	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 1}))

	assert.Equal(t, []bool{true, true}, whole.flags())
}

func TestBus_SelfEchoSuppression(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)

	self := NextIdentity()
	var mine, other recorder[int]
	s1 := SubscribeMember(bus, "topic", self, fieldA, mine.member, NotifyAlways)
	defer s1.Close()
	s2 := SubscribeMember(bus, "topic", NextIdentity(), fieldA, other.member, NotifyAlways)
	defer s2.Close()

	require.NoError(t, bus.Publish(ctx, "topic", self, sample{A: 1}))
	assert.Empty(t, mine.values())
	assert.Equal(t, []int{1}, other.values())
	assert.Equal(t, uint64(1), bus.Stats().Suppressed)

	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 2}))
	assert.Equal(t, []int{2}, mine.values())
}

func TestBus_SameIdentitySubscribedTwice(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)

	id := NextIdentity()
	var r recorder[sample]
	s1 := bus.Subscribe("topic", id, r.whole, NotifyAlways)
	defer s1.Close()
	s2 := bus.Subscribe("topic", id, r.whole, NotifyAlways)
	defer s2.Close()

	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 1}))
	assert.Len(t, r.values(), 2)
}

func TestBus_CurrentStateAfterPublish(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)

	_, ok := bus.CurrentState("topic")
	assert.False(t, ok)
	assert.Empty(t, bus.Topics(""), "CurrentState must not create topics")

	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 3, B: 4}))
	got, ok := bus.CurrentState("topic")
	require.True(t, ok)
	assert.Equal(t, sample{A: 3, B: 4}, got)
}

func TestBus_TopicsAreIndependent(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)

	var left recorder[sample]
	sub := bus.Subscribe("left", NextIdentity(), left.whole, NotifyAlways)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, "right", Unidentified, sample{A: 1}))
	assert.Empty(t, left.values())

	_, ok := bus.CurrentState("left")
	assert.False(t, ok)
}

func TestBus_PublishMembersWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)

	var a recorder[int]
	var b recorder[float64]
	var whole recorder[sample]
	s1 := SubscribeMember(bus, "topic", NextIdentity(), fieldA, a.member, NotifyOnChange)
	defer s1.Close()
	s2 := SubscribeMember(bus, "topic", NextIdentity(), fieldB, b.member, NotifyAlways)
	defer s2.Close()
	s3 := bus.Subscribe("topic", NextIdentity(), whole.whole, NotifyOnChange)
	defer s3.Close()

	require.NoError(t, bus.PublishMembers(ctx, "topic", Unidentified, sample{A: 5, B: 9}, fieldA))

	assert.Equal(t, []int{5}, a.values())
	assert.Empty(t, b.values(), "unnamed members are not notified")
	assert.Equal(t, []sample{{A: 5}}, whole.values())
	assert.Equal(t, []bool{true}, whole.flags())

	got, ok := bus.CurrentState("topic")
	require.True(t, ok)
	assert.Equal(t, sample{A: 5}, got)
}

func TestBus_PublishMembersWithSnapshot(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)
	bus.SetInitialState("topic", sample{A: 1, B: 1})

	var whole recorder[sample]
	sub := bus.Subscribe("topic", NextIdentity(), whole.whole, NotifyAlways)
	defer sub.Close()

	require.NoError(t, bus.PublishMembers(ctx, "topic", Unidentified, sample{A: 1, B: 8}, fieldB))
	require.NoError(t, bus.PublishMembers(ctx, "topic", Unidentified, sample{A: 99, B: 8}, fieldB))

	assert.Equal(t, []sample{{A: 1, B: 8}, {A: 1, B: 8}}, whole.values())
	assert.Equal(t, []bool{true, false}, whole.flags())
}

func TestBus_PublishMembersUnregisteredField(t *testing.T) {
	ctx := context.Background()
	bus := NewBus[sample](nil)

	var a recorder[int]
	sub := SubscribeMember(bus, "topic", NextIdentity(), fieldA, a.member, NotifyOnChange)
	defer sub.Close()

	require.NoError(t, bus.PublishMembers(ctx, "topic", Unidentified, sample{A: 2}, fieldA))
	require.NoError(t, bus.PublishMembers(ctx, "topic", Unidentified, sample{A: 2}, fieldA))
	require.NoError(t, bus.PublishMembers(ctx, "topic", Unidentified, sample{A: 3}, fieldA))

	assert.Equal(t, []int{2, 3}, a.values())
}

func TestBus_RegisterMembers(t *testing.T) {
	bus := NewBus[sample](nil)

	require.NoError(t, bus.RegisterMembers(fieldA))
	require.NoError(t, bus.RegisterMembers(fieldB))
	assert.Equal(t, []string{"a", "b"}, bus.Members())

	err := bus.RegisterMembers(Field("a", func(s *sample) *int { return &s.A }))
	assert.ErrorIs(t, err, ErrDuplicateMember)
	assert.ErrorIs(t, bus.RegisterMembers(nil), ErrNilMember)

	m, ok := bus.Member("b")
	require.True(t, ok)
	assert.Equal(t, 2.5, m.ValueOf(&sample{B: 2.5}))

	require.NoError(t, bus.Publish(context.Background(), "topic", Unidentified, sample{}))
	assert.ErrorIs(t, bus.RegisterMembers(Field("c", func(s *sample) *int { return &s.A })), ErrMembersFrozen)
}

func TestBus_SubscribeMemberByName(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)

	var got recorder[any]
	sub, err := bus.SubscribeMemberByName("topic", NextIdentity(), "b", got.member, NotifyOnChange)
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, "b", sub.Member())

	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{B: 1.25}))
	assert.Equal(t, []any{1.25}, got.values())

	_, err = bus.SubscribeMemberByName("topic", NextIdentity(), "nope", got.member, NotifyOnChange)
	assert.ErrorIs(t, err, ErrUnknownMember)
	_, err = bus.SubscribeMemberByName("topic", NextIdentity(), "a", nil, NotifyOnChange)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestBus_SubscribeNilHandlerPanics(t *testing.T) {
	bus := NewBus[sample](nil)
	assert.PanicsWithValue(t, ErrNilHandler, func() {
		bus.Subscribe("topic", NextIdentity(), nil, NotifyAlways)
	})
}

func TestBus_ClosedSubscriberIsPruned(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)

	var r recorder[sample]
	sub := bus.Subscribe("topic", NextIdentity(), r.whole, NotifyAlways)
	sub.Close()
	assert.False(t, sub.Active())

	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 1}))
	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 2}))

	assert.Empty(t, r.values())
	assert.Equal(t, uint64(1), bus.Stats().Pruned)

	got, ok := bus.CurrentState("topic")
	require.True(t, ok)
	assert.Equal(t, 2, got.A)
}

func TestBus_CollectedSubscriberIsPruned(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)

	func() {
		// The Subscription is dropped immediately.
		bus.Subscribe("topic", NextIdentity(), func(context.Context, sample, bool) error { return nil }, NotifyAlways)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		_ = bus.Publish(ctx, "topic", Unidentified, sample{A: 1})
		return bus.Stats().Pruned == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Empty(t, bus.Inspect("topic")[0].Subscribers)
	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 4}))
	got, _ := bus.CurrentState("topic")
	assert.Equal(t, 4, got.A)
}

func TestBus_FailuresAreIsolated(t *testing.T) {
	ctx := context.Background()

	var panics []*PanicError
	var herrs []*HandlerError
	bus := newSampleBus(t,
		WithPanicHandler(func(err *PanicError) { panics = append(panics, err) }),
		WithErrorHandler(func(err *HandlerError) { herrs = append(herrs, err) }),
	)

	boom := errors.New("boom")
	failing := NextIdentity()
	s1 := bus.Subscribe("topic", failing, func(context.Context, sample, bool) error { return boom }, NotifyAlways)
	defer s1.Close()
	s2 := SubscribeMember(bus, "topic", NextIdentity(), fieldA, func(context.Context, int) error { panic("bad member") }, NotifyAlways)
	defer s2.Close()
	var ok recorder[sample]
	s3 := bus.Subscribe("topic", NextIdentity(), ok.whole, NotifyAlways)
	defer s3.Close()

	err := bus.Publish(ctx, "topic", Unidentified, sample{A: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrHandlerPanic)

	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, failing, herr.Subscriber)
	assert.Equal(t, "topic", herr.Topic)

	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "a", perr.Member)
	assert.Equal(t, "bad member", perr.Value)
	assert.Contains(t, perr.Error(), "panicked")

	assert.Len(t, ok.values(), 1, "healthy subscriber still notified")
	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.HandlerErrors)
	assert.Equal(t, uint64(1), stats.HandlerPanics)
	assert.Equal(t, uint64(3), stats.Deliveries)
	assert.Len(t, panics, 1)
	assert.Len(t, herrs, 1)

	got, _ := bus.CurrentState("topic")
	assert.Equal(t, 1, got.A)
}

func TestBus_ComparatorPanicReleasesTopic(t *testing.T) {
	ctx := context.Background()
	bus := NewBus[sample](nil)

	explode := true
	touchy := FieldFunc("a", func(s *sample) *int { return &s.A }, func(x, y int) bool {
		if explode {
			panic("compare")
		}
		return x == y
	})
	require.NoError(t, bus.RegisterMembers(touchy))
	bus.SetInitialState("topic", sample{})

	err := bus.Publish(ctx, "topic", Unidentified, sample{A: 1})
	assert.ErrorIs(t, err, ErrHandlerPanic)

	explode = false
	require.NoError(t, bus.Publish(ctx, "topic", Unidentified, sample{A: 2}))
	got, _ := bus.CurrentState("topic")
	assert.Equal(t, 2, got.A)
}

func TestBus_HandlerTimeout(t *testing.T) {
	bus := newSampleBus(t, WithHandlerTimeout(10*time.Millisecond))

	sub := bus.Subscribe("topic", NextIdentity(), func(ctx context.Context, _ sample, _ bool) error {
		<-ctx.Done()
		return ctx.Err()
	}, NotifyAlways)
	defer sub.Close()

	err := bus.Publish(context.Background(), "topic", Unidentified, sample{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_AsyncPublishWithPool(t *testing.T) {
	pool := dispatch.NewPool(dispatch.WithWorkers(2))
	defer pool.Shutdown(context.Background())

	bus := NewBus[sample](pool)
	require.NoError(t, bus.RegisterMembers(fieldA, fieldB))

	var r recorder[sample]
	sub := bus.Subscribe("topic", NextIdentity(), r.whole, NotifyAlways)
	defer sub.Close()

	ctx := context.Background()
	c := bus.PublishAsync(ctx, "topic", Unidentified, sample{A: 1})
	require.NoError(t, c.Wait(ctx))
	c = bus.PublishMembersAsync(ctx, "topic", Unidentified, sample{B: 2}, fieldB)
	require.NoError(t, c.Wait(ctx))

	assert.Equal(t, []sample{{A: 1}, {A: 1, B: 2}}, r.values())
	stats := bus.Stats()
	assert.Equal(t, uint64(2), stats.AsyncPublishes)
	assert.Equal(t, 0, stats.Pending)
	assert.Positive(t, pool.Stats().Completed)
}

func TestBus_TopicsAndInspect(t *testing.T) {
	ctx := context.Background()
	bus := newSampleBus(t)

	sub := bus.Subscribe("window.main", NextIdentity(), func(context.Context, sample, bool) error { return nil }, NotifyAlways)
	defer sub.Close()
	msub := SubscribeMember(bus, "window.main", NextIdentity(), fieldA, func(context.Context, int) error { return nil }, NotifyOnChange)
	defer msub.Close()
	bus.SetInitialState("window.tool", sample{A: 2})
	require.NoError(t, bus.Publish(ctx, "frame", Unidentified, sample{}))

	assert.Equal(t, []string{"window.main", "window.tool", "frame"}, bus.Topics("**"))
	assert.Equal(t, []string{"window.main", "window.tool"}, bus.Topics("window.*"))

	infos := bus.Inspect("window.*")
	require.Len(t, infos, 2)
	assert.Equal(t, "window.main", infos[0].Name)
	assert.False(t, infos[0].HasSnapshot)
	assert.Equal(t, 1, infos[0].Subscribers)
	assert.Equal(t, map[string]int{"a": 1}, infos[0].Members)
	assert.True(t, infos[1].HasSnapshot)
	assert.Equal(t, sample{A: 2}, infos[1].Snapshot)
	assert.False(t, infos[1].Draining)

	assert.Equal(t, 3, bus.Stats().Topics)
}
