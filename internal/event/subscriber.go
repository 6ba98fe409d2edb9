package event

import "sync"

// Subscriber is a whole-event subscriber bound to one topic. It registers
// itself on construction and stays registered until Close or until it is
// no longer reachable.
type Subscriber[T any] struct {
	Identifier
	sub *Subscription
}

// NewSubscriber registers h on topic under a fresh identity.
func NewSubscriber[T any](bus *Bus[T], topic string, h Handler[T], mode NotifyMode) *Subscriber[T] {
	s := &Subscriber[T]{}
	s.sub = bus.Subscribe(topic, s.ID(), h, mode)
	return s
}

// Topic returns the subscribed topic.
func (s *Subscriber[T]) Topic() string {
	return s.sub.Topic()
}

// Active reports whether the subscriber is still registered.
func (s *Subscriber[T]) Active() bool {
	return s.sub.Active()
}

// Close unregisters the subscriber.
func (s *Subscriber[T]) Close() {
	s.sub.Close()
}

// MemberSubscriber collects per-member registrations on one topic, possibly
// across several event types, under a single identity.
type MemberSubscriber struct {
	Identifier
	topic string

	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// NewMemberSubscriber creates an empty member subscriber for topic.
func NewMemberSubscriber(topic string) *MemberSubscriber {
	return &MemberSubscriber{topic: topic}
}

// Topic returns the subscribed topic.
func (s *MemberSubscriber) Topic() string {
	return s.topic
}

// Watch registers h for one member of T on the subscriber's topic.
func Watch[T, M any](s *MemberSubscriber, bus *Bus[T], field *FieldOf[T, M], h MemberHandler[M], mode NotifyMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriberClosed
	}
	if h == nil {
		return ErrNilHandler
	}
	s.subs = append(s.subs, SubscribeMember(bus, s.topic, s.ID(), field, h, mode))
	return nil
}

// Len returns the number of registrations.
func (s *MemberSubscriber) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close releases every registration.
func (s *MemberSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		sub.Close()
	}
	s.subs = nil
	s.closed = true
}
