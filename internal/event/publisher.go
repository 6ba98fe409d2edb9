package event

import "context"

// Publisher publishes to one topic of a bus under a fixed sender identity.
type Publisher[T any] struct {
	bus    *Bus[T]
	topic  string
	sender Identity
	mode   DeliveryMode
}

// PublisherOption configures a Publisher.
type PublisherOption func(*publisherConfig)

type publisherConfig struct {
	sender Identity
	mode   DeliveryMode
}

// WithSender sets the identity whose subscriptions are not echoed.
// The default is Unidentified.
func WithSender(id Identity) PublisherOption {
	return func(c *publisherConfig) {
		c.sender = id
	}
}

// WithDeliveryMode sets how Publish delivers. The default is DeliveryAsync.
func WithDeliveryMode(m DeliveryMode) PublisherOption {
	return func(c *publisherConfig) {
		c.mode = m
	}
}

// NewPublisher creates a publisher bound to topic.
func NewPublisher[T any](bus *Bus[T], topic string, opts ...PublisherOption) *Publisher[T] {
	cfg := publisherConfig{mode: DeliveryAsync}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Publisher[T]{
		bus:    bus,
		topic:  topic,
		sender: cfg.sender,
		mode:   cfg.mode,
	}
}

// Publish sends value using the publisher's delivery mode. In sync mode
// the returned Completion is already done unless the call was nested in
// a delivery of the same topic.
func (p *Publisher[T]) Publish(ctx context.Context, value T) *Completion {
	if p.mode == DeliveryAsync {
		return p.bus.PublishAsync(ctx, p.topic, p.sender, value)
	}
	p.bus.syncPublishes.Add(1)
	ts := p.bus.state(p.topic)
	c, _ := p.bus.publishSync(ctx, ts, func(ctx context.Context) error {
		return p.bus.deliverWhole(ctx, ts, p.sender, value)
	})
	return c
}

// PublishMembers sends only the named members of value.
func (p *Publisher[T]) PublishMembers(ctx context.Context, value T, members ...Member[T]) *Completion {
	if p.mode == DeliveryAsync {
		return p.bus.PublishMembersAsync(ctx, p.topic, p.sender, value, members...)
	}
	p.bus.syncPublishes.Add(1)
	ts := p.bus.state(p.topic)
	c, _ := p.bus.publishSync(ctx, ts, func(ctx context.Context) error {
		return p.bus.deliverMembers(ctx, ts, p.sender, value, members)
	})
	return c
}

// Current returns the topic snapshot.
func (p *Publisher[T]) Current() (T, bool) {
	return p.bus.CurrentState(p.topic)
}

// Topic returns the bound topic.
func (p *Publisher[T]) Topic() string {
	return p.topic
}

// Sender returns the sender identity.
func (p *Publisher[T]) Sender() Identity {
	return p.sender
}

// Mode returns the delivery mode.
func (p *Publisher[T]) Mode() DeliveryMode {
	return p.mode
}
