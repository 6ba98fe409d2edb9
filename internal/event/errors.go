package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for the event bus.
var (
	// ErrNilMember is returned when a nil member descriptor is registered.
	ErrNilMember = errors.New("member descriptor cannot be nil")

	// ErrDuplicateMember is returned when two registered members share a name.
	ErrDuplicateMember = errors.New("duplicate member name")

	// ErrMembersFrozen is returned by RegisterMembers after the first publish.
	ErrMembersFrozen = errors.New("members cannot be registered after the first publish")

	// ErrUnknownMember is returned when a member name is not registered on the bus.
	ErrUnknownMember = errors.New("unknown member")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrSubscriberClosed is returned when a closed subscriber facade is reused.
	ErrSubscriberClosed = errors.New("subscriber is closed")

	// ErrHandlerPanic is matched by every PanicError.
	ErrHandlerPanic = errors.New("handler panicked")
)

// HandlerError wraps an error returned by a subscriber with delivery context.
type HandlerError struct {
	// Bus is the name of the bus that delivered the update.
	Bus string

	// Topic is the topic the update was published to.
	Topic string

	// Member is the member name for per-member subscribers, empty otherwise.
	Member string

	// Subscriber is the identity the subscription was registered with.
	Subscriber Identity

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: subscriber %s: %v", e.where(), e.Subscriber, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

func (e *HandlerError) where() string {
	s := e.Bus + "/" + e.Topic
	if e.Member != "" {
		s += "." + e.Member
	}
	return s
}

// PanicError wraps a panic raised by a subscriber or a member comparator.
type PanicError struct {
	// Bus is the name of the bus that delivered the update.
	Bus string

	// Topic is the topic the update was published to.
	Topic string

	// Member is the member name for per-member subscribers, empty otherwise.
	Member string

	// Subscriber is the identity the subscription was registered with.
	// It is Unidentified when the panic came from the delivery itself.
	Subscriber Identity

	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	h := HandlerError{Bus: e.Bus, Topic: e.Topic, Member: e.Member}
	return fmt.Sprintf("%s: subscriber %s panicked: %v", h.where(), e.Subscriber, e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
