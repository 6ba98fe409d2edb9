package event

import "context"

// NotifyMode selects when a subscriber is called.
type NotifyMode int

const (
	// NotifyOnChange calls the subscriber only when the update changed
	// what it watches.
	NotifyOnChange NotifyMode = iota

	// NotifyAlways calls the subscriber on every update to its topic.
	NotifyAlways
)

// String returns a human-readable notify mode name.
func (m NotifyMode) String() string {
	switch m {
	case NotifyOnChange:
		return "change"
	case NotifyAlways:
		return "always"
	default:
		return "unknown"
	}
}

// ParseNotifyMode parses the names returned by NotifyMode.String.
func ParseNotifyMode(s string) (NotifyMode, bool) {
	switch s {
	case "change", "on-change", "":
		return NotifyOnChange, true
	case "always":
		return NotifyAlways, true
	default:
		return NotifyOnChange, false
	}
}

// DeliveryMode specifies how a publish is delivered.
type DeliveryMode int

const (
	// DeliverySync blocks the publisher until its update has been delivered.
	DeliverySync DeliveryMode = iota

	// DeliveryAsync hands the drain to the worker pool and returns at once.
	DeliveryAsync
)

// String returns a human-readable delivery mode name.
func (m DeliveryMode) String() string {
	switch m {
	case DeliverySync:
		return "sync"
	case DeliveryAsync:
		return "async"
	default:
		return "unknown"
	}
}

// Handler receives whole-event updates. changed reports whether any member
// differed from the previous snapshot.
//
// Handlers run without the topic lock held. A handler that publishes again
// must pass on the ctx it was given so the nested publish is recognised as
// coming from the goroutine that drains the topic.
type Handler[T any] func(ctx context.Context, value T, changed bool) error

// MemberHandler receives the new value of a single member.
type MemberHandler[M any] func(ctx context.Context, value M) error

// PanicHandler is called when a subscriber panics.
type PanicHandler func(err *PanicError)

// ErrorHandler is called when a subscriber returns an error.
type ErrorHandler func(err *HandlerError)

// Submitter runs asynchronous drain attempts. *dispatch.Pool satisfies it.
type Submitter interface {
	Submit(task func())
}

// Stats contains event bus statistics.
type Stats struct {
	// Name is the bus name.
	Name string `json:"name"`

	// SyncPublishes is the number of synchronous publish calls.
	SyncPublishes uint64 `json:"sync_publishes"`

	// AsyncPublishes is the number of asynchronous publish calls.
	AsyncPublishes uint64 `json:"async_publishes"`

	// Drains is the number of times a goroutine claimed a topic queue.
	Drains uint64 `json:"drains"`

	// Deliveries is the number of subscriber invocations.
	Deliveries uint64 `json:"deliveries"`

	// Suppressed is the number of notifications skipped because the
	// subscriber was the sender.
	Suppressed uint64 `json:"suppressed"`

	// Pruned is the number of dead registrations removed.
	Pruned uint64 `json:"pruned"`

	// HandlerErrors is the number of subscribers that returned errors.
	HandlerErrors uint64 `json:"handler_errors"`

	// HandlerPanics is the number of subscribers that panicked.
	HandlerPanics uint64 `json:"handler_panics"`

	// Topics is the number of topics created so far.
	Topics int `json:"topics"`

	// Pending is the number of queued updates across all topics.
	Pending int `json:"pending"`
}

// TopicInfo describes one topic for inspection.
type TopicInfo struct {
	Name        string         `json:"name"`
	HasSnapshot bool           `json:"has_snapshot"`
	Snapshot    any            `json:"snapshot,omitempty"`
	Pending     int            `json:"pending"`
	Draining    bool           `json:"draining"`
	Subscribers int            `json:"subscribers"`
	Members     map[string]int `json:"members,omitempty"`
}

// Inspector is the type-erased view of a bus used by metrics and the admin API.
type Inspector interface {
	Name() string
	Stats() Stats
	Inspect(pattern string) []TopicInfo
}
