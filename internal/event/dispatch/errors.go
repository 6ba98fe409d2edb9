package dispatch

import "errors"

// Sentinel errors for the dispatch package.
var (
	// ErrPoolClosed is the panic value raised when a task is submitted to a
	// pool that has begun shutting down.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrNilTask is the panic value raised when Submit receives a nil task.
	ErrNilTask = errors.New("nil task")
)
