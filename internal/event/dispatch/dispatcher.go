package dispatch

import (
	"context"
	"time"
)

// Func is a unit of work executed by an Executor.
type Func func(ctx context.Context) error

// Result represents the outcome of a single execution.
type Result struct {
	// Success is true if the callback completed without error or panic.
	Success bool

	// Error is the error returned by the callback, if any.
	Error error

	// Panicked is true if the callback panicked.
	Panicked bool

	// PanicValue is the value passed to panic(), if Panicked is true.
	PanicValue any

	// PanicStack is the stack trace at the point of panic.
	PanicStack []byte

	// Duration is how long the callback took to execute.
	Duration time.Duration

	// Skipped is true if the callback was not executed (context cancelled).
	Skipped bool
}

// IsSuccess returns true if the result indicates successful execution.
func (r Result) IsSuccess() bool {
	return r.Success && !r.Panicked && r.Error == nil
}

// IsError returns true if the result indicates an error (not panic).
func (r Result) IsError() bool {
	return r.Error != nil && !r.Panicked
}

// IsPanic returns true if the result indicates a panic.
func (r Result) IsPanic() bool {
	return r.Panicked
}

// PanicHandler is called when a callback panics during execution.
// It receives the label passed to Execute, the panic value and the stack trace.
type PanicHandler func(label any, panicValue any, stack []byte)

// defaultPanicHandler is a no-op; callers inspect the Result instead.
func defaultPanicHandler(label any, panicValue any, stack []byte) {}
