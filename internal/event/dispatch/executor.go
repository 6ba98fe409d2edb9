package dispatch

import (
	"context"
	"runtime/debug"
	"time"
)

// Executor handles the actual execution of callbacks with
// panic recovery and timing.
type Executor struct {
	panicHandler PanicHandler
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		panicHandler: defaultPanicHandler,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorPanicHandler sets the panic handler for the executor.
func WithExecutorPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// Execute runs fn and returns the result. The label is only passed through
// to the panic handler. It recovers from panics and captures timing information.
func (e *Executor) Execute(ctx context.Context, label any, fn Func) (result Result) {
	select {
	case <-ctx.Done():
		return Result{
			Success: false,
			Error:   ctx.Err(),
			Skipped: true,
		}
	default:
	}

	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()

			result.Success = false
			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = stack

			// A panicking panic handler must not take the process down.
			if e.panicHandler != nil {
				func() {
					defer func() {
						_ = recover()
					}()
					e.panicHandler(label, r, stack)
				}()
			}
		}
	}()

	if err := fn(ctx); err != nil {
		result.Success = false
		result.Error = err
	} else {
		result.Success = true
	}

	return result
}

// ExecuteWithTimeout runs fn with a timeout.
// Note: fn must respect context cancellation for this to be effective.
func (e *Executor) ExecuteWithTimeout(ctx context.Context, label any, fn Func, timeout time.Duration) Result {
	if timeout <= 0 {
		return e.Execute(ctx, label, fn)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return e.Execute(ctx, label, fn)
}
