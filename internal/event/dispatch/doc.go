// Package dispatch provides the execution machinery behind asynchronous
// event delivery.
//
// # Pool
//
// Pool is a fixed set of worker goroutines draining a shared, unbounded
// FIFO task queue. Submit never blocks and never drops a task. Shutdown
// stops intake, lets the workers finish everything already queued and
// then waits for them to exit:
//
//	pool := dispatch.NewPool(dispatch.WithWorkers(4))
//	pool.Submit(func() { ... })
//	_ = pool.Shutdown(ctx)
//
// Submitting to a pool that is shutting down is a programming error and
// panics with ErrPoolClosed.
//
// # Executor
//
// Executor runs a single callback with panic recovery and timing. A panic
// never escapes Execute; it is reported through the Result and, when
// configured, a PanicHandler.
//
//	exec := dispatch.NewExecutor()
//	result := exec.Execute(ctx, "label", func(ctx context.Context) error {
//	    return nil
//	})
//	if !result.IsSuccess() {
//	    // Handle error or panic
//	}
package dispatch
