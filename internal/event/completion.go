package event

import "context"

// Completion is the handle returned for an enqueued update.
// It is done once the update has been applied and its subscribers called.
type Completion struct {
	done chan struct{}
	err  error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func (c *Completion) complete(err error) {
	c.err = err
	close(c.done)
}

// Done returns a channel closed when the update has been delivered.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the update has been delivered or ctx ends.
// Giving up on the wait does not cancel the update.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the aggregated subscriber failures of a delivered update.
// It returns nil while the update is still pending.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}
