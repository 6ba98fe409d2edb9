package dispatch

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Pool executes submitted tasks on a fixed set of worker goroutines.
// The task queue is unbounded: Submit never blocks and never drops.
type Pool struct {
	// Configuration
	workers      int
	logger       zerolog.Logger
	panicHandler PanicHandler

	// State
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	wg     sync.WaitGroup

	// Stats
	submitted   atomic.Uint64
	completed   atomic.Uint64
	panicked    atomic.Uint64
	active      atomic.Int64
	totalTimeNs atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of worker goroutines.
// Values below one are ignored.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPoolLogger sets the logger used to report task panics.
func WithPoolLogger(l zerolog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = l
	}
}

// WithPoolPanicHandler sets a callback invoked when a task panics.
func WithPoolPanicHandler(h PanicHandler) PoolOption {
	return func(p *Pool) {
		p.panicHandler = h
	}
}

// NewPool creates a pool and starts its workers.
// The default worker count is runtime.NumCPU().
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		workers:      runtime.NumCPU(),
		logger:       zerolog.Nop(),
		panicHandler: defaultPanicHandler,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit enqueues a task and wakes one idle worker.
// It panics with ErrPoolClosed once Shutdown has been called.
func (p *Pool) Submit(task func()) {
	if task == nil {
		panic(ErrNilTask)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		panic(ErrPoolClosed)
	}
	p.queue = append(p.queue, task)
	p.submitted.Add(1)
	p.mu.Unlock()

	p.cond.Signal()
}

// Shutdown stops accepting tasks, lets the workers drain everything already
// queued and waits for them to exit or for ctx to end. Calling it more than
// once is allowed; later calls wait for the same workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed reports whether Shutdown has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	executor := NewExecutor(WithExecutorPanicHandler(p.panicHandler))

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			// closed and drained
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(executor, id, task)
	}
}

func (p *Pool) run(executor *Executor, id int, task func()) {
	p.active.Add(1)
	defer p.active.Add(-1)

	result := executor.Execute(context.Background(), id, func(context.Context) error {
		task()
		return nil
	})

	p.completed.Add(1)
	p.totalTimeNs.Add(result.Duration.Nanoseconds())
	if result.Panicked {
		p.panicked.Add(1)
		p.logger.Error().
			Int("worker", id).
			Interface("panic", result.PanicValue).
			Bytes("stack", result.PanicStack).
			Msg("pool task panicked")
	}
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	depth := len(p.queue)
	closed := p.closed
	p.mu.Unlock()

	completed := p.completed.Load()
	totalNs := p.totalTimeNs.Load()

	var avgNs int64
	if completed > 0 {
		avgNs = totalNs / int64(completed)
	}

	return PoolStats{
		Workers:       p.workers,
		Submitted:     p.submitted.Load(),
		Completed:     completed,
		Panicked:      p.panicked.Load(),
		Active:        int(p.active.Load()),
		QueueDepth:    depth,
		Closed:        closed,
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}

// PoolStats contains statistics for a pool.
type PoolStats struct {
	// Workers is the fixed number of worker goroutines.
	Workers int

	// Submitted is the total number of tasks accepted by Submit.
	Submitted uint64

	// Completed is the number of tasks that finished, including panics.
	Completed uint64

	// Panicked is the number of tasks that panicked.
	Panicked uint64

	// Active is the number of tasks currently running.
	Active int

	// QueueDepth is the number of tasks waiting for a worker.
	QueueDepth int

	// Closed is true once Shutdown has been called.
	Closed bool

	// TotalDuration is the cumulative time spent running tasks.
	TotalDuration time.Duration

	// AvgDuration is the average task run time.
	AvgDuration time.Duration
}
