package script

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/statebus/internal/event"
)

// DefaultCallTimeout bounds a single call into Lua.
const DefaultCallTimeout = 2 * time.Second

// Runtime is a sandboxed Lua state acting as one subscriber identity.
//
// gopher-lua's LState is not goroutine-safe; the mutex serializes every
// call coming from bus deliveries and from Go code.
type Runtime struct {
	event.Identifier

	name    string
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.Mutex
	L      *lua.LState
	subs   []*event.Subscription
	closed bool

	calls    atomic.Uint64
	failures atomic.Uint64
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithName sets the runtime name used in logs.
func WithName(name string) Option {
	return func(r *Runtime) {
		r.name = name
	}
}

// WithCallTimeout sets the timeout for each call into Lua.
// Zero disables it.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.timeout = d
	}
}

// WithLogger sets the logger that receives script output and failures.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runtime) {
		r.log = l
	}
}

// NewRuntime creates a sandboxed runtime.
func NewRuntime(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		name:    "script",
		timeout: DefaultCallTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With().Str("script", r.name).Logger()

	r.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	sandbox(r.L, r.log)
	return r, nil
}

// Name returns the runtime name.
func (r *Runtime) Name() string {
	return r.name
}

// DoString executes a chunk of Lua.
func (r *Runtime) DoString(code string) error {
	return r.do(context.Background(), func(L *lua.LState) error {
		return L.DoString(code)
	})
}

// DoFile reads and executes a Lua file. The file is read by Go; the
// sandbox has no file access of its own.
func (r *Runtime) DoFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return r.do(context.Background(), func(L *lua.LState) error {
		fn, err := L.Load(bytes.NewReader(data), path)
		if err != nil {
			return err
		}
		L.Push(fn)
		return L.PCall(0, lua.MultRet, nil)
	})
}

// Call invokes a global Lua function with Go arguments.
func (r *Runtime) Call(ctx context.Context, fn string, args ...any) error {
	return r.do(ctx, func(L *lua.LState) error {
		return r.callLocked(L, fn, args...)
	})
}

// callLocked calls a global function. Caller holds mu.
func (r *Runtime) callLocked(L *lua.LState, fn string, args ...any) error {
	fv := L.GetGlobal(fn)
	if fv.Type() != lua.LTFunction {
		return fmt.Errorf("%w: %q (got %s)", ErrFunctionNotFound, fn, fv.Type())
	}

	top := L.GetTop()
	L.Push(fv)
	for _, a := range args {
		lv, err := toLua(L, a)
		if err != nil {
			L.SetTop(top)
			return err
		}
		L.Push(lv)
	}
	err := L.PCall(len(args), 0, nil)
	L.SetTop(top)
	return err
}

// do runs fn with the state locked, a bounded context and panic recovery.
func (r *Runtime) do(ctx context.Context, fn func(L *lua.LState) error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRuntimeClosed
	}
	r.calls.Add(1)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic: %v", rec)
		}
		if err != nil {
			r.failures.Add(1)
		}
	}()
	return fn(r.L)
}

// callContext returns the context of the call currently running in L.
// Functions exposed to Lua use it so nested publishes carry the
// delivery context of the subscriber that triggered them.
func callContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// keep records a subscription so it lives as long as the runtime.
func (r *Runtime) keep(sub *event.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		sub.Close()
		return ErrRuntimeClosed
	}
	r.subs = append(r.subs, sub)
	return nil
}

// Subscriptions returns the number of bindings held by the runtime.
func (r *Runtime) Subscriptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Stats returns the number of calls into Lua and how many failed.
func (r *Runtime) Stats() (calls, failures uint64) {
	return r.calls.Load(), r.failures.Load()
}

// Close releases every binding and the Lua state.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	for _, sub := range r.subs {
		sub.Close()
	}
	r.subs = nil
	r.L.Close()
	r.closed = true
	return nil
}
