package app

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"

	"github.com/dshills/statebus/internal/config"
	"github.com/dshills/statebus/internal/demo"
	"github.com/dshills/statebus/internal/event/dispatch"
	"github.com/dshills/statebus/internal/httpapi"
	"github.com/dshills/statebus/internal/logging"
	"github.com/dshills/statebus/internal/metrics"
	"github.com/dshills/statebus/internal/script"
)

// Module returns the statebus fx module for cfg.
func Module(cfg config.Config) fx.Option {
	return fx.Module("statebus",
		fx.Supply(cfg),
		fx.Provide(
			NewLogger,
			NewPool,
			NewRegistry,
			NewBuses,
			NewCollector,
			NewScripts,
			NewDriver,
			NewAdmin,
			newReadiness,
		),
		fx.Invoke(
			func(*metrics.Collector) {},
			func(Scripts) {},
			func(*demo.Driver) {},
			func(*httpapi.Server) {},
			markReady,
		),
	)
}

// WithLogger routes fx's own events to the module logger.
func WithLogger() fx.Option {
	return fx.WithLogger(func(log zerolog.Logger) fxevent.Logger {
		return &fxLogger{log: logging.Component(log, "fx")}
	})
}

// NewLogger builds the service logger from configuration.
func NewLogger(cfg config.Config) (zerolog.Logger, error) {
	return logging.New(cfg.Log, nil)
}

// NewPool starts the shared worker pool and shuts it down on stop.
func NewPool(lc fx.Lifecycle, cfg config.Config, log zerolog.Logger) *dispatch.Pool {
	pool := dispatch.NewPool(
		dispatch.WithWorkers(cfg.Pool.Workers),
		dispatch.WithPoolLogger(logging.Component(log, "pool")),
	)
	lc.Append(fx.Hook{
		OnStop: pool.Shutdown,
	})
	return pool
}

// NewRegistry creates the Prometheus registry with Go and process metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewBuses creates the demo buses on the shared pool.
func NewBuses(pool *dispatch.Pool, log zerolog.Logger) (*demo.Buses, error) {
	return demo.NewBuses(pool, logging.Component(log, "bus"))
}

// NewCollector exports bus and pool statistics on reg.
func NewCollector(reg *prometheus.Registry, pool *dispatch.Pool, buses *demo.Buses) (*metrics.Collector, error) {
	c := metrics.NewCollector(pool, buses.Inspectors()...)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Scripts are the Lua runtimes loaded from configuration.
type Scripts []*script.Runtime

// NewScripts loads every configured script and closes them on stop.
func NewScripts(lc fx.Lifecycle, cfg config.Config, buses *demo.Buses, log zerolog.Logger) (Scripts, error) {
	slog := logging.Component(log, "script")

	var out Scripts
	for _, sc := range cfg.Scripts {
		r, err := demo.LoadScript(buses, sc, slog)
		if err != nil {
			return nil, multierr.Append(err, out.Close())
		}
		slog.Info().Str("path", sc.Path).Str("bus", sc.Bus).Str("topic", sc.Topic).Str("handler", sc.Handler).Msg("script bound")
		out = append(out, r)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return out.Close() },
	})
	return out, nil
}

// Close closes every runtime.
func (s Scripts) Close() error {
	var err error
	for _, r := range s {
		err = multierr.Append(err, r.Close())
	}
	return err
}

// NewDriver creates the demo driver and runs it between start and stop.
func NewDriver(lc fx.Lifecycle, cfg config.Config, buses *demo.Buses, log zerolog.Logger) *demo.Driver {
	d := demo.NewDriver(buses, cfg.Demo, log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// The start context expires once startup is done.
			d.Start(context.Background())
			return nil
		},
		OnStop: d.Stop,
	})
	return d
}

type readiness struct {
	ready atomic.Bool
}

func newReadiness() *readiness {
	return &readiness{}
}

// markReady flips readiness once every other start hook has run.
func markReady(lc fx.Lifecycle, r *readiness) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			r.ready.Store(true)
			return nil
		},
		OnStop: func(context.Context) error {
			r.ready.Store(false)
			return nil
		},
	})
}

// NewAdmin creates the admin server when it is enabled. It returns nil
// otherwise.
func NewAdmin(lc fx.Lifecycle, cfg config.Config, buses *demo.Buses, reg *prometheus.Registry, ready *readiness, log zerolog.Logger) *httpapi.Server {
	if !cfg.Admin.Enabled {
		return nil
	}
	alog := logging.Component(log, "admin")
	mux := httpapi.NewMux(buses, httpapi.Options{
		Registry: reg,
		Logger:   alog,
		Ready:    ready.ready.Load,
	})
	srv := httpapi.NewServer(cfg.Admin.Addr, mux, alog)
	lc.Append(fx.Hook{
		OnStart: srv.Start,
		OnStop:  srv.Shutdown,
	})
	return srv
}
