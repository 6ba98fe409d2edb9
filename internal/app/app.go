package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/dshills/statebus/internal/config"
	"github.com/dshills/statebus/internal/demo"
)

// DefaultStopTimeout bounds graceful shutdown.
const DefaultStopTimeout = 10 * time.Second

// New builds the fx application for cfg. Extra options are appended, which
// lets callers populate values or replace the fx logger.
func New(cfg config.Config, opts ...fx.Option) *fx.App {
	base := []fx.Option{
		Module(cfg),
		WithLogger(),
		fx.StopTimeout(DefaultStopTimeout),
	}
	return fx.New(append(base, opts...)...)
}

// Run starts the service and blocks until ctx is done or the demo driver
// finished its configured frames, then stops everything.
func Run(ctx context.Context, cfg config.Config) error {
	var driver *demo.Driver
	app := New(cfg, fx.Populate(&driver))
	if err := app.Err(); err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	// A nil channel never fires: an idle driver does not end the run.
	select {
	case <-ctx.Done():
	case <-driver.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}
