package demo

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/dshills/statebus/internal/config"
	"github.com/dshills/statebus/internal/event"
	"github.com/dshills/statebus/internal/script"
)

// LoadScript creates a runtime for sc, exposes both buses to it, runs the
// file and binds its handler.
//
// The bus named by sc.Bus is exposed under sc.PublishAs when set, the
// other bus under its own name.
func LoadScript(b *Buses, sc config.ScriptConfig, log zerolog.Logger) (*script.Runtime, error) {
	mode, ok := event.ParseNotifyMode(sc.Mode)
	if !ok {
		return nil, fmt.Errorf("script %s: unknown mode %q", sc.Path, sc.Mode)
	}

	r, err := script.NewRuntime(
		script.WithName(filepath.Base(sc.Path)),
		script.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	if err := b.bindScript(r, sc, mode); err != nil {
		return nil, multierr.Append(fmt.Errorf("script %s: %w", sc.Path, err), r.Close())
	}
	return r, nil
}

func (b *Buses) bindScript(r *script.Runtime, sc config.ScriptConfig, mode event.NotifyMode) error {
	exposed := func(bus string) string {
		if bus == sc.Bus && sc.PublishAs != "" {
			return sc.PublishAs
		}
		return bus
	}
	if err := script.Expose(r, exposed(WindowBus), b.Window); err != nil {
		return err
	}
	if err := script.Expose(r, exposed(FrameBus), b.Frame); err != nil {
		return err
	}
	if err := r.DoFile(sc.Path); err != nil {
		return err
	}

	switch sc.Bus {
	case WindowBus:
		if sc.Member == "" {
			return script.BindWhole(r, b.Window, sc.Topic, sc.Handler, mode)
		}
		return script.BindMember(r, b.Window, sc.Topic, sc.Member, sc.Handler, mode)
	case FrameBus:
		if sc.Member == "" {
			return script.BindWhole(r, b.Frame, sc.Topic, sc.Handler, mode)
		}
		return script.BindMember(r, b.Frame, sc.Topic, sc.Member, sc.Handler, mode)
	default:
		return fmt.Errorf("unknown bus %q", sc.Bus)
	}
}
