package app

import (
	"strings"

	"github.com/rs/zerolog"
	"go.uber.org/fx/fxevent"
)

// fxLogger writes fx lifecycle events to zerolog. Routine events are
// logged at debug, failures at error.
type fxLogger struct {
	log zerolog.Logger
}

var _ fxevent.Logger = (*fxLogger)(nil)

// LogEvent implements fxevent.Logger.
func (l *fxLogger) LogEvent(ev fxevent.Event) {
	switch e := ev.(type) {
	case *fxevent.OnStartExecuted:
		l.hook(e.Err, "start", e.FunctionName, e.CallerName, e.Runtime.String())
	case *fxevent.OnStopExecuted:
		l.hook(e.Err, "stop", e.FunctionName, e.CallerName, e.Runtime.String())
	case *fxevent.Provided:
		if e.Err != nil {
			l.log.Error().Err(e.Err).Str("constructor", e.ConstructorName).Msg("fx provide failed")
			return
		}
		l.log.Debug().Str("constructor", e.ConstructorName).Str("types", strings.Join(e.OutputTypeNames, ",")).Msg("fx provided")
	case *fxevent.Invoked:
		if e.Err != nil {
			l.log.Error().Err(e.Err).Str("function", e.FunctionName).Msg("fx invoke failed")
		}
	case *fxevent.Started:
		if e.Err != nil {
			l.log.Error().Err(e.Err).Msg("start failed")
			return
		}
		l.log.Debug().Msg("started")
	case *fxevent.Stopped:
		if e.Err != nil {
			l.log.Error().Err(e.Err).Msg("stop failed")
		}
	case *fxevent.RollingBack:
		l.log.Error().Err(e.StartErr).Msg("start failed, rolling back")
	case *fxevent.Stopping:
		l.log.Info().Str("signal", strings.ToUpper(e.Signal.String())).Msg("received signal")
	}
}

func (l *fxLogger) hook(err error, phase, fn, caller, took string) {
	if err != nil {
		l.log.Error().Err(err).Str("hook", phase).Str("callee", fn).Str("caller", caller).Msg("lifecycle hook failed")
		return
	}
	l.log.Debug().Str("hook", phase).Str("callee", fn).Str("caller", caller).Str("took", took).Msg("lifecycle hook done")
}
