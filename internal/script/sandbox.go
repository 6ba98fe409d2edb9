package script

import (
	"strings"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"
)

// unsafeGlobals are removed after the base library is opened.
var unsafeGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"require",
	"module",
	"collectgarbage",
}

// sandbox opens the safe standard libraries, strips loaders and routes
// print and log.* to the runtime logger.
func sandbox(L *lua.LState, log zerolog.Logger) {
	// io, os, debug and package stay closed.
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		log.Info().Msg(joinArgs(L))
		return 0
	}))

	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"debug": logFunc(log, zerolog.DebugLevel),
		"info":  logFunc(log, zerolog.InfoLevel),
		"warn":  logFunc(log, zerolog.WarnLevel),
		"error": logFunc(log, zerolog.ErrorLevel),
	})
	L.SetGlobal("log", mod)
}

func logFunc(log zerolog.Logger, level zerolog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		log.WithLevel(level).Msg(joinArgs(L))
		return 0
	}
}

func joinArgs(L *lua.LState) string {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	return strings.Join(parts, "\t")
}
