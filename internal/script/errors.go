package script

import "errors"

// Errors for script runtimes.
var (
	// ErrRuntimeClosed is returned when operating on a closed runtime.
	ErrRuntimeClosed = errors.New("script runtime is closed")

	// ErrFunctionNotFound is returned when a bound Lua global is not a function.
	ErrFunctionNotFound = errors.New("lua function not found")

	// ErrUnsupportedType is returned when a value cannot cross the Lua boundary.
	ErrUnsupportedType = errors.New("unsupported type for lua conversion")
)
