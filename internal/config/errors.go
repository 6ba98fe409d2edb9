package config

import (
	"errors"
	"fmt"
)

// Errors returned by configuration operations.
var (
	// ErrEmptyPath indicates Load was called without a path.
	ErrEmptyPath = errors.New("empty config path")

	// ErrUnsupportedFormat indicates an unknown config file extension.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrValidationFailed indicates the configuration is not usable.
	ErrValidationFailed = errors.New("validation failed")
)

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	// Path is the file path that failed to parse.
	Path string
	// Format is the format the file was parsed as.
	Format string
	// Err is the underlying decoder error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s (%s): %v", e.Path, e.Format, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError lists every problem found by Validate.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid config: %s", e.Problems[0])
	}
	return fmt.Sprintf("invalid config: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

// Is reports whether target is ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
