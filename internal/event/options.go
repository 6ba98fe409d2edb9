package event

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Bus.
type Option func(*busConfig)

// busConfig contains configuration for the event bus.
type busConfig struct {
	// name identifies the bus in logs, errors and metrics.
	name string

	// logger receives topic, drain and failure events.
	logger zerolog.Logger

	// panicHandler is called when a subscriber panics.
	panicHandler PanicHandler

	// errorHandler is called when a subscriber returns an error.
	errorHandler ErrorHandler

	// handlerTimeout bounds the ctx given to each subscriber call.
	handlerTimeout time.Duration
}

func defaultBusConfig(name string) busConfig {
	return busConfig{
		name:   name,
		logger: zerolog.Nop(),
	}
}

// WithName sets the bus name. The default is the Go type name of T.
func WithName(name string) Option {
	return func(c *busConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *busConfig) {
		c.logger = l
	}
}

// WithPanicHandler sets a callback for subscriber panics.
// Panics are logged and reported on the Completion either way.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *busConfig) {
		c.panicHandler = h
	}
}

// WithErrorHandler sets a callback for subscriber errors.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *busConfig) {
		c.errorHandler = h
	}
}

// WithHandlerTimeout gives every subscriber call a ctx that expires after d.
// Subscribers must watch ctx for this to have any effect. Zero disables it.
func WithHandlerTimeout(d time.Duration) Option {
	return func(c *busConfig) {
		c.handlerTimeout = d
	}
}
