package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config is the full statebus configuration.
type Config struct {
	Pool    PoolConfig     `json:"pool" yaml:"pool" toml:"pool"`
	Log     LogConfig      `json:"log" yaml:"log" toml:"log"`
	Admin   AdminConfig    `json:"admin" yaml:"admin" toml:"admin"`
	Demo    DemoConfig     `json:"demo" yaml:"demo" toml:"demo"`
	Scripts []ScriptConfig `json:"scripts,omitempty" yaml:"scripts,omitempty" toml:"scripts,omitempty"`
}

// PoolConfig configures the shared worker pool.
type PoolConfig struct {
	// Workers is the number of worker goroutines. Zero means NumCPU.
	Workers int `json:"workers" yaml:"workers" toml:"workers"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error, disabled.
	Level string `json:"level" yaml:"level" toml:"level"`
	// Format is console or json.
	Format string `json:"format" yaml:"format" toml:"format"`
}

// AdminConfig configures the admin HTTP server.
type AdminConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" toml:"addr"`
}

// DemoConfig configures the demo driver started by `statebus run`.
type DemoConfig struct {
	// Topic is the topic the driver publishes to.
	Topic string `json:"topic" yaml:"topic" toml:"topic"`
	// IntervalMS is the delay between frames. Zero disables the driver.
	IntervalMS int `json:"interval_ms" yaml:"interval_ms" toml:"interval_ms"`
	// Frames stops the driver after this many frames. Zero runs until shutdown.
	Frames int `json:"frames" yaml:"frames" toml:"frames"`
}

// Interval returns the frame interval as a duration.
func (d DemoConfig) Interval() time.Duration {
	return time.Duration(d.IntervalMS) * time.Millisecond
}

// ScriptConfig binds a Lua function to a bus topic.
type ScriptConfig struct {
	// Path is the Lua file to load.
	Path string `json:"path" yaml:"path" toml:"path"`
	// Bus names the bus to subscribe to: "window" or "frame".
	Bus string `json:"bus" yaml:"bus" toml:"bus"`
	// Topic is the topic to subscribe to.
	Topic string `json:"topic" yaml:"topic" toml:"topic"`
	// Handler is the global Lua function to call.
	Handler string `json:"handler" yaml:"handler" toml:"handler"`
	// Member restricts the subscription to one member. Empty subscribes to
	// the whole event.
	Member string `json:"member,omitempty" yaml:"member,omitempty" toml:"member,omitempty"`
	// Mode is "change" or "always".
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty" toml:"mode,omitempty"`
	// PublishAs renames the Lua global that exposes Bus to the script.
	// Empty exposes every bus under its own name.
	PublishAs string `json:"publish_as,omitempty" yaml:"publish_as,omitempty" toml:"publish_as,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Pool: PoolConfig{Workers: runtime.NumCPU()},
		Log:  LogConfig{Level: "info", Format: "console"},
		Admin: AdminConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Demo: DemoConfig{
			Topic:      "main",
			IntervalMS: 1000,
		},
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error", "disabled"}
	logFormats = []string{"console", "json"}
	scriptBus  = []string{"window", "frame"}
	notifyMode = []string{"", "change", "on-change", "always"}
)

// Validate reports every problem with c.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Pool.Workers < 0 {
		add("pool.workers must not be negative, got %d", c.Pool.Workers)
	}
	if !oneOf(strings.ToLower(c.Log.Level), logLevels) {
		add("log.level %q must be one of %s", c.Log.Level, strings.Join(logLevels, ", "))
	}
	if !oneOf(strings.ToLower(c.Log.Format), logFormats) {
		add("log.format %q must be one of %s", c.Log.Format, strings.Join(logFormats, ", "))
	}
	if c.Admin.Enabled && c.Admin.Addr == "" {
		add("admin.addr is required when admin is enabled")
	}
	if c.Demo.IntervalMS < 0 {
		add("demo.interval_ms must not be negative, got %d", c.Demo.IntervalMS)
	}
	if c.Demo.Frames < 0 {
		add("demo.frames must not be negative, got %d", c.Demo.Frames)
	}
	if c.Demo.IntervalMS > 0 && c.Demo.Topic == "" {
		add("demo.topic is required when the demo driver is enabled")
	}

	for i, s := range c.Scripts {
		if s.Path == "" {
			add("scripts[%d].path is required", i)
		}
		if s.Handler == "" {
			add("scripts[%d].handler is required", i)
		}
		if !oneOf(s.Bus, scriptBus) {
			add("scripts[%d].bus %q must be one of %s", i, s.Bus, strings.Join(scriptBus, ", "))
		}
		if !oneOf(s.Mode, notifyMode) {
			add("scripts[%d].mode %q must be change or always", i, s.Mode)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func oneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
