// Package app wires the statebus service together with go.uber.org/fx.
//
// Module provides the logger, the shared worker pool, the Prometheus
// registry, the demo buses, the configured Lua scripts, the demo driver and
// the admin HTTP server, and registers their lifecycle hooks. Components
// start in dependency order and stop in reverse.
package app
