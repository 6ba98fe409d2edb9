// Package config loads the statebus configuration.
//
// A configuration file may be TOML, YAML or JSON; the format is chosen by
// extension. Values missing from the file keep their defaults, and a small
// set of environment variables override the file:
//
//	STATEBUS_LOG_LEVEL   log.level
//	STATEBUS_LOG_FORMAT  log.format
//	STATEBUS_ADMIN_ADDR  admin.addr (also enables the admin server)
//	STATEBUS_WORKERS     pool.workers
//
// Basic usage:
//
//	cfg, err := config.Load("statebus.toml")
//	if err != nil {
//	    return err
//	}
package config
