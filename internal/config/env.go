package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// envMapping maps environment variables to the setters they drive.
var envMapping = map[string]func(*Config, string) error{
	"STATEBUS_LOG_LEVEL": func(c *Config, v string) error {
		c.Log.Level = strings.ToLower(v)
		return nil
	},
	"STATEBUS_LOG_FORMAT": func(c *Config, v string) error {
		c.Log.Format = strings.ToLower(v)
		return nil
	},
	"STATEBUS_ADMIN_ADDR": func(c *Config, v string) error {
		c.Admin.Addr = v
		c.Admin.Enabled = v != ""
		return nil
	},
	"STATEBUS_WORKERS": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Pool.Workers = n
		return nil
	},
}

// ApplyEnv applies environment overrides to cfg.
// Empty values are treated as set.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	for key, set := range envMapping {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		if err := set(cfg, v); err != nil {
			return fmt.Errorf("env %s=%q: %w", key, v, err)
		}
	}
	return nil
}
