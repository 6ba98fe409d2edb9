package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file on top of Default, applies environment
// overrides and validates the result. An empty path loads only defaults and
// the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := Parse(path, data, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes data into cfg using the format implied by the extension of
// name. Fields absent from data keep their current values.
func Parse(name string, data []byte, cfg *Config) error {
	format := formatOf(name)
	var err error
	switch format {
	case "toml":
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg)
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err != nil {
		return &ParseError{Path: name, Format: format, Err: err}
	}
	return nil
}

// Encode writes cfg in the format implied by the extension of name.
func Encode(name string, cfg Config) ([]byte, error) {
	switch formatOf(name) {
	case "toml":
		return toml.Marshal(cfg)
	case "yaml":
		return yaml.Marshal(cfg)
	case "json":
		return json.MarshalIndent(cfg, "", "  ")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

func formatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return ""
	}
}
