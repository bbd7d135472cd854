// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

// Package config loads sunlink settings. Sources are applied in order, later
// wins: built-in defaults, the YAML file, SUNLINK_* environment variables,
// then command line flags (applied by the caller).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv
const EnvPrefix = "SUNLINK_"

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Config is the full sunlink configuration
type Config struct {
	Host          string  `yaml:"host"`
	Seed          uint64  `yaml:"seed"`
	EnableSignal  bool    `yaml:"enable_signal"`
	Verbose       bool    `yaml:"verbose"`
	HeartbeatRate float64 `yaml:"heartbeat_rate"`
	LogLevel      string  `yaml:"log_level"`
	LogFormat     string  `yaml:"log_format"`
	Capture       string  `yaml:"capture"`
	LocalIP       string  `yaml:"local_ip"`

	Bridge BridgeConfig `yaml:"bridge"`
}

// BridgeConfig configures the WebSocket bridge server
type BridgeConfig struct {
	Listen    string `yaml:"listen"`
	RateLimit int    `yaml:"rate_limit"` // per minute: HTTP requests per client IP, messages per WebSocket

	// Basic auth for /ws and /metrics; disabled when Username is empty
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Default returns the built-in defaults
func Default() Config {
	return Config{
		Host:      extctl.DefaultControllerHost,
		LogLevel:  "info",
		LogFormat: "auto",
		LocalIP:   extctl.DefaultClientIP,
		Bridge: BridgeConfig{
			Listen:    "127.0.0.1:8630",
			RateLimit: 600,
		},
	}
}

// Load returns the defaults overlaid with the file at path, then with the
// environment. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	// #nosec G304 -- configuration file paths are provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return c.decodeYAML(data)
}

func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// ApplyEnv overlays SUNLINK_* variables found through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("HOST", &c.Host)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("CAPTURE", &c.Capture)
	str("LOCAL_IP", &c.LocalIP)
	str("BRIDGE_LISTEN", &c.Bridge.Listen)
	str("BRIDGE_USERNAME", &c.Bridge.Username)
	str("BRIDGE_PASSWORD", &c.Bridge.Password)
	boolean("ENABLE_SIGNAL", &c.EnableSignal)
	boolean("VERBOSE", &c.Verbose)

	if v, ok := lookup(EnvPrefix + "SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSEED: %w", EnvPrefix, err))
		} else {
			c.Seed = seed
		}
	}
	if v, ok := lookup(EnvPrefix + "HEARTBEAT_RATE"); ok && v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sHEARTBEAT_RATE: %w", EnvPrefix, err))
		} else {
			c.HeartbeatRate = r
		}
	}

	return errors.Join(errs...)
}

// Validate checks the merged configuration
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, errors.New("host must not be empty"))
	}
	if c.HeartbeatRate < 0 {
		errs = append(errs, fmt.Errorf("heartbeat_rate must not be negative, got %g", c.HeartbeatRate))
	}
	if c.LocalIP != "" && net.ParseIP(c.LocalIP) == nil {
		errs = append(errs, fmt.Errorf("local_ip %q is not an IP address", c.LocalIP))
	}
	switch c.LogFormat {
	case "", "auto", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format must be auto, json or console, got %q", c.LogFormat))
	}
	if c.Bridge.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("bridge.rate_limit must not be negative, got %d", c.Bridge.RateLimit))
	}
	if c.Bridge.Username != "" && c.Bridge.Password == "" {
		errs = append(errs, errors.New("bridge.password is required when bridge.username is set"))
	}
	return errors.Join(errs...)
}

// Session converts the configuration into session parameters
func (c Config) Session() extctl.Config {
	return extctl.Config{
		Host:            c.Host,
		Seed:            c.Seed,
		EnableSupported: c.EnableSignal,
		HeartbeatRate:   c.HeartbeatRate,
		Verbose:         c.Verbose,
	}
}
