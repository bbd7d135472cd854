// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lbrlab/sunlink/internal/config"
	"github.com/lbrlab/sunlink/internal/log"
)

var (
	// Controller connection flags
	host          string
	seed          uint64
	enableSignal  bool
	heartbeatRate float64

	// Output flags
	verbose     bool
	logLevel    string
	logFormat   string
	capturePath string

	configPath string

	// cfg is the merged configuration, valid once PersistentPreRunE ran
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sunlink",
	Short: "External control client for robot controllers",
	Long: `Sunlink - A CLI tool for driving a robot controller over its UDP external
control interface.

Commands are sent as datagrams to port 30300 of the controller; each reply
reports the controller state, the last packet counter it accepted and any
fault. The controller only accepts packets from the client IP configured in
its project and rejects counters that do not increase.

Settings are read from the --config YAML file, then SUNLINK_* environment
variables, then flags.

When the controller project evaluates App_Enable (--enable-signal), starting
the application also starts a heartbeat that keeps re-sending App_Enable;
stopping drops it. Without App_Enable the application can only be stopped
from the control pendant.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	// Controller connection flags
	rootCmd.PersistentFlags().StringVarP(&host, "host", "H", "", "Controller IP address (default "+config.Default().Host+")")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Initial packet counter; the first command carries seed+1")
	rootCmd.PersistentFlags().BoolVar(&enableSignal, "enable-signal", false, "Controller evaluates App_Enable (required for stop/restart)")
	rootCmd.PersistentFlags().Float64Var(&heartbeatRate, "heartbeat-rate", 0, "Max App_Enable heartbeats per second (0 = unlimited)")

	// Output flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every datagram sent and received")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (auto, json, console)")
	rootCmd.PersistentFlags().StringVar(&capturePath, "capture", "", "Append every transaction to this CBOR capture file")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
}

// loadConfig merges file, environment and flags, then configures logging
func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd.Flags(), &loaded)

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = loaded

	level := cfg.LogLevel
	if cfg.Verbose && level == "info" {
		level = "debug"
	}
	log.Configure(log.Config{
		Level:  level,
		Format: log.Format(cfg.LogFormat),
	})
	return nil
}

// applyFlags overlays the flags set on the command line
func applyFlags(flags *pflag.FlagSet, c *config.Config) {
	if flags.Changed("host") {
		c.Host = host
	}
	if flags.Changed("seed") {
		c.Seed = seed
	}
	if flags.Changed("enable-signal") {
		c.EnableSignal = enableSignal
	}
	if flags.Changed("heartbeat-rate") {
		c.HeartbeatRate = heartbeatRate
	}
	if flags.Changed("verbose") {
		c.Verbose = verbose
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		c.LogFormat = logFormat
	}
	if flags.Changed("capture") {
		c.Capture = capturePath
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
