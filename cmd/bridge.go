// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lbrlab/sunlink/internal/log"
	"github.com/lbrlab/sunlink/pkg/bridge"
	"github.com/lbrlab/sunlink/pkg/extctl"
)

var (
	bridgeListen string
	bridgePoll   time.Duration
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve the controller session over WebSocket",
	Long: `Run an HTTP server that drives one controller session:

  GET /ws       WebSocket; send {"op":"get_state|start|stop|restart|enable"}
                and receive the decoded reply or an error kind
  GET /metrics  Prometheus metrics
  GET /healthz  Session health (heartbeat, packet counter)

Requests from all clients share the session and its packet counter and are
executed one at a time. With --poll the bridge also requests the state at
that interval so metrics stay current.

Setting bridge.username and bridge.password (or SUNLINK_BRIDGE_USERNAME and
SUNLINK_BRIDGE_PASSWORD) requires HTTP Basic auth on /ws and /metrics.

Exit codes:
  0 - Stopped by signal
  2 - Configuration, connection or listen error`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringVar(&bridgeListen, "listen", "", "Listen address (default from config, 127.0.0.1:8630)")
	bridgeCmd.Flags().DurationVar(&bridgePoll, "poll", 0, "Request the controller state at this interval (0 = never)")
}

func runBridge(cmd *cobra.Command, args []string) error {
	listen := cfg.Bridge.Listen
	if cmd.Flags().Changed("listen") {
		listen = bridgeListen
	}

	cs := mustOpenSession()
	defer cs.Close()

	logger := log.Derive(func(c *zerolog.Context) {
		*c = c.Str(log.FieldComponent, "bridge").Str("listen", listen)
	})
	srv := bridge.New(cs.Session, bridge.Config{
		RateLimit:  cfg.Bridge.RateLimit,
		RateWindow: time.Minute,
		Username:   cfg.Bridge.Username,
		Password:   cfg.Bridge.Password,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, listen)
	})
	if bridgePoll > 0 {
		g.Go(func() error {
			return pollState(ctx, cs.Session, bridgePoll)
		})
	}

	err := g.Wait()

	// Drop App_Enable if a client left the application running
	if cs.HeartbeatRunning() {
		if _, stopErr := cs.AppStop(); stopErr != nil {
			logger.Warn().Err(stopErr).Msg("failed to stop the application on shutdown")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("bridge failed")
		cs.Close()
		os.Exit(exitSetup)
	}
	logger.Info().Msg("bridge stopped")
	return nil
}

// pollState requests the state every interval; failures are logged by the
// session and do not stop the bridge
func pollState(ctx context.Context, sess *extctl.Session, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = sess.GetState()
		}
	}
}
