// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

var (
	startHold    bool
	enableReport bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the controller's default application",
	Long: `Send App_Start and print the controller's reply.

With --enable-signal the App_Enable heartbeat is started first. The
controller pauses the application about 100ms after the heartbeat stops, so
by default start keeps running until interrupted (Ctrl+C), then drops
App_Enable. Pass --hold=false to exit right after the reply.

Exit codes:
  0 - Reply received without a fault
  1 - Timeout, malformed reply or controller fault
  2 - Configuration or connection error`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the application by dropping App_Enable",
	Long: `Send App_Enable=false and print the controller's reply.

Only available with --enable-signal; without it nothing is sent and the
application has to be stopped from the control pendant.

Exit codes:
  0 - Reply received without a fault
  1 - Timeout, malformed reply or controller fault
  2 - Unsupported, configuration or connection error`,
	RunE: runStop,
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Stop then start the application",
	Long: `Send App_Enable=false, then App_Start if the stop succeeded. Requires
--enable-signal. Like start, restart keeps the heartbeat running until
interrupted unless --hold=false is given.

Exit codes:
  0 - Both replies received without a fault
  1 - Timeout, malformed reply or controller fault
  2 - Unsupported, configuration or connection error`,
	RunE: runRestart,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Send a single App_Enable=true",
	Long: `Send one App_Enable=true datagram. The reply is only read with --report.

Exit codes:
  0 - Sent (and, with --report, reply received without a fault)
  1 - Timeout, malformed reply or controller fault
  2 - Configuration or connection error`,
	RunE: runEnable,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(enableCmd)

	startCmd.Flags().BoolVar(&startHold, "hold", true, "Keep the App_Enable heartbeat running until interrupted")
	restartCmd.Flags().BoolVar(&startHold, "hold", true, "Keep the App_Enable heartbeat running until interrupted")
	enableCmd.Flags().BoolVar(&enableReport, "report", false, "Wait for and print the controller's reply")
}

func runStart(cmd *cobra.Command, args []string) error {
	return runAppCommand("Start", (*extctl.Session).AppStart)
}

func runRestart(cmd *cobra.Command, args []string) error {
	return runAppCommand("Restart", (*extctl.Session).AppRestart)
}

// runAppCommand runs start or restart, then holds the heartbeat if requested
func runAppCommand(title string, op func(*extctl.Session) (*extctl.Report, error)) error {
	cs := mustOpenSession()
	defer cs.Close()

	printHeader(title, cs)

	code := reportOutcome(op(cs.Session))
	if code != exitOK || !cs.HeartbeatRunning() || !startHold {
		cs.Close()
		os.Exit(code)
	}

	fmt.Printf("\nApp_Enable heartbeat running. Press Ctrl+C to stop the application.\n")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	fmt.Println()

	code = reportOutcome(cs.AppStop())
	fmt.Println()
	fmt.Print(cs.stats.String())
	cs.Close()
	os.Exit(code)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	cs := mustOpenSession()
	defer cs.Close()

	printHeader("Stop", cs)
	code := reportOutcome(cs.AppStop())
	cs.Close()
	os.Exit(code)
	return nil
}

func runEnable(cmd *cobra.Command, args []string) error {
	cs := mustOpenSession()
	defer cs.Close()

	printHeader("Enable", cs)
	r, err := cs.AppEnable(enableReport)
	code := reportOutcome(r, err)
	if err == nil && !enableReport {
		fmt.Printf("App_Enable sent (packet %d)\n", cs.Sequence())
	}
	cs.Close()
	os.Exit(code)
	return nil
}
