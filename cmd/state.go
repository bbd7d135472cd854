// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	stateWatch time.Duration
	stateCount int
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Request the controller state",
	Long: `Send Get_State and print the decoded reply: AUT mode flags, application
state, signal echoes and any fault.

With --watch the request is repeated at the given interval until interrupted
(or --count requests were made) and a statistics summary is printed at the
end. A sequence mismatch is reported with the counter to resync with.

Exit codes:
  0 - Every reply received without a fault
  1 - At least one timeout, malformed reply or controller fault
  2 - Configuration or connection error`,
	RunE: runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.Flags().DurationVar(&stateWatch, "watch", 0, "Repeat the request at this interval (e.g. 500ms)")
	stateCmd.Flags().IntVar(&stateCount, "count", 0, "Stop watching after this many requests (0 = until interrupted)")
}

func runState(cmd *cobra.Command, args []string) error {
	cs := mustOpenSession()
	defer cs.Close()

	printHeader("Get State", cs)

	if stateWatch <= 0 {
		code := reportOutcome(cs.GetState())
		cs.Close()
		os.Exit(code)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(stateWatch)
	defer ticker.Stop()

	code := exitOK
watch:
	for n := 1; ; n++ {
		if c := reportOutcome(cs.GetState()); c > code {
			code = c
		}
		fmt.Println()

		if stateCount > 0 && n >= stateCount {
			break
		}
		select {
		case <-sigChan:
			break watch
		case <-ticker.C:
		}
	}

	fmt.Print(cs.stats.String())
	cs.Close()
	os.Exit(code)
	return nil
}
