// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lbrlab/sunlink/pkg/capture"
)

var captureDumpKinds []string

var captureDumpCmd = &cobra.Command{
	Use:   "capture_dump FILE",
	Short: "Print a capture file in human-readable format",
	Long: `Decode a CBOR capture written with --capture and print each record:
commands sent, decoded replies, timeouts, malformed replies and heartbeat
changes. Replies are decoded again, so anomalies are reported as they would
be live.

Exit codes:
  0 - Whole file printed
  1 - The file contains a corrupt record
  2 - The file could not be opened`,
	Args: cobra.ExactArgs(1),
	RunE: runCaptureDump,
}

func init() {
	rootCmd.AddCommand(captureDumpCmd)
	captureDumpCmd.Flags().StringSliceVar(&captureDumpKinds, "kind", nil, "Only print these record kinds (COMMAND, REPLY, TIMEOUT, MALFORMED, SEND_ERROR, HEARTBEAT)")
}

func runCaptureDump(cmd *cobra.Command, args []string) error {
	r, err := capture.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitSetup)
	}
	defer r.Close()

	filter := make(map[string]bool, len(captureDumpKinds))
	for _, k := range captureDumpKinds {
		filter[k] = true
	}

	counts := make(map[capture.Kind]int)
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			r.Close()
			os.Exit(exitProtocol)
		}
		counts[rec.Kind]++
		if len(filter) > 0 && !filter[rec.Kind.String()] {
			continue
		}
		fmt.Print(capture.Format(rec))
	}

	fmt.Printf("\n=== %s ===\n", args[0])
	for k := capture.KindCommand; k <= capture.KindHeartbeat; k++ {
		if counts[k] > 0 {
			fmt.Printf("%-11s %8d\n", k.String()+":", counts[k])
		}
	}
	return nil
}
