// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lbrlab/sunlink/pkg/bridge"
)

var (
	remoteURL      string
	remoteUsername string
	remoteNoSSL    bool
	remoteTimeout  time.Duration
	remoteCount    int
	remoteReport   bool
	remoteInterval time.Duration
)

var remoteCmd = &cobra.Command{
	Use:   "remote OP",
	Short: "Send an operation to a running bridge",
	Long: `Send get_state, start, stop, restart or enable to a sunlink bridge over its
WebSocket and print each reply with its round-trip time.

The password for --user is read from SUNLINK_BRIDGE_PASSWORD, or prompted.

Exit codes:
  0 - Every request succeeded
  1 - One or more requests failed or timed out
  2 - Connection error`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{bridge.OpGetState, bridge.OpStart, bridge.OpStop, bridge.OpRestart, bridge.OpEnable},
	RunE:      runRemote,
}

func init() {
	rootCmd.AddCommand(remoteCmd)
	remoteCmd.Flags().StringVarP(&remoteURL, "url", "u", "ws://127.0.0.1:8630/ws", "Bridge WebSocket URL (ws:// or wss://)")
	remoteCmd.Flags().StringVar(&remoteUsername, "user", "", "Username for HTTP Basic auth")
	remoteCmd.Flags().BoolVar(&remoteNoSSL, "no-ssl-verify", false, "Skip TLS certificate verification for wss://")
	remoteCmd.Flags().DurationVar(&remoteTimeout, "timeout", 5*time.Second, "Timeout for each request")
	remoteCmd.Flags().IntVar(&remoteCount, "count", 1, "Number of requests to send")
	remoteCmd.Flags().DurationVar(&remoteInterval, "interval", 100*time.Millisecond, "Delay between requests")
	remoteCmd.Flags().BoolVar(&remoteReport, "report", false, "With enable, wait for the controller's reply")
}

func runRemote(cmd *cobra.Command, args []string) error {
	op := args[0]

	opts := bridge.DialOptions{Username: remoteUsername, SkipTLSVerify: remoteNoSSL}
	if remoteUsername != "" {
		pw, err := bridgePassword()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(exitSetup)
		}
		opts.Password = pw
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	client, err := bridge.Dial(dialCtx, remoteURL, opts)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitSetup)
	}
	defer client.Close()

	fmt.Printf("Sunlink - Remote %s\n", op)
	fmt.Printf("Bridge: %s\n\n", remoteURL)

	failed := 0
	for i := 1; i <= remoteCount; i++ {
		if remoteCount > 1 {
			fmt.Printf("Request %d/%d: ", i, remoteCount)
		}

		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		start := time.Now()
		resp, err := client.Do(ctx, bridge.Request{Op: op, Report: remoteReport})
		cancel()
		rtt := time.Since(start).Round(time.Millisecond)

		switch {
		case err != nil:
			fmt.Printf("FAILED: %v\n", err)
			failed++
			// The connection is unusable after a read or write error
			client.Close()
			printRemoteSummary(i, failed)
			os.Exit(exitProtocol)
		case !resp.OK:
			fmt.Printf("ERROR (%s): %s, rtt=%v\n", resp.ErrorKind, resp.Error, rtt)
			failed++
		case resp.Report == nil:
			fmt.Printf("OK, rtt=%v\n", rtt)
		default:
			fmt.Printf("%s, rtt=%v\n", formatRemoteReport(resp.Report), rtt)
			if resp.Report.ErrorID != 0 {
				failed++
			}
		}

		if i < remoteCount {
			time.Sleep(remoteInterval)
		}
	}

	printRemoteSummary(remoteCount, failed)
	if failed > 0 {
		client.Close()
		os.Exit(exitProtocol)
	}
	return nil
}

func formatRemoteReport(v *bridge.ReportView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "packet %d %s=%t: %s, %s", v.Sequence, v.Signal, v.Value, v.AppState, v.ErrorName)
	if v.SequenceMismatch {
		fmt.Fprintf(&b, " (controller saw packet %d)", v.SeqReceived)
	}
	return b.String()
}

func printRemoteSummary(sent, failed int) {
	if sent <= 1 {
		return
	}
	fmt.Printf("\n--- Remote statistics ---\n")
	fmt.Printf("%d requests sent, %d failed\n", sent, failed)
}

// bridgePassword reads the bridge password from the environment or prompts
// for it without echo
func bridgePassword() (string, error) {
	if pw := os.Getenv("SUNLINK_BRIDGE_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; read a line instead
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(line), nil
	}
	fmt.Fprintln(os.Stderr)
	return string(pw), nil
}
