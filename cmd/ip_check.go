// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

var ipCheckLocalIP string

var ipCheckCmd = &cobra.Command{
	Use:   "ip_check",
	Short: "Check that this machine carries the controller's client IP",
	Long: `List the IPv4 addresses of the local interfaces and report whether one of
them is the client IP configured in the controller project. The controller
ignores or rejects (INCORRECT_CLIENT_IP) packets from any other address.

Nothing is sent to the controller.

Exit codes:
  0 - The client IP is assigned to a local interface
  1 - The client IP was not found
  2 - Invalid address or interfaces could not be listed`,
	RunE: runIPCheck,
}

func init() {
	rootCmd.AddCommand(ipCheckCmd)
	ipCheckCmd.Flags().StringVar(&ipCheckLocalIP, "local-ip", "", "Client IP expected by the controller (default from config, "+extctl.DefaultClientIP+")")
}

func runIPCheck(cmd *cobra.Command, args []string) error {
	desired := cfg.LocalIP
	if cmd.Flags().Changed("local-ip") {
		desired = ipCheckLocalIP
	}

	res, err := extctl.LocalIPCheck(desired)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitSetup)
	}

	fmt.Printf("Sunlink - Client IP Check\n")
	fmt.Printf("Expected client IP: %s\n\n", res.Desired)
	for _, iface := range res.Interfaces {
		addrs := "-"
		if len(iface.Addrs) > 0 {
			addrs = strings.Join(iface.Addrs, ", ")
		}
		fmt.Printf("  %-16s %s\n", iface.Name, addrs)
	}
	fmt.Println()

	if !res.Found {
		fmt.Printf("Client IP %s NOT found on any interface.\n", res.Desired)
		fmt.Printf("Assign it to the interface facing the controller, or update the controller project.\n")
		os.Exit(exitProtocol)
	}
	fmt.Printf("Client IP %s found.\n", res.Desired)
	return nil
}
