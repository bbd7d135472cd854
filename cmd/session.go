// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/lbrlab/sunlink/internal/log"
	"github.com/lbrlab/sunlink/internal/metrics"
	"github.com/lbrlab/sunlink/pkg/capture"
	"github.com/lbrlab/sunlink/pkg/extctl"
)

// Exit codes shared by all commands
const (
	exitOK       = 0
	exitProtocol = 1 // timeout, malformed reply or controller fault
	exitSetup    = 2 // configuration or connection error
)

// controllerSession bundles a session with the observers the CLI attaches
type controllerSession struct {
	*extctl.Session
	stats   *extctl.Statistics
	capture *capture.Writer
}

// openSession opens a session to the configured controller. Statistics,
// metrics and the capture file (if configured) observe it.
func openSession(extra ...extctl.Observer) (*controllerSession, error) {
	cs := &controllerSession{stats: extctl.NewStatistics()}

	opts := []extctl.Option{
		extctl.WithLogger(log.WithComponent("session")),
		extctl.WithObserver(cs.stats),
		extctl.WithObserver(metrics.NewObserver()),
	}
	if cfg.Capture != "" {
		w, err := capture.Create(cfg.Capture)
		if err != nil {
			return nil, err
		}
		cs.capture = w
		opts = append(opts, extctl.WithObserver(w))
	}
	for _, o := range extra {
		opts = append(opts, extctl.WithObserver(o))
	}

	sess, err := extctl.New(cfg.Session(), opts...)
	if err != nil {
		if cs.capture != nil {
			cs.capture.Close()
		}
		return nil, err
	}
	cs.Session = sess
	return cs, nil
}

// Close closes the session and the capture file
func (cs *controllerSession) Close() error {
	err := cs.Session.Close()
	if cs.capture != nil {
		err = errors.Join(err, cs.capture.Close())
	}
	return err
}

// mustOpenSession opens a session or exits with exitSetup
func mustOpenSession(extra ...extctl.Observer) *controllerSession {
	cs, err := openSession(extra...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitSetup)
	}
	return cs
}

// printHeader prints the banner shared by one-shot commands
func printHeader(title string, cs *controllerSession) {
	fmt.Printf("Sunlink - %s\n", title)
	fmt.Printf("Controller: %s\n", cs.Transport())
	if cs.EnableSupported() {
		fmt.Printf("App_Enable: evaluated\n")
	}
	fmt.Println()
}

// reportOutcome prints a transaction and returns the exit code it maps to
func reportOutcome(r *extctl.Report, err error) int {
	if err != nil {
		switch {
		case errors.Is(err, extctl.ErrTimeout):
			fmt.Fprintf(os.Stderr, "Timeout: %v\n", err)
			fmt.Fprintf(os.Stderr, "Check the firewall and the client IP configured on the controller (ip_check).\n")
			return exitProtocol
		case errors.Is(err, extctl.ErrMalformedReply):
			fmt.Fprintf(os.Stderr, "Protocol error: %v\n", err)
			return exitProtocol
		case errors.Is(err, extctl.ErrUnsupportedOperation):
			fmt.Fprintf(os.Stderr, "Unsupported: %v\n", err)
			fmt.Fprintf(os.Stderr, "Stop the application from the control pendant, or enable App_Enable in the controller project and pass --enable-signal.\n")
			return exitSetup
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitSetup
	}

	if r == nil {
		return exitOK
	}
	fmt.Print(extctl.FormatReport(r))
	if r.HasFault() {
		return exitProtocol
	}
	return exitOK
}
