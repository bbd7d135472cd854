// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package cmd

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the robot application",
	Long: `Control the controller's default application via an interactive terminal UI.

Features:
  - Get state, start, stop, restart and single App_Enable on one key each
  - Decoded status panel (AUT mode, application state, signal echoes, fault)
  - App_Enable heartbeat indicator
  - Statistics tracking
  - Event logging

Keys: g=get state s=start x=stop r=restart e=enable q=quit

Stop and restart require --enable-signal. Quitting while the heartbeat runs
drops App_Enable first, which pauses the application.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// programRelay forwards session events to the TUI. Events raised before the
// program is attached are dropped.
type programRelay struct {
	extctl.BaseObserver

	mu sync.RWMutex
	p  *tea.Program
}

func (r *programRelay) attach(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
}

func (r *programRelay) send(msg tea.Msg) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.p != nil {
		// Send blocks until the program reads the message; keep the
		// heartbeat goroutine free of that.
		go r.p.Send(msg)
	}
}

// HeartbeatChanged implements extctl.Observer
func (r *programRelay) HeartbeatChanged(running bool) {
	r.send(heartbeatMsg{running: running})
}

// SendFailed implements extctl.Observer
func (r *programRelay) SendFailed(cmd extctl.Command, err error, heartbeat bool) {
	if heartbeat {
		r.send(heartbeatFailedMsg{seq: cmd.Sequence, err: err})
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	relay := &programRelay{}
	cs, err := openSession(relay)
	if err != nil {
		return err
	}

	m := initialControlModel(cs)

	p := tea.NewProgram(m, tea.WithAltScreen())
	relay.attach(p)

	_, runErr := p.Run()
	relay.attach(nil)

	if cs.HeartbeatRunning() {
		if _, err := cs.AppStop(); err != nil {
			fmt.Printf("Failed to drop App_Enable: %v\n", err)
		}
	}
	fmt.Print(cs.stats.String())
	cs.Close()

	if runErr != nil {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return nil
}
