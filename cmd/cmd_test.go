// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbrlab/sunlink/internal/config"
	"github.com/lbrlab/sunlink/pkg/bridge"
	"github.com/lbrlab/sunlink/pkg/extctl"
)

// scriptedTransport acknowledges every command with a clean IDLE status,
// or stays silent when silent is set
type scriptedTransport struct {
	mu      sync.Mutex
	silent  bool
	pending [][]byte
	sent    int
}

func (t *scriptedTransport) Send(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent++
	if t.silent {
		return nil
	}
	cmd, err := extctl.DecodeCommand(p)
	if err != nil {
		return err
	}
	st := &extctl.Status{
		Timestamp:   cmd.Timestamp,
		SeqSent:     cmd.Sequence,
		SeqReceived: cmd.Sequence,
		AutActive:   true,
		AutReady:    true,
		AppState:    extctl.AppStateIdle,
	}
	t.pending = append(t.pending, st.Encode())
	return nil
}

func (t *scriptedTransport) Receive(time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return nil, extctl.ErrTimeout
	}
	p := t.pending[0]
	t.pending = t.pending[1:]
	return p, nil
}

func (t *scriptedTransport) Drain() int { return 0 }
func (t *scriptedTransport) Close() error { return nil }
func (t *scriptedTransport) String() string { return "UDP: test" }

func (t *scriptedTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

func newTestControllerSession(t *testing.T, enable bool, tr extctl.Transport) *controllerSession {
	t.Helper()
	stats := extctl.NewStatistics()
	sess, err := extctl.New(extctl.Config{Host: "127.0.0.1", EnableSupported: enable},
		extctl.WithTransport(tr),
		extctl.WithObserver(stats),
		extctl.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	cs := &controllerSession{Session: sess, stats: stats}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func keyPress(r string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(r)}
}

// press sends a key and runs the operation it started, if any
func press(t *testing.T, m controlModel, k string) controlModel {
	t.Helper()
	next, cmd := m.Update(keyPress(k))
	m = next.(controlModel)
	if cmd == nil {
		return m
	}
	msg := cmd()
	if res, ok := msg.(opResultMsg); ok {
		next, _ = m.Update(res)
		m = next.(controlModel)
	}
	return m
}

func lastEntry(t *testing.T, m controlModel) eventLogEntry {
	t.Helper()
	require.NotEmpty(t, m.eventLog)
	return m.eventLog[len(m.eventLog)-1]
}

func TestControlModel_GetState(t *testing.T) {
	cs := newTestControllerSession(t, false, &scriptedTransport{})
	m := initialControlModel(cs)
	assert.Contains(t, m.View(), "Waiting for first reply")

	next, cmd := m.Update(keyPress("g"))
	m = next.(controlModel)
	require.NotNil(t, cmd)
	assert.Equal(t, "Get_State", m.busy)

	next, _ = m.Update(cmd())
	m = next.(controlModel)
	assert.Empty(t, m.busy)
	require.NotNil(t, m.lastReport)
	assert.NoError(t, m.lastErr)

	entry := lastEntry(t, m)
	assert.False(t, entry.isError)
	assert.Equal(t, "Get_State ok (packet 1) -> IDLE", entry.message)

	view := m.View()
	assert.Contains(t, view, "Sunlink Control")
	assert.Contains(t, view, "IDLE")
	assert.Contains(t, view, "NO_ERROR")
}

func TestControlModel_StopNeedsEnableSignal(t *testing.T) {
	tr := &scriptedTransport{}
	cs := newTestControllerSession(t, false, tr)
	m := initialControlModel(cs)
	assert.False(t, m.keys.Stop.Enabled())

	m = press(t, m, "x")
	entry := lastEntry(t, m)
	assert.True(t, entry.isError)
	assert.Contains(t, entry.message, "--enable-signal")
	assert.Equal(t, 0, tr.sentCount())
}

func TestControlModel_StopWithEnableSignal(t *testing.T) {
	tr := &scriptedTransport{}
	cs := newTestControllerSession(t, true, tr)
	m := initialControlModel(cs)
	assert.True(t, m.keys.Stop.Enabled())

	m = press(t, m, "x")
	require.NotNil(t, m.lastReport)
	assert.Equal(t, extctl.SignalAppEnable, m.lastReport.Command.Signal)
	assert.False(t, m.lastReport.Command.Value)
	assert.Equal(t, 1, tr.sentCount())
}

func TestControlModel_Timeout(t *testing.T) {
	cs := newTestControllerSession(t, false, &scriptedTransport{silent: true})
	m := press(t, initialControlModel(cs), "g")

	assert.ErrorIs(t, m.lastErr, extctl.ErrTimeout)
	assert.Nil(t, m.lastReport)
	entry := lastEntry(t, m)
	assert.True(t, entry.isError)
	assert.Contains(t, entry.message, "no reply")
	assert.Contains(t, m.View(), "No state")
}

func TestControlModel_BusyIgnoresKeys(t *testing.T) {
	tr := &scriptedTransport{}
	cs := newTestControllerSession(t, false, tr)
	m := initialControlModel(cs)

	next, cmd := m.Update(keyPress("g"))
	m = next.(controlModel)
	require.NotNil(t, cmd)

	next, cmd2 := m.Update(keyPress("s"))
	m = next.(controlModel)
	assert.Nil(t, cmd2)
	assert.Equal(t, "Get_State", m.busy)
	assert.Equal(t, 0, tr.sentCount())
}

func TestControlModel_HeartbeatMessages(t *testing.T) {
	cs := newTestControllerSession(t, true, &scriptedTransport{})
	m := initialControlModel(cs)

	next, _ := m.Update(heartbeatMsg{running: true})
	m = next.(controlModel)
	assert.True(t, m.heartbeat)
	assert.Equal(t, "App_Enable heartbeat started", lastEntry(t, m).message)

	next, _ = m.Update(heartbeatFailedMsg{seq: 7, err: errors.New("network down")})
	m = next.(controlModel)
	entry := lastEntry(t, m)
	assert.True(t, entry.isError)
	assert.Contains(t, entry.message, "packet 7")
}

func TestControlModel_LogIsBounded(t *testing.T) {
	cs := newTestControllerSession(t, false, &scriptedTransport{})
	m := initialControlModel(cs)
	m.maxLogEntries = 3

	for i := 0; i < 5; i++ {
		m.addLogEntry(fmt.Sprintf("entry %d", i), false)
	}
	require.Len(t, m.eventLog, 3)
	assert.Equal(t, "entry 2", m.eventLog[0].message)
}

func TestControlModel_Quit(t *testing.T) {
	cs := newTestControllerSession(t, false, &scriptedTransport{})
	next, cmd := initialControlModel(cs).Update(keyPress("q"))
	m := next.(controlModel)
	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestProgramRelay_DetachedDropsEvents(t *testing.T) {
	r := &programRelay{}
	assert.NotPanics(t, func() {
		r.HeartbeatChanged(true)
		r.SendFailed(extctl.NewCommand(1, extctl.SignalAppEnable, true), errors.New("x"), true)
	})
}

func TestReportOutcome(t *testing.T) {
	clean := extctl.NewCommand(3, extctl.SignalGetState, true)
	ok := extctl.NewReport(clean, &extctl.Status{
		Timestamp: clean.Timestamp, SeqSent: 3, SeqReceived: 3,
		AutActive: true, AutReady: true, AppState: extctl.AppStateIdle,
	}, 3)
	fault := extctl.NewReport(clean, &extctl.Status{
		Timestamp: clean.Timestamp, SeqSent: 3, SeqReceived: 2,
		ErrorID: extctl.ErrorPacketCounterMismatch, AppState: extctl.AppStateError,
	}, 3)

	tests := []struct {
		name   string
		report *extctl.Report
		err    error
		want   int
	}{
		{"sent only", nil, nil, exitOK},
		{"clean reply", ok, nil, exitOK},
		{"fault", fault, nil, exitProtocol},
		{"timeout", nil, fmt.Errorf("Get_State (packet 3): %w", extctl.ErrTimeout), exitProtocol},
		{"malformed", nil, &extctl.MalformedReplyError{Field: "app_state"}, exitProtocol},
		{"unsupported", nil, extctl.ErrUnsupportedOperation, exitSetup},
		{"other", nil, errors.New("network unreachable"), exitSetup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reportOutcome(tt.report, tt.err))
		})
	}
}

func TestApplyFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()
	require.NoError(t, flags.Set("host", "10.0.0.9"))
	require.NoError(t, flags.Set("seed", "41"))
	require.NoError(t, flags.Set("enable-signal", "true"))

	c := config.Default()
	c.LogLevel = "warn"
	applyFlags(flags, &c)

	assert.Equal(t, "10.0.0.9", c.Host)
	assert.Equal(t, uint64(41), c.Seed)
	assert.True(t, c.EnableSignal)
	assert.Equal(t, "warn", c.LogLevel, "unset flags keep the loaded value")
	assert.Equal(t, 0.0, c.HeartbeatRate)
}

func TestFormatRemoteReport(t *testing.T) {
	v := &bridge.ReportView{
		Sequence: 5, Signal: "App_Start", Value: true,
		AppState: "RUNNING", ErrorName: "NO_ERROR",
	}
	assert.Equal(t, "packet 5 App_Start=true: RUNNING, NO_ERROR", formatRemoteReport(v))

	v.SequenceMismatch = true
	v.SeqReceived = 4
	assert.True(t, strings.HasSuffix(formatRemoteReport(v), "(controller saw packet 4)"))
}
