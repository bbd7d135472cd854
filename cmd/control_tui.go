// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// eventLogEntry is one line of the event log
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// controlKeyMap lists the TUI key bindings
type controlKeyMap struct {
	GetState key.Binding
	Start    key.Binding
	Stop     key.Binding
	Restart  key.Binding
	Enable   key.Binding
	Quit     key.Binding
}

func (k controlKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.GetState, k.Start, k.Stop, k.Restart, k.Enable, k.Quit}
}

func (k controlKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func newControlKeyMap(enableSupported bool) controlKeyMap {
	k := controlKeyMap{
		GetState: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "get state")),
		Start:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Stop:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Restart:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restart")),
		Enable:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "enable")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
	// Without App_Enable the controller cannot be stopped over UDP
	k.Stop.SetEnabled(enableSupported)
	k.Restart.SetEnabled(enableSupported)
	return k
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	sess     *controllerSession
	connInfo string

	keys controlKeyMap
	help help.Model

	// Last transaction
	lastReport *extctl.Report
	lastErr    error
	busy       string // operation in flight, empty when idle
	heartbeat  bool

	// Event log
	eventLog      []eventLogEntry
	maxLogEntries int
	logView       viewport.Model

	// UI state
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type opResultMsg struct {
	op     string
	report *extctl.Report
	err    error
}

type heartbeatMsg struct {
	running bool
}

type heartbeatFailedMsg struct {
	seq uint64
	err error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(sess *controllerSession) controlModel {
	lv := viewport.New(76, 8)

	return controlModel{
		sess:          sess,
		connInfo:      sess.Transport().String(),
		keys:          newControlKeyMap(sess.EnableSupported()),
		help:          help.New(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		logView:       lv,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tea.Batch(controlTickCmd(), m.runOp("Get_State", m.sess.GetState))
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

// runOp executes a session operation off the UI goroutine
func (m *controlModel) runOp(op string, fn func() (*extctl.Report, error)) tea.Cmd {
	m.busy = op
	return func() tea.Msg {
		r, err := fn()
		return opResultMsg{op: op, report: r, err: err}
	}
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.logView.Width = msg.Width - 4
		m.logView.Height = max(3, msg.Height-22)
		m.refreshLog()

	case controlTickMsg:
		return m, controlTickCmd()

	case opResultMsg:
		m.busy = ""
		m.handleResult(msg)

	case heartbeatMsg:
		m.heartbeat = msg.running
		if msg.running {
			m.addLogEntry("App_Enable heartbeat started", false)
		} else {
			m.addLogEntry("App_Enable heartbeat stopped", false)
		}

	case heartbeatFailedMsg:
		m.addLogEntry(fmt.Sprintf("Heartbeat packet %d failed: %v", msg.seq, msg.err), true)
	}

	var cmd tea.Cmd
	m.logView, cmd = m.logView.Update(msg)
	return m, cmd
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}

	// One transaction at a time; the session serialises them anyway
	if m.busy != "" {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.GetState):
		return m, m.runOp("Get_State", m.sess.GetState)
	case key.Matches(msg, m.keys.Start):
		return m, m.runOp("App_Start", m.sess.AppStart)
	case key.Matches(msg, m.keys.Stop):
		return m, m.runOp("Stop", m.sess.AppStop)
	case key.Matches(msg, m.keys.Restart):
		return m, m.runOp("Restart", m.sess.AppRestart)
	case key.Matches(msg, m.keys.Enable):
		return m, m.runOp("App_Enable", func() (*extctl.Report, error) {
			return m.sess.AppEnable(true)
		})
	case msg.String() == "x" || msg.String() == "r":
		m.addLogEntry("Stop/restart need --enable-signal; use the control pendant", true)
	}

	var cmd tea.Cmd
	m.logView, cmd = m.logView.Update(msg)
	return m, cmd
}

func (m *controlModel) handleResult(msg opResultMsg) {
	m.lastErr = msg.err
	if msg.err != nil {
		switch {
		case errors.Is(msg.err, extctl.ErrTimeout):
			m.addLogEntry(fmt.Sprintf("%s: no reply (check firewall and client IP)", msg.op), true)
		case errors.Is(msg.err, extctl.ErrMalformedReply):
			m.addLogEntry(fmt.Sprintf("%s: protocol error: %v", msg.op, msg.err), true)
		default:
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.op, msg.err), true)
		}
		return
	}

	m.lastReport = msg.report
	r := msg.report
	m.addLogEntry(fmt.Sprintf("%s ok (packet %d) -> %s", msg.op, r.Command.Sequence, r.Status.AppState), false)
	for _, a := range r.Anomalies {
		m.addLogEntry(a.Message, a.Type == extctl.AnomalyFault || a.Type == extctl.AnomalySequenceMismatch)
	}
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[1:]
	}
	m.refreshLog()
}

func (m *controlModel) refreshLog() {
	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	var b strings.Builder
	for i, entry := range m.eventLog {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(timeStyle.Render(entry.timestamp.Format("15:04:05")))
		b.WriteString(" ")
		if entry.isError {
			b.WriteString(errorStyle.Render(entry.message))
		} else {
			b.WriteString(entry.message)
		}
	}
	m.logView.SetContent(b.String())
	m.logView.GotoBottom()
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder

	s.WriteString(titleStyle.Render("Sunlink Control"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | seq %d", m.connInfo, m.sess.Sequence())))
	s.WriteString("\n\n")

	statusPanel := m.renderStatus(labelStyle, valueStyle, errorStyle, warningStyle, boxStyle)
	statsPanel := m.renderStatistics(labelStyle, valueStyle, errorStyle, boxStyle)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, statusPanel, " ", statsPanel))
	s.WriteString("\n")

	s.WriteString(boxStyle.Render(labelStyle.Render("Events") + "\n" + m.logView.View()))
	s.WriteString("\n")

	if m.busy != "" {
		s.WriteString(warningStyle.Render(fmt.Sprintf("%s in progress... ", m.busy)))
	}
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func (m controlModel) renderStatus(labelStyle, valueStyle, errorStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("Controller"))
	s.WriteString("\n")

	hb := warningStyle.Render("idle")
	if m.heartbeat {
		hb = valueStyle.Render("running")
	}
	if !m.sess.EnableSupported() {
		hb = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("not evaluated")
	}
	s.WriteString(fmt.Sprintf("App_Enable:   %s\n", hb))

	if m.lastReport == nil {
		if m.lastErr != nil {
			s.WriteString(errorStyle.Render(fmt.Sprintf("No state: %v", m.lastErr)))
		} else {
			s.WriteString(warningStyle.Render("Waiting for first reply..."))
		}
		return boxStyle.Width(44).Render(s.String())
	}

	st := m.lastReport.Status
	flag := func(ok bool, good string) string {
		if ok {
			return valueStyle.Render(good)
		}
		return warningStyle.Render("no")
	}
	bad := func(set bool) string {
		if set {
			return errorStyle.Render("yes")
		}
		return valueStyle.Render("no")
	}

	s.WriteString(fmt.Sprintf("State:        %s\n", valueStyle.Render(string(st.AppState))))
	s.WriteString(fmt.Sprintf("AUT active:   %s\n", flag(st.AutActive, "yes")))
	s.WriteString(fmt.Sprintf("AUT ready:    %s\n", flag(st.AutReady, "yes")))
	s.WriteString(fmt.Sprintf("App error:    %s\n", bad(st.AppError)))
	s.WriteString(fmt.Sprintf("Station err:  %s\n", bad(st.StationError)))
	s.WriteString(fmt.Sprintf("Echo start:   %s  enable: %s\n", extctl.FormatFlag(st.AppStartEcho), extctl.FormatFlag(st.AppEnableEcho)))

	fault := valueStyle.Render(st.ErrorID.String())
	if st.ErrorID.IsFault() {
		fault = errorStyle.Render(fmt.Sprintf("%s (%d)", st.ErrorID, int(st.ErrorID)))
	}
	s.WriteString(fmt.Sprintf("Fault:        %s\n", fault))

	seq := fmt.Sprintf("%d/%d", st.SeqSent, st.SeqReceived)
	if m.lastReport.SequenceMismatch {
		s.WriteString(fmt.Sprintf("Counter:      %s", errorStyle.Render(seq+" mismatch")))
	} else {
		s.WriteString(fmt.Sprintf("Counter:      %s", valueStyle.Render(seq)))
	}

	return boxStyle.Width(44).Render(s.String())
}

func (m controlModel) renderStatistics(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	snap := m.sess.stats.Snapshot()

	var s strings.Builder
	s.WriteString(labelStyle.Render("Statistics"))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("Commands:   %s\n", valueStyle.Render(fmt.Sprintf("%d", snap.CommandsSent))))
	s.WriteString(fmt.Sprintf("Heartbeats: %s\n", valueStyle.Render(fmt.Sprintf("%d", snap.HeartbeatsSent))))
	s.WriteString(fmt.Sprintf("Replies:    %s\n", valueStyle.Render(fmt.Sprintf("%d", snap.Replies))))

	errCount := func(n uint64) string {
		if n > 0 {
			return errorStyle.Render(fmt.Sprintf("%d", n))
		}
		return valueStyle.Render("0")
	}
	s.WriteString(fmt.Sprintf("Timeouts:   %s\n", errCount(snap.Timeouts)))
	s.WriteString(fmt.Sprintf("Malformed:  %s\n", errCount(snap.MalformedReplies)))
	s.WriteString(fmt.Sprintf("Faults:     %s\n", errCount(snap.Faults)))
	s.WriteString(fmt.Sprintf("Mismatch:   %s\n", errCount(snap.SeqMismatches)))
	s.WriteString(fmt.Sprintf("RTT:        %s", valueStyle.Render(snap.LastRTT.Round(10*time.Microsecond).String())))

	return boxStyle.Width(28).Render(s.String())
}
