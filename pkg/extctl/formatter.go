// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package extctl

import (
	"fmt"
	"strings"
)

// FormatCommand formats an outbound command into a single line
func FormatCommand(c Command) string {
	timestamp := c.Time().Format("15:04:05.000")
	return fmt.Sprintf("[%s] -> %s=%t seq=%d\n", timestamp, c.Signal, c.Value, c.Sequence)
}

// FormatStatus formats a status into a human-readable block: one line per
// flagged condition, then the application state and the signal echoes
func FormatStatus(s *Status, lastSent uint64) string {
	return formatStatus(s, ValidateStatus(s, lastSent))
}

// FormatReport formats a full transaction
func FormatReport(r *Report) string {
	var b strings.Builder
	b.WriteString(FormatCommand(r.Command))
	b.WriteString(formatStatus(r.Status, r.Anomalies))
	if r.SequenceMismatch {
		fmt.Fprintf(&b, "  hint: controller expects packet counter %d, resync with --seed %d\n",
			r.Status.SeqReceived+1, r.Status.SeqReceived)
	}
	if r.RTT > 0 {
		fmt.Fprintf(&b, "  rtt=%v\n", r.RTT)
	}
	return b.String()
}

func formatStatus(s *Status, anomalies []Anomaly) string {
	header := s.Header()
	var b strings.Builder

	for _, a := range anomalies {
		fmt.Fprintf(&b, "%s %s\n", header, a.Message)
	}
	fmt.Fprintf(&b, "%s APP State: %s\n", header, s.AppState)
	fmt.Fprintf(&b, "%s app_start: %t\tapp_enable: %t\n", header, s.AppStartEcho, s.AppEnableEcho)

	return b.String()
}

// FormatFlag renders a boolean status flag
func FormatFlag(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
