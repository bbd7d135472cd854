// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

// Package metrics provides Prometheus metrics for controller sessions.
// Labels are bounded: no session or sequence values.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

// Reply results
const (
	ResultOK        = "ok"
	ResultTimeout   = "timeout"
	ResultMalformed = "malformed"
	ResultError     = "error"
)

// FaultUnknown labels error codes the controller does not document
const FaultUnknown = "unknown"

var (
	// PacketsSentTotal counts transmitted commands by signal and origin.
	PacketsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sunlink_packets_sent_total",
		Help: "Total number of commands sent to the controller, by signal and origin (caller/heartbeat).",
	}, []string{"signal", "origin"})

	// SendErrorsTotal counts commands the transport rejected.
	SendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sunlink_send_errors_total",
		Help: "Total number of commands the transport failed to send, by signal.",
	}, []string{"signal"})

	// RepliesTotal counts reply outcomes.
	RepliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sunlink_replies_total",
		Help: "Total number of reply reads, by result (ok/timeout/malformed/error).",
	}, []string{"result"})

	// FaultsTotal counts non-zero controller error codes. Codes outside
	// the documented set share the FaultUnknown label.
	FaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sunlink_faults_total",
		Help: "Total number of replies carrying a controller error code, by code.",
	}, []string{"code"})

	// SequenceMismatchTotal counts replies whose seq_recv differs from the last packet sent.
	SequenceMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sunlink_sequence_mismatch_total",
		Help: "Total number of replies whose acknowledged counter differs from the last packet sent.",
	})

	// HeartbeatRunning is 1 while the App_Enable heartbeat is active.
	HeartbeatRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sunlink_heartbeat_running",
		Help: "Whether the App_Enable heartbeat is running (1) or idle (0).",
	})

	// ReplyRTT observes request/reply round trips.
	ReplyRTT = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sunlink_reply_rtt_seconds",
		Help:    "Round trip time between sending a command and decoding its reply.",
		Buckets: []float64{.0005, .001, .002, .005, .01, .02, .05, .1},
	})

	// AppState reports the last application state seen, one series per state.
	AppState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sunlink_app_state",
		Help: "Last reported application state (1 for the current state, 0 otherwise).",
	}, []string{"state"})
)

var appStates = []extctl.AppState{
	extctl.AppStateIdle, extctl.AppStateRunning, extctl.AppStateMotionPaused,
	extctl.AppStateRepositioning, extctl.AppStateError, extctl.AppStateStarting,
	extctl.AppStateStopping,
}

// Observer records session events into the package metrics
type Observer struct {
	extctl.BaseObserver
}

// NewObserver returns a session observer feeding the package metrics
func NewObserver() *Observer {
	return &Observer{}
}

func (*Observer) CommandSent(cmd extctl.Command, _ []byte, heartbeat bool) {
	origin := "caller"
	if heartbeat {
		origin = "heartbeat"
	}
	PacketsSentTotal.WithLabelValues(cmd.Signal.String(), origin).Inc()
}

func (*Observer) SendFailed(cmd extctl.Command, _ error, _ bool) {
	SendErrorsTotal.WithLabelValues(cmd.Signal.String()).Inc()
}

func (*Observer) ReplyReceived(r *extctl.Report) {
	RepliesTotal.WithLabelValues(ResultOK).Inc()
	if r.RTT > 0 {
		ReplyRTT.Observe(r.RTT.Seconds())
	}
	if r.SequenceMismatch {
		SequenceMismatchTotal.Inc()
	}
	if r.HasFault() {
		FaultsTotal.WithLabelValues(faultLabel(r.Fault)).Inc()
	}
	SetAppState(r.Status.AppState)
}

// faultLabel maps codes outside the documented set to "unknown"
func faultLabel(code extctl.ErrorCode) string {
	if !code.Known() {
		return FaultUnknown
	}
	return strconv.Itoa(int(code))
}

func (*Observer) ReplyFailed(_ extctl.Command, _ []byte, err error) {
	RepliesTotal.WithLabelValues(replyResult(err)).Inc()
}

func (*Observer) HeartbeatChanged(running bool) {
	if running {
		HeartbeatRunning.Set(1)
	} else {
		HeartbeatRunning.Set(0)
	}
}

// SetAppState marks state as current
func SetAppState(state extctl.AppState) {
	for _, s := range appStates {
		v := 0.0
		if s == state {
			v = 1
		}
		AppState.WithLabelValues(string(s)).Set(v)
	}
}

func replyResult(err error) string {
	switch {
	case errors.Is(err, extctl.ErrTimeout):
		return ResultTimeout
	case errors.Is(err, extctl.ErrMalformedReply):
		return ResultMalformed
	}
	return ResultError
}
