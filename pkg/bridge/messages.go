// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package bridge

import (
	"errors"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

// Operations accepted on the WebSocket
const (
	OpGetState = "get_state"
	OpStart    = "start"
	OpStop     = "stop"
	OpRestart  = "restart"
	OpEnable   = "enable"
)

// Error kinds reported to clients
const (
	KindTimeout     = "timeout"
	KindMalformed   = "malformed"
	KindUnsupported = "unsupported"
	KindClosed      = "closed"
	KindInvalidOp   = "invalid_op"
	KindTransport   = "transport"
	KindRateLimited = "rate_limited"
)

// Request is a client message
type Request struct {
	ID string `json:"id,omitempty"`
	Op string `json:"op"`
	// Report asks OpEnable to wait for and decode the reply
	Report bool `json:"report,omitempty"`
}

// Response answers one Request
type Response struct {
	ID        string      `json:"id,omitempty"`
	Op        string      `json:"op"`
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Report    *ReportView `json:"report,omitempty"`
}

// ReportView is the JSON form of an extctl.Report
type ReportView struct {
	Sequence         uint64   `json:"sequence"`
	Signal           string   `json:"signal"`
	Value            bool     `json:"value"`
	Timestamp        int64    `json:"timestamp"`
	SeqSent          uint64   `json:"seq_sent"`
	SeqReceived      uint64   `json:"seq_recv"`
	ErrorID          int      `json:"error_id"`
	ErrorName        string   `json:"error_name"`
	AutActive        bool     `json:"aut_active"`
	AutReady         bool     `json:"aut_ready"`
	AppError         bool     `json:"app_error"`
	StationError     bool     `json:"station_error"`
	AppState         string   `json:"app_state"`
	AppStart         bool     `json:"app_start"`
	AppEnable        bool     `json:"app_enable"`
	SequenceMismatch bool     `json:"sequence_mismatch"`
	Anomalies        []string `json:"anomalies,omitempty"`
	RTTMicros        int64    `json:"rtt_us"`
}

// NewReportView converts a report for the wire
func NewReportView(r *extctl.Report) *ReportView {
	s := r.Status
	v := &ReportView{
		Sequence:         r.Command.Sequence,
		Signal:           r.Command.Signal.String(),
		Value:            r.Command.Value,
		Timestamp:        s.Timestamp,
		SeqSent:          s.SeqSent,
		SeqReceived:      s.SeqReceived,
		ErrorID:          int(s.ErrorID),
		ErrorName:        s.ErrorID.String(),
		AutActive:        s.AutActive,
		AutReady:         s.AutReady,
		AppError:         s.AppError,
		StationError:     s.StationError,
		AppState:         string(s.AppState),
		AppStart:         s.AppStartEcho,
		AppEnable:        s.AppEnableEcho,
		SequenceMismatch: r.SequenceMismatch,
		RTTMicros:        r.RTT.Microseconds(),
	}
	for _, a := range r.Anomalies {
		v.Anomalies = append(v.Anomalies, a.Message)
	}
	return v
}

// errorKind classifies a session error for clients
func errorKind(err error) string {
	switch {
	case errors.Is(err, extctl.ErrTimeout):
		return KindTimeout
	case errors.Is(err, extctl.ErrMalformedReply):
		return KindMalformed
	case errors.Is(err, extctl.ErrUnsupportedOperation):
		return KindUnsupported
	case errors.Is(err, extctl.ErrSessionClosed):
		return KindClosed
	}
	return KindTransport
}
