// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

// Package extctl implements the external control channel of a robot controller.
//
// The controller accepts discrete input signals (App_Start, App_Enable, Get_State)
// as semicolon-separated UTF-8 datagrams on a fixed UDP port and answers every
// command with an 11-field status datagram. This package provides the command
// encoder, the status decoder and anomaly validation, the App_Enable heartbeat
// and a Session tying them together.
package extctl

import (
	"fmt"
	"time"
)

// Transport constants
const (
	FixedPort      = 30300
	ReceiveTimeout = 100 * time.Millisecond
	MaxDatagram    = 1024

	DefaultControllerHost = "172.31.1.147"
	DefaultClientIP       = "172.31.1.5"
)

// Wire format
const (
	Separator     = ";"
	CommandFields = 4
	StatusFields  = 11

	ValueTrue  = "true"
	ValueFalse = "false"
)

// Status field positions
const (
	fieldTimestamp = iota
	fieldSeqSent
	fieldSeqReceived
	fieldErrorID
	fieldAutActive
	fieldAutReady
	fieldAppError
	fieldStationError
	fieldAppState
	fieldAppStartEcho
	fieldAppEnableEcho
)

var statusFieldNames = [StatusFields]string{
	"timestamp",
	"seq_sent",
	"seq_recv",
	"error_id",
	"aut_active",
	"aut_ready",
	"app_error",
	"station_error",
	"app_state",
	"app_start",
	"app_enable",
}

// Signal is one of the input signals accepted by the controller
type Signal int

// Input signals
const (
	SignalAppStart Signal = iota
	SignalAppEnable
	SignalGetState
)

var signalWireNames = [...]string{
	SignalAppStart:  "App_Start",
	SignalAppEnable: "App_Enable",
	SignalGetState:  "Get_State",
}

// String returns the wire name of the signal
func (s Signal) String() string {
	if s < 0 || int(s) >= len(signalWireNames) {
		return fmt.Sprintf("Signal(%d)", int(s))
	}
	return signalWireNames[s]
}

// ParseSignal maps a wire name back to its Signal
func ParseSignal(name string) (Signal, bool) {
	for i, n := range signalWireNames {
		if n == name {
			return Signal(i), true
		}
	}
	return 0, false
}

// AppState is the state of the controller's default application
type AppState string

// Application states
const (
	AppStateIdle          AppState = "IDLE"
	AppStateRunning       AppState = "RUNNING"
	AppStateMotionPaused  AppState = "MOTIONPAUSED"
	AppStateRepositioning AppState = "REPOSITIONING"
	AppStateError         AppState = "ERROR"
	AppStateStarting      AppState = "STARTING"
	AppStateStopping      AppState = "STOPPING"
)

// Valid reports whether s is one of the known application states
func (s AppState) Valid() bool {
	switch s {
	case AppStateIdle, AppStateRunning, AppStateMotionPaused, AppStateRepositioning,
		AppStateError, AppStateStarting, AppStateStopping:
		return true
	}
	return false
}

// ErrorCode is the error ID reported by the controller. Zero means no error,
// negative values are faults ranked by magnitude. A reply carries at most one
// fault.
type ErrorCode int

// Controller fault codes
const (
	ErrorNone                  ErrorCode = 0
	ErrorClientIPMismatch      ErrorCode = -1
	ErrorMessageStructure      ErrorCode = -2
	ErrorPacketCounterMismatch ErrorCode = -3
	ErrorTimestampMismatch     ErrorCode = -4
	ErrorSignalName            ErrorCode = -5
	ErrorSignalValue           ErrorCode = -6
	ErrorEnableTimeout         ErrorCode = -7
)

// String returns the fault name
func (c ErrorCode) String() string {
	switch c {
	case ErrorNone:
		return "NO_ERROR"
	case ErrorClientIPMismatch:
		return "INCORRECT_CLIENT_IP"
	case ErrorMessageStructure:
		return "INCORRECT_MESSAGE_STRUCTURE"
	case ErrorPacketCounterMismatch:
		return "INCORRECT_DATA_PACKET_COUNTER"
	case ErrorTimestampMismatch:
		return "INCORRECT_TIME_STAMP"
	case ErrorSignalName:
		return "INCORRECT_SIGNAL_NAME"
	case ErrorSignalValue:
		return "INCORRECT_SIGNAL_VALUE"
	case ErrorEnableTimeout:
		return "TIMEOUT_ERROR"
	default:
		return fmt.Sprintf("UNKNOWN_ERROR(%d)", int(c))
	}
}

// IsFault reports whether the code signals a controller fault
func (c ErrorCode) IsFault() bool {
	return c != ErrorNone
}

// Known reports whether the code is part of the documented fault table
func (c ErrorCode) Known() bool {
	return c <= ErrorNone && c >= ErrorEnableTimeout
}

// Priority returns the rank of a fault, larger is more urgent and 0 means
// no fault. Positive codes are not faults the controller documents and rank 0.
func (c ErrorCode) Priority() int {
	if c >= ErrorNone {
		return 0
	}
	return int(-c)
}

// Outranks reports whether c has a higher priority than other
func (c ErrorCode) Outranks(other ErrorCode) bool {
	return c.Priority() > other.Priority()
}
