// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package extctl

import (
	"fmt"
	"time"
)

// AnomalyType represents the conditions derived from a decoded status
type AnomalyType int

const (
	AnomalySequenceMismatch AnomalyType = iota
	AnomalyFault
	AnomalyModeNotEngaged
	AnomalyModeNotArmed
	AnomalyAppError
	AnomalyStationError
)

// String returns a short name for the anomaly type
func (a AnomalyType) String() string {
	switch a {
	case AnomalySequenceMismatch:
		return "sequence_mismatch"
	case AnomalyFault:
		return "fault"
	case AnomalyModeNotEngaged:
		return "mode_not_engaged"
	case AnomalyModeNotArmed:
		return "mode_not_armed"
	case AnomalyAppError:
		return "app_error"
	case AnomalyStationError:
		return "station_error"
	default:
		return "unknown"
	}
}

// Anomaly is one condition flagged on a status reply
type Anomaly struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (a *Anomaly) Error() string {
	return a.Message
}

// ValidateStatus derives the anomalies of a status against the last
// sequence number actually sent. Returns an empty slice for a clean reply.
func ValidateStatus(s *Status, lastSent uint64) []Anomaly {
	anomalies := []Anomaly{}

	if s.SeqReceived != lastSent {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalySequenceMismatch,
			Message: fmt.Sprintf("Sequence mismatch: controller saw %d, last sent %d", s.SeqReceived, lastSent),
			Details: map[string]interface{}{"seq_recv": s.SeqReceived, "last_sent": lastSent},
		})
	}

	if s.ErrorID.IsFault() {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyFault,
			Message: fmt.Sprintf("Error: %s", s.ErrorID),
			Details: map[string]interface{}{"error_id": int(s.ErrorID), "priority": s.ErrorID.Priority()},
		})
	}

	if !s.AutActive {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyModeNotEngaged,
			Message: "AUT mode is not activated",
		})
	}

	if !s.AutReady {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyModeNotArmed,
			Message: "AUT mode is not ready",
		})
	}

	if s.AppError {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyAppError,
			Message: "Application error",
			Details: map[string]interface{}{"app_state": string(s.AppState)},
		})
	}

	if s.StationError {
		anomalies = append(anomalies, Anomaly{
			Type:    AnomalyStationError,
			Message: "Station error",
		})
	}

	return anomalies
}

// Report is the outcome of one command/response transaction
type Report struct {
	Command          Command
	Status           *Status
	Raw              []byte
	SequenceMismatch bool
	Fault            ErrorCode
	Anomalies        []Anomaly
	RTT              time.Duration
}

// NewReport assembles a report from a decoded status and the last sequence sent
func NewReport(cmd Command, status *Status, lastSent uint64) *Report {
	r := &Report{
		Command:   cmd,
		Status:    status,
		Fault:     status.ErrorID,
		Anomalies: ValidateStatus(status, lastSent),
	}
	r.SequenceMismatch = r.Has(AnomalySequenceMismatch)
	return r
}

// Has reports whether the report carries an anomaly of the given type
func (r *Report) Has(t AnomalyType) bool {
	for _, a := range r.Anomalies {
		if a.Type == t {
			return true
		}
	}
	return false
}

// HasFault reports whether the controller flagged a fault
func (r *Report) HasFault() bool {
	return r.Fault.IsFault()
}

// ModeEngaged reports whether AUT mode is active
func (r *Report) ModeEngaged() bool {
	return !r.Has(AnomalyModeNotEngaged)
}

// ModeArmed reports whether the application is ready to start
func (r *Report) ModeArmed() bool {
	return !r.Has(AnomalyModeNotArmed)
}

// Err returns a *FaultError when the controller reported a fault, nil otherwise
func (r *Report) Err() error {
	if !r.HasFault() {
		return nil
	}
	return &FaultError{Code: r.Fault, Sequence: r.Command.Sequence}
}
