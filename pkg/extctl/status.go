// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package extctl

import (
	"strconv"
	"strings"
	"time"
)

// Status is a decoded controller status datagram. The controller sends one
// after every received command and whenever one of its output signals changes.
type Status struct {
	Timestamp    int64 // milliseconds since epoch, controller clock
	SeqSent      uint64
	SeqReceived  uint64 // last packet counter the controller saw from us
	ErrorID      ErrorCode
	AutActive    bool // AutExt mode active
	AutReady     bool // AutExt application ready to start
	AppError     bool
	StationError bool
	AppState     AppState

	AppStartEcho  bool
	AppEnableEcho bool
}

// DecodeStatus parses a status datagram. Any deviation from the 11-field
// schema yields a *MalformedReplyError naming the first bad field.
func DecodeStatus(data []byte) (*Status, error) {
	raw := string(data)
	fields := strings.Split(raw, Separator)
	if len(fields) != StatusFields {
		return nil, &MalformedReplyError{Field: "field count", Value: strconv.Itoa(len(fields)), Raw: raw}
	}

	bad := func(i int, err error) error {
		return &MalformedReplyError{Field: statusFieldNames[i], Value: fields[i], Raw: raw, Err: err}
	}

	s := &Status{}
	var err error

	if s.Timestamp, err = strconv.ParseInt(fields[fieldTimestamp], 10, 64); err != nil {
		return nil, bad(fieldTimestamp, err)
	}
	if s.SeqSent, err = strconv.ParseUint(fields[fieldSeqSent], 10, 64); err != nil {
		return nil, bad(fieldSeqSent, err)
	}
	if s.SeqReceived, err = strconv.ParseUint(fields[fieldSeqReceived], 10, 64); err != nil {
		return nil, bad(fieldSeqReceived, err)
	}
	id, err := strconv.Atoi(fields[fieldErrorID])
	if err != nil {
		return nil, bad(fieldErrorID, err)
	}
	s.ErrorID = ErrorCode(id)

	flags := []struct {
		idx int
		dst *bool
	}{
		{fieldAutActive, &s.AutActive},
		{fieldAutReady, &s.AutReady},
		{fieldAppError, &s.AppError},
		{fieldStationError, &s.StationError},
		{fieldAppStartEcho, &s.AppStartEcho},
		{fieldAppEnableEcho, &s.AppEnableEcho},
	}
	for _, f := range flags {
		v, err := parseBool(fields[f.idx])
		if err != nil {
			return nil, bad(f.idx, err)
		}
		*f.dst = v
	}

	s.AppState = AppState(fields[fieldAppState])
	if !s.AppState.Valid() {
		return nil, bad(fieldAppState, nil)
	}

	return s, nil
}

// Encode returns the wire form of the status. Used by controller simulators
// and capture tooling.
func (s *Status) Encode() []byte {
	return []byte(strings.Join([]string{
		strconv.FormatInt(s.Timestamp, 10),
		strconv.FormatUint(s.SeqSent, 10),
		strconv.FormatUint(s.SeqReceived, 10),
		strconv.Itoa(int(s.ErrorID)),
		strconv.FormatBool(s.AutActive),
		strconv.FormatBool(s.AutReady),
		strconv.FormatBool(s.AppError),
		strconv.FormatBool(s.StationError),
		string(s.AppState),
		strconv.FormatBool(s.AppStartEcho),
		strconv.FormatBool(s.AppEnableEcho),
	}, Separator))
}

// Time returns the controller timestamp as a time.Time
func (s *Status) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Header returns the "[ts, sent, recv]" prefix used when printing a status
func (s *Status) Header() string {
	return "[" + strconv.FormatFloat(float64(s.Timestamp)/1000, 'f', 3, 64) +
		", " + strconv.FormatUint(s.SeqSent, 10) +
		", " + strconv.FormatUint(s.SeqReceived, 10) + "]"
}
