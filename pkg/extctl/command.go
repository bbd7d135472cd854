// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package extctl

import (
	"strconv"
	"strings"
	"time"
)

// Command is a single outbound control message. A Command is immutable once
// built and lives for the duration of one send.
type Command struct {
	Timestamp int64 // milliseconds since epoch at encode time
	Sequence  uint64
	Signal    Signal
	Value     bool
}

// NewCommand builds a command stamped with the current time.
// App_Start and Get_State only carry true; value is honoured for App_Enable.
func NewCommand(seq uint64, signal Signal, value bool) Command {
	if signal != SignalAppEnable {
		value = true
	}
	return Command{
		Timestamp: time.Now().UnixMilli(),
		Sequence:  seq,
		Signal:    signal,
		Value:     value,
	}
}

// Encode returns the wire form: timestamp;sequence;signal;true|false
func (c Command) Encode() []byte {
	return []byte(c.String())
}

// String returns the wire form as text
func (c Command) String() string {
	value := ValueFalse
	if c.Value {
		value = ValueTrue
	}
	return strings.Join([]string{
		strconv.FormatInt(c.Timestamp, 10),
		strconv.FormatUint(c.Sequence, 10),
		c.Signal.String(),
		value,
	}, Separator)
}

// Time returns the encode timestamp as a time.Time
func (c Command) Time() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// DecodeCommand parses an outbound command datagram. The controller never
// sends these; it is used to inspect captures and by test doubles.
func DecodeCommand(data []byte) (Command, error) {
	raw := string(data)
	fields := strings.Split(raw, Separator)
	if len(fields) != CommandFields {
		return Command{}, &MalformedReplyError{Field: "fields", Value: strconv.Itoa(len(fields)), Raw: raw}
	}

	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Command{}, &MalformedReplyError{Field: "timestamp", Value: fields[0], Raw: raw, Err: err}
	}
	seq, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Command{}, &MalformedReplyError{Field: "sequence", Value: fields[1], Raw: raw, Err: err}
	}
	signal, ok := ParseSignal(fields[2])
	if !ok {
		return Command{}, &MalformedReplyError{Field: "signal", Value: fields[2], Raw: raw}
	}
	value, err := parseBool(fields[3])
	if err != nil {
		return Command{}, &MalformedReplyError{Field: "value", Value: fields[3], Raw: raw}
	}

	return Command{Timestamp: ts, Sequence: seq, Signal: signal, Value: value}, nil
}

// parseBool accepts only the literal "true" and "false" used on the wire
func parseBool(s string) (bool, error) {
	switch s {
	case ValueTrue:
		return true, nil
	case ValueFalse:
		return false, nil
	}
	return false, strconv.ErrSyntax
}
