// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

// Package capture records controller transactions to a CBOR sequence file
// and reads them back.
package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/lbrlab/sunlink/pkg/extctl"
)

// Kind identifies what a record describes
type Kind uint8

const (
	KindCommand   Kind = 1 // datagram sent to the controller
	KindReply     Kind = 2 // datagram received and decoded
	KindTimeout   Kind = 3 // no reply within the receive timeout
	KindMalformed Kind = 4 // reply that failed to decode
	KindSendError Kind = 5 // transport rejected a command
	KindHeartbeat Kind = 6 // heartbeat started or stopped
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "COMMAND"
	case KindReply:
		return "REPLY"
	case KindTimeout:
		return "TIMEOUT"
	case KindMalformed:
		return "MALFORMED"
	case KindSendError:
		return "SEND_ERROR"
	case KindHeartbeat:
		return "HEARTBEAT"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Record is one capture entry. Fields use integer keys on the wire.
type Record struct {
	Kind      Kind   `cbor:"1,keyasint"`
	Time      int64  `cbor:"2,keyasint"` // unix nanoseconds
	Sequence  uint64 `cbor:"3,keyasint,omitempty"`
	Signal    string `cbor:"4,keyasint,omitempty"`
	Value     bool   `cbor:"5,keyasint,omitempty"`
	Heartbeat bool   `cbor:"6,keyasint,omitempty"`
	Raw       []byte `cbor:"7,keyasint,omitempty"`
	Error     string `cbor:"8,keyasint,omitempty"`
	RTT       int64  `cbor:"9,keyasint,omitempty"` // nanoseconds
}

// Timestamp returns the record time
func (r *Record) Timestamp() time.Time {
	return time.Unix(0, r.Time)
}

// Command rebuilds the command of a KindCommand record from its datagram
func (r *Record) Command() (extctl.Command, error) {
	return extctl.DecodeCommand(r.Raw)
}

// Status decodes the datagram of a KindReply record
func (r *Record) Status() (*extctl.Status, error) {
	return extctl.DecodeStatus(r.Raw)
}

// Format renders a record as one or more lines
func Format(r *Record) string {
	ts := r.Timestamp().Format("15:04:05.000")

	switch r.Kind {
	case KindCommand:
		origin := ""
		if r.Heartbeat {
			origin = " (heartbeat)"
		}
		return fmt.Sprintf("[%s] -> %s=%t seq=%d%s\n", ts, r.Signal, r.Value, r.Sequence, origin)

	case KindReply:
		s, err := r.Status()
		if err != nil {
			return fmt.Sprintf("[%s] <- undecodable reply %q: %v\n", ts, r.Raw, err)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] <- reply to seq=%d rtt=%v\n", ts, r.Sequence, time.Duration(r.RTT))
		b.WriteString(extctl.FormatStatus(s, r.Sequence))
		return b.String()

	case KindTimeout:
		return fmt.Sprintf("[%s] !! %s seq=%d timed out\n", ts, r.Signal, r.Sequence)

	case KindMalformed:
		return fmt.Sprintf("[%s] !! malformed reply to seq=%d %q: %s\n", ts, r.Sequence, r.Raw, r.Error)

	case KindSendError:
		return fmt.Sprintf("[%s] !! send of %s seq=%d failed: %s\n", ts, r.Signal, r.Sequence, r.Error)

	case KindHeartbeat:
		state := "stopped"
		if r.Value {
			state = "started"
		}
		return fmt.Sprintf("[%s] -- heartbeat %s\n", ts, state)
	}

	return fmt.Sprintf("[%s] %s\n", ts, r.Kind)
}
