// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Sunlink Authors

package extctl

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when no reply arrives within ReceiveTimeout
	ErrTimeout = errors.New("request timed out")

	// ErrMalformedReply is matched by every *MalformedReplyError
	ErrMalformedReply = errors.New("malformed reply")

	// ErrUnsupportedOperation is returned by AppStop and AppRestart when the
	// session was created without App_Enable support. The application then
	// has to be stopped from the control pendant.
	ErrUnsupportedOperation = errors.New("operation requires App_Enable support")

	// ErrSessionClosed is returned by operations on a closed session
	ErrSessionClosed = errors.New("session closed")
)

// MalformedReplyError describes a datagram that does not match the fixed schema
type MalformedReplyError struct {
	Field string
	Value string
	Raw   string
	Err   error
}

// Error implements the error interface
func (e *MalformedReplyError) Error() string {
	return fmt.Sprintf("malformed reply: bad %s %q in %q", e.Field, e.Value, e.Raw)
}

// Is makes errors.Is(err, ErrMalformedReply) match
func (e *MalformedReplyError) Is(target error) bool {
	return target == ErrMalformedReply
}

// Unwrap returns the underlying parse error, if any
func (e *MalformedReplyError) Unwrap() error {
	return e.Err
}

// FaultError is a fault reported by the controller in a decoded status
type FaultError struct {
	Code     ErrorCode
	Sequence uint64 // sequence of the command that triggered the reply
}

// Error implements the error interface
func (e *FaultError) Error() string {
	return fmt.Sprintf("controller fault %s (%d) after packet %d", e.Code, int(e.Code), e.Sequence)
}
