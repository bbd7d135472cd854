// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 The Sunlink Authors

package log

// Canonical field name constants for structured logging.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldSessionID = "session_id"

	// Controller fields
	FieldController = "controller"
	FieldSequence   = "sequence"
	FieldSignal     = "signal"
	FieldErrorID    = "error_id"
	FieldAppState   = "app_state"

	// Bridge fields
	FieldRemoteAddr = "remote_addr"
	FieldOp         = "op"
)
