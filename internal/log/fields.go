// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldTableID   = "table_id"
	FieldRequestID = "request_id"

	// Event bus fields
	FieldTopic    = "topic"
	FieldSequence = "sequence"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
