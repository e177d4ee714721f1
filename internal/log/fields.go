// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldExecutionID   = "execution_id"
	FieldCorrelationID = "correlation_id"
	FieldUserID        = "user_id"

	// AST fields
	FieldAST        = "ast"
	FieldItemID     = "item_id"
	FieldItemIndex  = "item_index"
	FieldItemTotal  = "item_total"
	FieldMode       = "mode"
	FieldWorker     = "worker"
	FieldBatchSize  = "batch_size"
	FieldDurationMS = "duration_ms"

	// Process fields
	FieldComponent = "component"
	FieldEvent     = "event"
	FieldReason    = "reason"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldStatus   = "status"

	// Emulator fields
	FieldEmulatorHost    = "emulator_host"
	FieldEmulatorPort    = "emulator_port"
	FieldEmulatorSession = "emulator_session"
	FieldKeyword         = "keyword"
)
