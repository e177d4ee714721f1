// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package protocol

// ResizeMeta carries terminal dimensions for resize frames.
type ResizeMeta struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// ErrorMeta carries the structured error payload of error frames.
type ErrorMeta struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// RunParams are the parameters of an ast.run request. Unknown scripts may use
// Extra for script-specific values.
type RunParams struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	UserID   string `json:"userId,omitempty"`

	// Items and PolicyNumbers are alternative spellings of the work list;
	// PolicyNumbers wins when both are present.
	Items         []string `json:"items,omitempty"`
	PolicyNumbers []string `json:"policyNumbers,omitempty"`

	Date        string `json:"date,omitempty"`
	Parallel    bool   `json:"parallel,omitempty"`
	MaxSessions int    `json:"maxSessions,omitempty"`
	TestMode    bool   `json:"testMode,omitempty"`

	// Per-run emulator overrides for parallel worker sessions.
	HostAddress string `json:"hostAddress,omitempty"`
	HostPort    int    `json:"hostPort,omitempty"`
	Secure      *bool  `json:"secure,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// ItemList resolves the requested work list, preferring policyNumbers.
func (p RunParams) ItemList() []string {
	if len(p.PolicyNumbers) > 0 {
		return p.PolicyNumbers
	}
	return p.Items
}

// ASTRunMeta carries the ast.run request payload. ExecutionID is optional;
// when empty the gateway mints one.
type ASTRunMeta struct {
	ASTName     string    `json:"astName"`
	ExecutionID string    `json:"executionId,omitempty"`
	Params      RunParams `json:"params"`
}

// ASTStatusMeta carries an ast.status event.
type ASTStatusMeta struct {
	ExecutionID string         `json:"executionId"`
	ASTName     string         `json:"astName"`
	Status      string         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMS  int64          `json:"durationMs,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// ASTProgressMeta carries an ast.progress event.
type ASTProgressMeta struct {
	ExecutionID string `json:"executionId"`
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	CurrentItem string `json:"currentItem,omitempty"`
	ItemStatus  string `json:"itemStatus,omitempty"`
	Message     string `json:"message,omitempty"`
}

// ASTItemResultMeta carries an ast.itemResult event.
type ASTItemResultMeta struct {
	ExecutionID string         `json:"executionId"`
	ItemID      string         `json:"itemId"`
	Status      string         `json:"status"`
	DurationMS  int64          `json:"durationMs"`
	Error       string         `json:"error,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// ASTPausedMeta carries an ast.paused event.
type ASTPausedMeta struct {
	ExecutionID string `json:"executionId"`
	Paused      bool   `json:"paused"`
	Message     string `json:"message,omitempty"`
}

// SessionCreatedMeta carries the session.created ack payload.
type SessionCreatedMeta struct {
	Reattached bool `json:"reattached,omitempty"`
}

// SessionDestroyedMeta carries the session.destroyed payload.
type SessionDestroyedMeta struct {
	Reason string `json:"reason"`
}
