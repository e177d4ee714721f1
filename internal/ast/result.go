// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ast

import "time"

// Status is the lifecycle status of an execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// IsTerminal reports whether the status ends an execution.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// Item statuses.
const (
	ItemSuccess = "success"
	ItemFailed  = "failed"
	ItemSkipped = "skipped"
)

// Shot is one captured screen with its label.
type Shot struct {
	Label  string `json:"label"`
	Screen string `json:"screen"`
}

// ItemResult is the outcome of one processed item. Screen captures and the
// failure screen travel inside Data (`screenshots`, `errorScreen`) so they
// reach persistence and the wire with the item payload.
type ItemResult struct {
	ItemID      string         `json:"itemId"`
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt"`
	Data        map[string]any `json:"data,omitempty"`
}

// DurationMS returns the item's wall-clock duration in milliseconds.
func (r ItemResult) DurationMS() int64 {
	return r.CompletedAt.Sub(r.StartedAt).Milliseconds()
}

// ExecutionResult is the aggregate outcome of an execution.
type ExecutionResult struct {
	ExecutionID  string         `json:"executionId"`
	ASTName      string         `json:"astName"`
	Status       Status         `json:"status"`
	Message      string         `json:"message,omitempty"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	CompletedAt  time.Time      `json:"completedAt"`
	Items        []ItemResult   `json:"items,omitempty"`
	SuccessCount int            `json:"successCount"`
	FailedCount  int            `json:"failedCount"`
	SkippedCount int            `json:"skippedCount"`
	Data         map[string]any `json:"data,omitempty"`
}

// Duration returns the execution's wall-clock duration.
func (r ExecutionResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Tally recomputes the per-status counts from the collected items.
func (r *ExecutionResult) Tally() {
	r.SuccessCount, r.FailedCount, r.SkippedCount = 0, 0, 0
	for _, item := range r.Items {
		switch item.Status {
		case ItemSuccess:
			r.SuccessCount++
		case ItemFailed:
			r.FailedCount++
		case ItemSkipped:
			r.SkippedCount++
		}
	}
}
