// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store persists execution and item-result records. Writes are keyed
// upserts so retried persistence calls are idempotent.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: record not found")

// ExecutionRecord is the durable state of one AST execution.
type ExecutionRecord struct {
	SessionID    string     `json:"sessionId"`
	ExecutionID  string     `json:"executionId"`
	ASTName      string     `json:"astName"`
	UserID       string     `json:"userId,omitempty"`
	Mode         string     `json:"mode"`
	Status       string     `json:"status"`
	Message      string     `json:"message,omitempty"`
	Error        string     `json:"error,omitempty"`
	ItemCount    int        `json:"itemCount"`
	SuccessCount int        `json:"successCount"`
	FailedCount  int        `json:"failedCount"`
	SkippedCount int        `json:"skippedCount"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// ItemResultRecord is the durable outcome of one processed item.
type ItemResultRecord struct {
	ExecutionID string         `json:"executionId"`
	ItemID      string         `json:"itemId"`
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	DurationMS  int64          `json:"durationMs"`
	Data        map[string]any `json:"data,omitempty"`
	RecordedAt  time.Time      `json:"recordedAt"`
}

// Store is the persistence port used by the AST executors and the transport's
// history queries.
type Store interface {
	// PutExecution upserts an execution record keyed by (sessionID, executionID).
	PutExecution(ctx context.Context, rec *ExecutionRecord) error

	// UpdateExecution applies mutate to the stored record and writes it back
	// atomically. Returns ErrNotFound when no record exists.
	UpdateExecution(ctx context.Context, sessionID, executionID string, mutate func(*ExecutionRecord)) (*ExecutionRecord, error)

	// PutItemResult upserts an item-result record keyed by (executionID, itemID).
	PutItemResult(ctx context.Context, rec *ItemResultRecord) error

	// ListExecutions returns all execution records of a session.
	ListExecutions(ctx context.Context, sessionID string) ([]*ExecutionRecord, error)

	// ListItemResults returns all item results of an execution.
	ListItemResults(ctx context.Context, executionID string) ([]*ItemResultRecord, error)

	Close() error
}
