// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ast

// StatusEvent reports an execution status change.
type StatusEvent struct {
	ExecutionID string
	AST         string
	Status      Status
	Message     string
	Error       string
	DurationMS  int64
	Data        map[string]any
}

// ProgressEvent reports per-item progress.
type ProgressEvent struct {
	ExecutionID string
	Current     int
	Total       int
	CurrentItem string
	ItemStatus  string
	Message     string
}

// ItemResultEvent reports one finished item.
type ItemResultEvent struct {
	ExecutionID string
	ItemID      string
	Status      string
	DurationMS  int64
	Error       string
	Data        map[string]any
}

// PauseEvent reports a pause-state change.
type PauseEvent struct {
	ExecutionID string
	Paused      bool
	Message     string
}

// EventSink receives execution events. Implementations must tolerate calls
// from multiple goroutines; the executors serialise result-bearing events
// (progress, itemResult) under their results lock so sinks observe them in
// commit order.
type EventSink interface {
	Status(ev StatusEvent)
	Progress(ev ProgressEvent)
	ItemResult(ev ItemResultEvent)
	PauseState(ev PauseEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Status(StatusEvent)         {}
func (NopSink) Progress(ProgressEvent)     {}
func (NopSink) ItemResult(ItemResultEvent) {}
func (NopSink) PauseState(PauseEvent)      {}
