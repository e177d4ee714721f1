// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ast

import (
	"context"
	"sync"
	"time"
)

// checkInterval bounds how long a paused worker waits before re-checking the
// cancel flag.
const checkInterval = 500 * time.Millisecond

// Runtime is the shared control surface of one execution: pause gate, cancel
// flag and event emission. It is safe for concurrent use by all workers of an
// execution and by the transport goroutine issuing control commands.
type Runtime struct {
	sessionID   string
	executionID string
	astName     string
	sink        EventSink

	mu        sync.Mutex
	paused    bool
	pauseMsg  string
	cancelled bool
	resumed   chan struct{} // closed while running; replaced open while paused
}

// NewRuntime creates a runtime in the running (unpaused) state.
func NewRuntime(sessionID, executionID, astName string, sink EventSink) *Runtime {
	if sink == nil {
		sink = NopSink{}
	}
	resumed := make(chan struct{})
	close(resumed)
	return &Runtime{
		sessionID:   sessionID,
		executionID: executionID,
		astName:     astName,
		sink:        sink,
		resumed:     resumed,
	}
}

// SessionID returns the owning session's ID.
func (rt *Runtime) SessionID() string { return rt.sessionID }

// ExecutionID returns the execution's ID.
func (rt *Runtime) ExecutionID() string { return rt.executionID }

// ASTName returns the running script's name.
func (rt *Runtime) ASTName() string { return rt.astName }

// Pause closes the gate. Workers block at the next item boundary.
func (rt *Runtime) Pause(message string) {
	rt.mu.Lock()
	if rt.paused || rt.cancelled {
		rt.mu.Unlock()
		return
	}
	rt.paused = true
	rt.pauseMsg = message
	rt.resumed = make(chan struct{})
	rt.mu.Unlock()
	rt.sink.PauseState(PauseEvent{ExecutionID: rt.executionID, Paused: true, Message: message})
}

// Resume opens the gate and unblocks paused workers.
func (rt *Runtime) Resume() {
	rt.mu.Lock()
	if !rt.paused {
		rt.mu.Unlock()
		return
	}
	rt.paused = false
	rt.pauseMsg = ""
	close(rt.resumed)
	rt.mu.Unlock()
	rt.sink.PauseState(PauseEvent{ExecutionID: rt.executionID, Paused: false})
}

// Cancel sets the cancel flag and opens the gate so paused workers observe
// the cancellation instead of waiting forever.
func (rt *Runtime) Cancel() {
	rt.mu.Lock()
	if rt.cancelled {
		rt.mu.Unlock()
		return
	}
	rt.cancelled = true
	if rt.paused {
		rt.paused = false
		close(rt.resumed)
	}
	rt.mu.Unlock()
}

// IsPaused reports whether the gate is closed.
func (rt *Runtime) IsPaused() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.paused
}

// IsCancelled reports whether the execution was cancelled.
func (rt *Runtime) IsCancelled() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.cancelled
}

// Gate blocks while the runtime is paused and returns false when the
// execution should stop (cancelled or ctx done). Called by executors at item
// boundaries.
func (rt *Runtime) Gate(ctx context.Context) bool {
	for {
		rt.mu.Lock()
		if rt.cancelled {
			rt.mu.Unlock()
			return false
		}
		ch := rt.resumed
		rt.mu.Unlock()

		select {
		case <-ch:
			rt.mu.Lock()
			done := rt.cancelled
			rt.mu.Unlock()
			return !done
		case <-ctx.Done():
			return false
		case <-time.After(checkInterval):
			// re-check cancel while paused
		}
	}
}

// Progress emits a progress event.
func (rt *Runtime) Progress(ev ProgressEvent) {
	ev.ExecutionID = rt.executionID
	rt.sink.Progress(ev)
}

// ItemResult emits an item-result event.
func (rt *Runtime) ItemResult(ev ItemResultEvent) {
	ev.ExecutionID = rt.executionID
	rt.sink.ItemResult(ev)
}

// Status emits a status event.
func (rt *Runtime) Status(ev StatusEvent) {
	ev.ExecutionID = rt.executionID
	ev.AST = rt.astName
	rt.sink.Status(ev)
}
