// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package exec runs automated scripts: the Runner validates and dispatches a
// run, the sequential executor drives the caller's terminal, the parallel
// executor partitions items over fresh emulator sessions.
package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/hostgw/internal/ast"
	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/log"
	"github.com/ManuGH/hostgw/internal/metrics"
	"github.com/ManuGH/hostgw/internal/store"
	"github.com/ManuGH/hostgw/internal/telemetry"
)

// Execution modes.
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
)

const skippedInvalidMessage = "Invalid item"

// Context carries everything one execution needs. Built by the Runner.
type Context struct {
	Script  ast.Script
	Info    ast.Info
	Runtime *ast.Runtime
	Creds   ast.Credentials

	SessionID   string
	ExecutionID string
	UserID      string
	Mode        string

	Items []ast.Item
	Store store.Store
	Auth  ast.AuthDefaults
}

func (ec *Context) tracer() trace.Tracer {
	return telemetry.Tracer("hostgw/ast")
}

// recorder owns the shared result list of an execution. One mutex covers the
// append, the persistence write and the event emission so observers see item
// results in commit order with a monotonic progress counter.
type recorder struct {
	ec    *Context
	total int

	mu        sync.Mutex
	results   []ast.ItemResult
	processed map[string]bool
}

func newRecorder(ec *Context, total int) *recorder {
	return &recorder{ec: ec, total: total, processed: make(map[string]bool)}
}

// record commits one item result: append, persist, emit.
func (r *recorder) record(ctx context.Context, ir ast.ItemResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitLocked(ctx, ir)
}

// recordIfNew commits ir unless an outcome for the item was already recorded.
// Used by the parallel batch-failure fan-out.
func (r *recorder) recordIfNew(ctx context.Context, ir ast.ItemResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.processed[ir.ItemID] {
		return false
	}
	r.commitLocked(ctx, ir)
	return true
}

func (r *recorder) commitLocked(ctx context.Context, ir ast.ItemResult) {
	r.results = append(r.results, ir)
	r.processed[ir.ItemID] = true

	rec := &store.ItemResultRecord{
		ExecutionID: r.ec.ExecutionID,
		ItemID:      ir.ItemID,
		Status:      ir.Status,
		Error:       ir.Error,
		DurationMS:  ir.DurationMS(),
		Data:        ir.Data,
		RecordedAt:  time.Now().UTC(),
	}
	if err := r.ec.Store.PutItemResult(ctx, rec); err != nil {
		metrics.StoreFailures.WithLabelValues("put_item_result").Inc()
		log.WithComponentFromContext(ctx, "exec").Warn().Err(err).
			Str(log.FieldExecutionID, r.ec.ExecutionID).
			Str(log.FieldItemID, ir.ItemID).
			Msg("item result not persisted, continuing")
	}

	r.ec.Runtime.ItemResult(ast.ItemResultEvent{
		ItemID:     ir.ItemID,
		Status:     ir.Status,
		DurationMS: ir.DurationMS(),
		Error:      ir.Error,
		Data:       ir.Data,
	})
	r.ec.Runtime.Progress(ast.ProgressEvent{
		Current:     len(r.results),
		Total:       r.total,
		CurrentItem: ir.ItemID,
		ItemStatus:  ir.Status,
		Message:     fmt.Sprintf("Item %d/%d: %s %s", len(r.results), r.total, ir.ItemID, ir.Status),
	})
	metrics.RecordItem(r.ec.Info.Name, ir.Status)
}

func (r *recorder) snapshot() []ast.ItemResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ast.ItemResult, len(r.results))
	copy(out, r.results)
	return out
}

// writeInitialRecord persists the single running record of an execution.
// Persistence is best effort; a failing store never fails the run.
func writeInitialRecord(ctx context.Context, ec *Context) {
	rec := &store.ExecutionRecord{
		SessionID:   ec.SessionID,
		ExecutionID: ec.ExecutionID,
		ASTName:     ec.Info.Name,
		UserID:      ec.UserID,
		Mode:        ec.Mode,
		Status:      string(ast.StatusRunning),
		ItemCount:   len(ec.Items),
		StartedAt:   time.Now().UTC(),
	}
	if err := ec.Store.PutExecution(ctx, rec); err != nil {
		metrics.StoreFailures.WithLabelValues("put_execution").Inc()
		log.WithComponentFromContext(ctx, "exec").Warn().Err(err).
			Str(log.FieldExecutionID, ec.ExecutionID).
			Msg("execution record not persisted, continuing")
	}
}

// finalize computes the aggregate result and writes the single terminal
// update of the execution record.
func finalize(ctx context.Context, ec *Context, rec *recorder, startedAt time.Time, status ast.Status, errMsg string) ast.ExecutionResult {
	result := ast.ExecutionResult{
		ExecutionID: ec.ExecutionID,
		ASTName:     ec.Info.Name,
		Status:      status,
		Error:       errMsg,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
		Items:       rec.snapshot(),
	}
	result.Tally()
	switch status {
	case ast.StatusCancelled:
		result.Message = fmt.Sprintf("Execution cancelled after %d of %d items", len(result.Items), rec.total)
	case ast.StatusFailed:
		result.Message = errMsg
	default:
		result.Message = fmt.Sprintf("Processed %d items: %d success, %d failed, %d skipped",
			len(result.Items), result.SuccessCount, result.FailedCount, result.SkippedCount)
	}

	completed := result.CompletedAt
	_, err := ec.Store.UpdateExecution(ctx, ec.SessionID, ec.ExecutionID, func(r *store.ExecutionRecord) {
		r.Status = string(status)
		r.Message = result.Message
		r.Error = errMsg
		r.SuccessCount = result.SuccessCount
		r.FailedCount = result.FailedCount
		r.SkippedCount = result.SkippedCount
		r.CompletedAt = &completed
	})
	if err != nil {
		metrics.StoreFailures.WithLabelValues("update_execution").Inc()
		log.WithComponentFromContext(ctx, "exec").Warn().Err(err).
			Str(log.FieldExecutionID, ec.ExecutionID).
			Msg("terminal execution update not persisted, continuing")
	}

	metrics.RecordExecution(ec.Info.Name, string(status), ec.Mode, result.Duration().Seconds())
	return result
}

// processOne runs a single item on an authenticated terminal and shapes the
// outcome, including screenshots and the error screen on failure.
func processOne(ctx context.Context, ec *Context, term emulator.Terminal, shots *ast.Shots, item ast.Item, index, total int) ast.ItemResult {
	itemID := ec.Script.ItemID(item)
	ir := ast.ItemResult{ItemID: itemID, StartedAt: time.Now().UTC()}

	itemCtx, span := ec.tracer().Start(ctx, "ast.item",
		trace.WithAttributes(
			telemetry.AttrExecutionID.String(ec.ExecutionID),
			telemetry.AttrItemID.String(itemID),
			telemetry.AttrItemIndex.Int(index),
			telemetry.AttrItemTotal.Int(total),
		))
	defer span.End()

	shots.Reset()
	ec.Runtime.Progress(ast.ProgressEvent{
		Current:     index,
		Total:       total,
		CurrentItem: itemID,
		ItemStatus:  string(ast.StatusRunning),
		Message:     fmt.Sprintf("Processing item %d/%d: %s", index, total, itemID),
	})

	data, err := runItemHook(itemCtx, ec, term, shots, item, index, total)
	ir.CompletedAt = time.Now().UTC()
	if data == nil {
		data = make(map[string]any)
	}
	// Captures travel inside the result data so they reach the store and the
	// wire event together with the rest of the item payload.
	if captured := shots.List(); len(captured) > 0 {
		data["screenshots"] = captured
	}
	if err != nil {
		ir.Status = ast.ItemFailed
		ir.Error = err.Error()
		data["errorScreen"] = term.FormattedScreen()
		ir.Data = data
		span.SetAttributes(telemetry.AttrStatus.String(ast.ItemFailed))
		log.WithComponentFromContext(ctx, "exec").Warn().Err(err).
			Str(log.FieldExecutionID, ec.ExecutionID).
			Str(log.FieldItemID, itemID).
			Int(log.FieldItemIndex, index).
			Msg("item failed")
		return ir
	}
	ir.Status = ast.ItemSuccess
	ir.Data = data
	span.SetAttributes(telemetry.AttrStatus.String(ast.ItemSuccess))
	return ir
}

// runItemHook invokes the script's item hook, converting a panic into a
// failed item so one broken screen interaction never kills the process.
func runItemHook(ctx context.Context, ec *Context, term emulator.Terminal, shots *ast.Shots, item ast.Item, index, total int) (data map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panic: %v", r)
		}
	}()
	return ec.Script.ProcessSingleItem(ctx, term, shots, item, index, total)
}

func skippedResult(itemID string) ast.ItemResult {
	now := time.Now().UTC()
	return ast.ItemResult{
		ItemID:      itemID,
		Status:      ast.ItemSkipped,
		Error:       skippedInvalidMessage,
		StartedAt:   now,
		CompletedAt: now,
	}
}
