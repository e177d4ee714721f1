// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package exec

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/hostgw/internal/ast"
	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/log"
	"github.com/ManuGH/hostgw/internal/metrics"
	"github.com/ManuGH/hostgw/internal/telemetry"
)

// Parallel partitions the valid items round-robin over fresh emulator
// sessions, one worker per session. A failing worker fails only its own
// remaining batch; the other workers keep running.
type Parallel struct {
	Opener      emulator.Opener
	Options     emulator.Options // base connection options; Name is set per worker
	MaxSessions int
}

type batchEntry struct {
	item  ast.Item
	index int // 1-based position in the original item list
}

// Execute runs the execution context over worker-owned emulator sessions.
func (p Parallel) Execute(ctx context.Context, ec *Context) ast.ExecutionResult {
	logger := log.WithComponentFromContext(ctx, "exec.parallel").With().
		Str(log.FieldExecutionID, ec.ExecutionID).
		Str(log.FieldAST, ec.Info.Name).
		Logger()

	ctx, span := ec.tracer().Start(ctx, "ast.execute",
		trace.WithAttributes(
			telemetry.AttrSessionID.String(ec.SessionID),
			telemetry.AttrExecutionID.String(ec.ExecutionID),
			telemetry.AttrASTName.String(ec.Info.Name),
			telemetry.AttrExecMode.String(ModeParallel),
		))
	defer span.End()

	startedAt := time.Now().UTC()
	writeInitialRecord(ctx, ec)
	rec := newRecorder(ec, len(ec.Items))

	// Validate before any session is opened so invalid items are skipped
	// exactly once and never consume an emulator slot.
	var valid []batchEntry
	for i, item := range ec.Items {
		if !ec.Script.ValidateItem(item) {
			rec.record(ctx, skippedResult(ec.Script.ItemID(item)))
			continue
		}
		valid = append(valid, batchEntry{item: item, index: i + 1})
	}
	if len(valid) == 0 {
		logger.Info().Msg("no valid items to process")
		return finalize(ctx, ec, rec, startedAt, ast.StatusSuccess, "")
	}

	workers := p.MaxSessions
	if workers < 1 {
		workers = 1
	}
	if workers > len(valid) {
		workers = len(valid)
	}

	batches := make([][]batchEntry, workers)
	for i, entry := range valid {
		w := i % workers
		batches[w] = append(batches[w], entry)
	}

	logger.Info().
		Int(log.FieldItemTotal, len(ec.Items)).
		Int(log.FieldBatchSize, len(valid)).
		Int("workers", workers).
		Msg("starting parallel execution")

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			p.runWorker(ctx, ec, rec, w, batches[w])
			return nil
		})
	}
	// Workers report their own failures through the recorder.
	_ = g.Wait()

	if ec.Runtime.IsCancelled() {
		return finalize(ctx, ec, rec, startedAt, ast.StatusCancelled, "")
	}
	return finalize(ctx, ec, rec, startedAt, ast.StatusSuccess, "")
}

// runWorker drives one emulator session through its batch. Any session-level
// failure (open, sign-on) fails every not-yet-processed item of the batch.
func (p Parallel) runWorker(ctx context.Context, ec *Context, rec *recorder, workerID int, batch []batchEntry) {
	logger := log.WithComponentFromContext(ctx, "exec.parallel").With().
		Str(log.FieldExecutionID, ec.ExecutionID).
		Int(log.FieldWorker, workerID).
		Int(log.FieldBatchSize, len(batch)).
		Logger()

	ctx, span := ec.tracer().Start(ctx, "ast.worker",
		trace.WithAttributes(
			telemetry.AttrExecutionID.String(ec.ExecutionID),
			telemetry.AttrWorker.Int(workerID),
		))
	defer span.End()

	opts := p.Options
	opts.Name = workerName(ec.ExecutionID, workerID)

	sess, err := p.Opener.Open(ctx, opts)
	if err != nil {
		metrics.EmulatorFailures.WithLabelValues("open").Inc()
		logger.Error().Err(err).Str(log.FieldEmulatorSession, opts.Name).Msg("emulator session failed")
		p.failBatch(ctx, ec, rec, batch, err)
		return
	}
	defer func() {
		if err := sess.Drop(); err != nil {
			logger.Warn().Err(err).Msg("emulator session drop failed")
		}
	}()

	if err := ec.Script.Authenticate(ctx, sess, ec.Creds); err != nil {
		metrics.EmulatorFailures.WithLabelValues("auth").Inc()
		logger.Error().Err(err).Msg("worker sign-on failed")
		p.failBatch(ctx, ec, rec, batch, err)
		return
	}
	defer func() {
		if err := ec.Script.Logoff(ctx, sess); err != nil {
			logger.Warn().Err(err).Msg("worker sign-off failed")
		}
	}()

	total := len(ec.Items)
	shots := &ast.Shots{}
	for _, entry := range batch {
		if !ec.Runtime.Gate(ctx) {
			logger.Info().Msg("worker stopped, execution cancelled")
			return
		}
		ir := processOne(ctx, ec, sess, shots, entry.item, entry.index, total)
		rec.record(ctx, ir)
	}
}

// failBatch records a terminal failure for every item of the batch that has
// no outcome yet. Items already processed keep their original result.
func (p Parallel) failBatch(ctx context.Context, ec *Context, rec *recorder, batch []batchEntry, cause error) {
	now := time.Now().UTC()
	for _, entry := range batch {
		ir := ast.ItemResult{
			ItemID:      ec.Script.ItemID(entry.item),
			Status:      ast.ItemFailed,
			Error:       fmt.Sprintf("Session failed: %v", cause),
			StartedAt:   now,
			CompletedAt: now,
		}
		rec.recordIfNew(ctx, ir)
	}
}

func workerName(executionID string, workerID int) string {
	short := executionID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("SES_%s_%d", short, workerID)
}
