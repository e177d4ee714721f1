// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package exec

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/hostgw/internal/ast"
	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/log"
	"github.com/ManuGH/hostgw/internal/telemetry"
)

// Sequential runs all items in order on the session's attached terminal:
// one sign-on, the items, one sign-off.
type Sequential struct{}

// Execute runs the execution context on term.
func (Sequential) Execute(ctx context.Context, term emulator.Terminal, ec *Context) ast.ExecutionResult {
	logger := log.WithComponentFromContext(ctx, "exec.sequential").With().
		Str(log.FieldExecutionID, ec.ExecutionID).
		Str(log.FieldAST, ec.Info.Name).
		Logger()

	ctx, span := ec.tracer().Start(ctx, "ast.execute",
		trace.WithAttributes(
			telemetry.AttrSessionID.String(ec.SessionID),
			telemetry.AttrExecutionID.String(ec.ExecutionID),
			telemetry.AttrASTName.String(ec.Info.Name),
			telemetry.AttrExecMode.String(ModeSequential),
		))
	defer span.End()

	startedAt := time.Now().UTC()
	writeInitialRecord(ctx, ec)
	rec := newRecorder(ec, len(ec.Items))

	if len(ec.Items) == 0 {
		logger.Info().Msg("no items to process")
		return finalize(ctx, ec, rec, startedAt, ast.StatusSuccess, "")
	}

	if err := ec.Script.Authenticate(ctx, term, ec.Creds); err != nil {
		logger.Error().Err(err).Msg("sign-on failed")
		return finalize(ctx, ec, rec, startedAt, ast.StatusFailed, fmt.Sprintf("authentication failed: %v", err))
	}
	defer func() {
		if err := ec.Script.Logoff(ctx, term); err != nil {
			logger.Warn().Err(err).Msg("sign-off failed")
		}
	}()

	total := len(ec.Items)
	shots := &ast.Shots{}
	cancelled := false
	for i, item := range ec.Items {
		if !ec.Runtime.Gate(ctx) {
			cancelled = true
			logger.Info().Int(log.FieldItemIndex, i+1).Msg("execution cancelled")
			break
		}
		if !ec.Script.ValidateItem(item) {
			rec.record(ctx, skippedResult(ec.Script.ItemID(item)))
			continue
		}
		ir := processOne(ctx, ec, term, shots, item, i+1, total)
		rec.record(ctx, ir)
	}

	if cancelled {
		return finalize(ctx, ec, rec, startedAt, ast.StatusCancelled, "")
	}
	return finalize(ctx, ec, rec, startedAt, ast.StatusSuccess, "")
}
