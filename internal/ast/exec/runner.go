// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/hostgw/internal/ast"
	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/log"
	"github.com/ManuGH/hostgw/internal/protocol"
	"github.com/ManuGH/hostgw/internal/store"
)

// Runner validates a run request, resolves the execution mode and dispatches
// to an executor. One Runner serves all sessions.
type Runner struct {
	Store store.Store

	// Opener and EmulatorOpts let the parallel executor create fresh
	// sessions. A nil Opener forces sequential mode.
	Opener       emulator.Opener
	EmulatorOpts emulator.Options

	// DefaultMaxSessions caps parallel workers when the request has no limit.
	DefaultMaxSessions int

	Auth ast.AuthDefaults
}

// Run executes script with the given runtime on behalf of one session. The
// caller owns rt and uses it to cancel/pause the run; term is the session's
// attached terminal, used in sequential mode.
//
// Credential and preparation failures are rejected before any execution
// record is written or any emulator interaction happens.
func (r *Runner) Run(ctx context.Context, rt *ast.Runtime, script ast.Script, term emulator.Terminal, params protocol.RunParams) ast.ExecutionResult {
	info := script.Info()
	logger := log.WithComponentFromContext(ctx, "exec.runner").With().
		Str(log.FieldExecutionID, rt.ExecutionID()).
		Str(log.FieldAST, info.Name).
		Logger()
	startedAt := time.Now().UTC()

	if params.Username == "" || params.Password == "" {
		logger.Warn().Msg("run rejected, missing credentials")
		return r.reject(rt, info, startedAt, "Missing credentials: username and password are required")
	}

	mode := ModeSequential
	if params.Parallel {
		switch {
		case !info.SupportsParallel:
			logger.Warn().Str(log.FieldMode, ModeSequential).
				Msg("script does not support parallel execution, falling back to sequential")
		case r.Opener == nil:
			logger.Warn().Str(log.FieldMode, ModeSequential).
				Msg("no emulator opener configured, falling back to sequential")
		default:
			mode = ModeParallel
		}
	}
	if mode == ModeSequential && term == nil {
		logger.Warn().Msg("run rejected, no emulator session attached")
		return r.reject(rt, info, startedAt, "No emulator session attached")
	}

	rt.Status(ast.StatusEvent{Status: ast.StatusRunning, Message: fmt.Sprintf("Starting %s", info.Name)})

	items, err := script.PrepareItems(ctx, rt, params)
	if err != nil {
		logger.Error().Err(err).Msg("item preparation failed")
		return r.reject(rt, info, startedAt, fmt.Sprintf("Failed to prepare items: %v", err))
	}

	ec := &Context{
		Script:      script,
		Info:        info,
		Runtime:     rt,
		Creds:       ast.Credentials{Username: params.Username, Password: params.Password},
		SessionID:   rt.SessionID(),
		ExecutionID: rt.ExecutionID(),
		UserID:      params.UserID,
		Mode:        mode,
		Items:       items,
		Store:       r.Store,
		Auth:        r.Auth,
	}

	logger.Info().
		Str(log.FieldMode, mode).
		Int(log.FieldItemTotal, len(items)).
		Msg("execution starting")

	var result ast.ExecutionResult
	if mode == ModeParallel {
		maxSessions := params.MaxSessions
		if maxSessions <= 0 {
			maxSessions = r.DefaultMaxSessions
		}
		opts := r.EmulatorOpts
		if params.HostAddress != "" {
			opts.Host = params.HostAddress
		}
		if params.HostPort > 0 {
			opts.Port = params.HostPort
		}
		if params.Secure != nil {
			opts.Secure = *params.Secure
		}
		executor := Parallel{Opener: r.Opener, Options: opts, MaxSessions: maxSessions}
		result = executor.Execute(ctx, ec)
	} else {
		result = Sequential{}.Execute(ctx, term, ec)
	}

	rt.Status(ast.StatusEvent{
		Status:     result.Status,
		Message:    result.Message,
		Error:      result.Error,
		DurationMS: result.Duration().Milliseconds(),
		Data: map[string]any{
			"successCount": result.SuccessCount,
			"failedCount":  result.FailedCount,
			"skippedCount": result.SkippedCount,
			"itemCount":    len(result.Items),
		},
	})
	logger.Info().
		Str(log.FieldStatus, string(result.Status)).
		Int64(log.FieldDurationMS, result.Duration().Milliseconds()).
		Msg("execution finished")
	return result
}

// reject produces a failed result without side effects: no execution record,
// no emulator interaction. Exactly one terminal status event is emitted.
func (r *Runner) reject(rt *ast.Runtime, info ast.Info, startedAt time.Time, message string) ast.ExecutionResult {
	result := ast.ExecutionResult{
		ExecutionID: rt.ExecutionID(),
		ASTName:     info.Name,
		Status:      ast.StatusFailed,
		Message:     message,
		Error:       message,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
	}
	rt.Status(ast.StatusEvent{Status: ast.StatusFailed, Message: message, Error: message})
	return result
}
