// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/hostgw/internal/ast"
	"github.com/ManuGH/hostgw/internal/ast/exec"
	"github.com/ManuGH/hostgw/internal/channels"
	"github.com/ManuGH/hostgw/internal/domain/session/model"
	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/log"
	"github.com/ManuGH/hostgw/internal/protocol"
)

// Transport is the client connection of a session. Send must preserve the
// order of calls; implementations queue frames on a single writer.
type Transport interface {
	Send(msg protocol.Message) error
	Close() error
}

// Controller owns one session: the emulator connection, the attached
// transport (if any) and the at-most-one running AST execution.
type Controller struct {
	sessionID string
	term      emulator.Session
	runner    *exec.Runner
	scripts   *ast.Registry
	mirror    *channels.Mirror
	logger    zerolog.Logger

	// requestDestroy hands an explicit destroy request back to the registry,
	// which owns the session map.
	requestDestroy func(reason string)

	mu        sync.Mutex
	transport Transport
	state     model.State
	runtime   *ast.Runtime // non-nil while an execution is in flight
}

func newController(sessionID string, term emulator.Session, runner *exec.Runner, scripts *ast.Registry, mirror *channels.Mirror, requestDestroy func(reason string)) *Controller {
	c := &Controller{
		sessionID:      sessionID,
		term:           term,
		runner:         runner,
		scripts:        scripts,
		mirror:         mirror,
		requestDestroy: requestDestroy,
		state:          model.StateDetached,
		logger: log.WithComponent("session").With().
			Str(log.FieldSessionID, sessionID).
			Logger(),
	}
	term.Notify(c.onScreen)
	return c
}

// SessionID returns the session's identifier.
func (c *Controller) SessionID() string { return c.sessionID }

// State returns the current lifecycle state.
func (c *Controller) State() model.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsRunning reports whether an AST execution is in flight.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runtime != nil
}

func (c *Controller) attachTransport(t Transport, reattached bool) {
	c.mu.Lock()
	if c.transport != nil {
		// A second client for the same session replaces the stale transport.
		_ = c.transport.Close()
	}
	c.transport = t
	c.state = model.StateAttached
	c.mu.Unlock()

	c.send(protocol.NewSessionCreatedMessage(c.sessionID, reattached))
	c.logger.Info().Bool("reattached", reattached).Msg("transport attached")
}

func (c *Controller) detachTransport() {
	c.mu.Lock()
	c.transport = nil
	if c.state == model.StateAttached {
		c.state = model.StateDetached
	}
	c.mu.Unlock()
	c.logger.Info().Msg("transport detached")
}

// send delivers a frame to the attached transport. Frames produced while the
// session is detached are dropped; durable state lives in the store.
func (c *Controller) send(msg protocol.Message) {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return
	}
	if err := t.Send(msg); err != nil {
		c.logger.Warn().Err(err).Str("type", string(msg.Type)).Msg("frame not delivered")
	}
}

func (c *Controller) sendError(code, message string) {
	c.send(protocol.NewErrorMessage(c.sessionID, code, message))
}

// onScreen relays emulator screen updates to the client and the mirror.
func (c *Controller) onScreen(screen string) {
	c.send(protocol.NewDataMessage(c.sessionID, screen))
	c.mirror.PublishOutput(context.Background(), c.sessionID, screen)
}

// HandleFrame dispatches one inbound frame.
func (c *Controller) HandleFrame(ctx context.Context, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeData:
		if err := c.term.SendRaw(msg.Data); err != nil {
			c.sendError(protocol.CodeEmulatorFailed, "terminal input failed")
			c.logger.Warn().Err(err).Msg("terminal input failed")
		}

	case protocol.TypeResize:
		var meta protocol.ResizeMeta
		if err := protocol.DecodeMeta(msg, &meta); err != nil {
			c.sendError(protocol.CodeInvalidMessage, err.Error())
			return
		}
		// 3270 screen geometry is fixed by the terminal model.
		c.logger.Debug().Int("cols", meta.Cols).Int("rows", meta.Rows).Msg("resize ignored")

	case protocol.TypePing:
		c.send(protocol.NewPongMessage(c.sessionID, msg.Timestamp))

	case protocol.TypeASTRun:
		c.handleRun(ctx, msg)

	case protocol.TypeASTCancel:
		c.withRuntime(func(rt *ast.Runtime) { rt.Cancel() })

	case protocol.TypeASTPause:
		c.withRuntime(func(rt *ast.Runtime) { rt.Pause("Paused by client") })

	case protocol.TypeASTResume:
		c.withRuntime(func(rt *ast.Runtime) { rt.Resume() })

	case protocol.TypeSessionDestroy:
		c.requestDestroy(model.ReasonClientRequest)

	default:
		c.sendError(protocol.CodeInvalidMessage, "unsupported message type: "+string(msg.Type))
	}
}

func (c *Controller) withRuntime(fn func(rt *ast.Runtime)) {
	c.mu.Lock()
	rt := c.runtime
	c.mu.Unlock()
	if rt == nil {
		c.sendError(protocol.CodeValidationError, "no execution in progress")
		return
	}
	fn(rt)
}

func (c *Controller) handleRun(ctx context.Context, msg protocol.Message) {
	var meta protocol.ASTRunMeta
	if err := protocol.DecodeMeta(msg, &meta); err != nil {
		c.sendError(protocol.CodeInvalidMessage, err.Error())
		return
	}

	script, err := c.scripts.Get(meta.ASTName)
	if err != nil {
		c.sendError(protocol.CodeUnknownAST, "unknown script: "+meta.ASTName)
		return
	}

	// Callers may supply their own execution ID for idempotent retries.
	executionID := meta.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}
	rt := ast.NewRuntime(c.sessionID, executionID, meta.ASTName, c)

	c.mu.Lock()
	if c.runtime != nil {
		c.mu.Unlock()
		c.sendError(protocol.CodeASTBusy, "an execution is already in progress")
		return
	}
	c.runtime = rt
	c.mu.Unlock()

	c.logger.Info().
		Str(log.FieldExecutionID, executionID).
		Str(log.FieldAST, meta.ASTName).
		Msg("execution accepted")

	// The run outlives the frame handler; it is bound to the session, not
	// the transport, so it survives disconnects within the grace period.
	runCtx := log.ContextWithSessionID(context.WithoutCancel(ctx), c.sessionID)
	runCtx = log.ContextWithExecutionID(runCtx, executionID)
	go func() {
		defer func() {
			c.mu.Lock()
			c.runtime = nil
			c.mu.Unlock()
		}()
		c.runner.Run(runCtx, rt, script, c.term, meta.Params)
	}()
}

// cancelRun cancels any in-flight execution. Used during teardown.
func (c *Controller) cancelRun() {
	c.mu.Lock()
	rt := c.runtime
	c.mu.Unlock()
	if rt != nil {
		rt.Cancel()
	}
}

// teardown destroys the session's resources and notifies the client.
func (c *Controller) teardown(reason string) {
	c.cancelRun()

	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.state = model.StateDestroyed
	c.mu.Unlock()

	if err := c.term.Drop(); err != nil {
		c.logger.Warn().Err(err).Msg("emulator session drop failed")
	}
	if t != nil {
		_ = t.Send(protocol.NewSessionDestroyedMessage(c.sessionID, reason))
		_ = t.Close()
	}
	c.logger.Info().Str(log.FieldReason, reason).Msg("session destroyed")
}

// Controller implements ast.EventSink by translating execution events into
// wire frames and mirror publishes.

func (c *Controller) Status(ev ast.StatusEvent) {
	msg := protocol.NewASTStatusMessage(c.sessionID, protocol.ASTStatusMeta{
		ExecutionID: ev.ExecutionID,
		ASTName:     ev.AST,
		Status:      string(ev.Status),
		Message:     ev.Message,
		Error:       ev.Error,
		DurationMS:  ev.DurationMS,
		Data:        ev.Data,
	})
	c.send(msg)
	c.mirrorEvent(msg)
}

func (c *Controller) Progress(ev ast.ProgressEvent) {
	msg := protocol.NewASTProgressMessage(c.sessionID, protocol.ASTProgressMeta{
		ExecutionID: ev.ExecutionID,
		Current:     ev.Current,
		Total:       ev.Total,
		CurrentItem: ev.CurrentItem,
		ItemStatus:  ev.ItemStatus,
		Message:     ev.Message,
	})
	c.send(msg)
	c.mirrorEvent(msg)
}

func (c *Controller) ItemResult(ev ast.ItemResultEvent) {
	msg := protocol.NewASTItemResultMessage(c.sessionID, protocol.ASTItemResultMeta{
		ExecutionID: ev.ExecutionID,
		ItemID:      ev.ItemID,
		Status:      ev.Status,
		DurationMS:  ev.DurationMS,
		Error:       ev.Error,
		Data:        ev.Data,
	})
	c.send(msg)
	c.mirrorEvent(msg)
}

func (c *Controller) PauseState(ev ast.PauseEvent) {
	msg := protocol.NewASTPausedMessage(c.sessionID, protocol.ASTPausedMeta{
		ExecutionID: ev.ExecutionID,
		Paused:      ev.Paused,
		Message:     ev.Message,
	})
	c.send(msg)
	c.mirrorEvent(msg)
}

func (c *Controller) mirrorEvent(msg protocol.Message) {
	raw, err := protocol.Encode(msg)
	if err != nil {
		return
	}
	c.mirror.PublishEvent(context.Background(), c.sessionID, raw)
}

var _ ast.EventSink = (*Controller)(nil)
