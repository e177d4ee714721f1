// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package manager owns the live sessions: the registry enforces the session
// cap and the grace-period reconnect window, the controller drives one
// session.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/hostgw/internal/ast"
	"github.com/ManuGH/hostgw/internal/ast/exec"
	"github.com/ManuGH/hostgw/internal/channels"
	"github.com/ManuGH/hostgw/internal/domain/session/model"
	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/log"
	"github.com/ManuGH/hostgw/internal/metrics"
	"github.com/ManuGH/hostgw/internal/protocol"
)

// Options configure a Registry.
type Options struct {
	MaxSessions  int
	GracePeriod  time.Duration
	Opener       emulator.Opener
	EmulatorOpts emulator.Options
	Runner       *exec.Runner
	Scripts      *ast.Registry
	Mirror       *channels.Mirror
}

// Registry holds all live sessions.
type Registry struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*Controller
	timers   map[string]*time.Timer
	closing  bool
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.MaxSessions < 1 {
		opts.MaxSessions = 1
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 60 * time.Second
	}
	return &Registry{
		opts:     opts,
		sessions: make(map[string]*Controller),
		timers:   make(map[string]*time.Timer),
	}
}

// Attach binds a transport to the session with the given ID, creating the
// session if it does not exist. Reattaching within the grace period cancels
// the pending destruction.
func (r *Registry) Attach(ctx context.Context, sessionID string, t Transport) (*Controller, error) {
	if !model.IsSafeSessionID(sessionID) {
		return nil, protocol.NewGatewayError(protocol.CodeValidationError, "invalid session id")
	}

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return nil, protocol.NewGatewayError(protocol.CodeInternalError, "gateway shutting down")
	}

	if c, ok := r.sessions[sessionID]; ok {
		r.stopTimerLocked(sessionID)
		r.mu.Unlock()
		c.attachTransport(t, true)
		return c, nil
	}

	if len(r.sessions) >= r.opts.MaxSessions {
		r.mu.Unlock()
		metrics.SessionsRejected.Inc()
		return nil, protocol.NewGatewayError(protocol.CodeSessionLimitReached,
			"session limit reached (%d)", r.opts.MaxSessions)
	}

	emuOpts := r.opts.EmulatorOpts
	emuOpts.Name = sessionID
	term, err := r.opts.Opener.Open(ctx, emuOpts)
	if err != nil {
		r.mu.Unlock()
		metrics.EmulatorFailures.WithLabelValues("open").Inc()
		return nil, protocol.NewGatewayError(protocol.CodeEmulatorFailed, "emulator connect failed: %v", err)
	}

	c := newController(sessionID, term, r.opts.Runner, r.opts.Scripts, r.opts.Mirror,
		func(reason string) { r.Destroy(sessionID, reason) })
	r.sessions[sessionID] = c
	r.mu.Unlock()

	metrics.RecordSessionCreated()
	c.attachTransport(t, false)
	return c, nil
}

// Provision creates a detached session ahead of a client connection, for
// control-channel requests. The grace timer is armed immediately so an
// unclaimed session is cleaned up like any other disconnected one.
func (r *Registry) Provision(ctx context.Context, sessionID string) (*Controller, error) {
	if !model.IsSafeSessionID(sessionID) {
		return nil, protocol.NewGatewayError(protocol.CodeValidationError, "invalid session id")
	}

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return nil, protocol.NewGatewayError(protocol.CodeInternalError, "gateway shutting down")
	}
	if c, ok := r.sessions[sessionID]; ok {
		r.mu.Unlock()
		return c, nil
	}
	if len(r.sessions) >= r.opts.MaxSessions {
		r.mu.Unlock()
		metrics.SessionsRejected.Inc()
		return nil, protocol.NewGatewayError(protocol.CodeSessionLimitReached,
			"session limit reached (%d)", r.opts.MaxSessions)
	}

	emuOpts := r.opts.EmulatorOpts
	emuOpts.Name = sessionID
	term, err := r.opts.Opener.Open(ctx, emuOpts)
	if err != nil {
		r.mu.Unlock()
		metrics.EmulatorFailures.WithLabelValues("open").Inc()
		return nil, protocol.NewGatewayError(protocol.CodeEmulatorFailed, "emulator connect failed: %v", err)
	}

	c := newController(sessionID, term, r.opts.Runner, r.opts.Scripts, r.opts.Mirror,
		func(reason string) { r.Destroy(sessionID, reason) })
	r.sessions[sessionID] = c
	r.armTimerLocked(sessionID)
	r.mu.Unlock()

	metrics.RecordSessionCreated()
	log.WithComponent("registry").Info().
		Str(log.FieldSessionID, sessionID).
		Msg("session provisioned, awaiting client")
	return c, nil
}

// Get returns the controller of a live session, or nil.
func (r *Registry) Get(sessionID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionID]
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// HandleDisconnect detaches the transport and arms the grace timer. The
// session keeps running until the timer fires with no transport attached and
// no AST in flight.
func (r *Registry) HandleDisconnect(sessionID string) {
	r.mu.Lock()
	c, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.armTimerLocked(sessionID)
	r.mu.Unlock()

	c.detachTransport()
	log.WithComponent("registry").Info().
		Str(log.FieldSessionID, sessionID).
		Dur("grace_period", r.opts.GracePeriod).
		Msg("transport lost, grace timer armed")
}

func (r *Registry) armTimerLocked(sessionID string) {
	r.stopTimerLocked(sessionID)
	r.timers[sessionID] = time.AfterFunc(r.opts.GracePeriod, func() {
		r.onGraceExpired(sessionID)
	})
}

func (r *Registry) stopTimerLocked(sessionID string) {
	if timer, ok := r.timers[sessionID]; ok {
		timer.Stop()
		delete(r.timers, sessionID)
	}
}

func (r *Registry) onGraceExpired(sessionID string) {
	r.mu.Lock()
	c, ok := r.sessions[sessionID]
	if !ok || r.closing {
		r.mu.Unlock()
		return
	}
	if c.State() == model.StateAttached {
		// A client reattached while the timer was firing.
		r.stopTimerLocked(sessionID)
		r.mu.Unlock()
		return
	}
	if c.IsRunning() {
		// A running execution is authoritative: destruction is deferred for
		// another grace period, however often it takes.
		r.armTimerLocked(sessionID)
		r.mu.Unlock()
		metrics.GraceReschedules.Inc()
		log.WithComponent("registry").Warn().
			Str(log.FieldSessionID, sessionID).
			Msg("grace expired with execution in flight, destruction deferred")
		return
	}
	delete(r.sessions, sessionID)
	r.stopTimerLocked(sessionID)
	r.mu.Unlock()

	c.teardown(model.ReasonGraceExpired)
	metrics.RecordSessionDestroyed(model.ReasonGraceExpired)
}

// Destroy removes and tears down a session unconditionally.
func (r *Registry) Destroy(sessionID, reason string) {
	r.mu.Lock()
	c, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)
	r.stopTimerLocked(sessionID)
	r.mu.Unlock()

	c.teardown(reason)
	metrics.RecordSessionDestroyed(reason)
}

// Shutdown destroys all sessions in parallel and blocks until every teardown
// finished or ctx expired.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	for id := range r.timers {
		r.stopTimerLocked(id)
	}
	remaining := make([]*Controller, 0, len(r.sessions))
	for id, c := range r.sessions {
		remaining = append(remaining, c)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, c := range remaining {
		g.Go(func() error {
			c.teardown(model.ReasonShutdown)
			metrics.RecordSessionDestroyed(model.ReasonShutdown)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("session teardown incomplete: %w", ctx.Err())
	}
}
