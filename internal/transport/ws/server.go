// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ws exposes the gateway's WebSocket endpoint and the HTTP plumbing
// around it (health, metrics).
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/hostgw/internal/domain/session/manager"
	"github.com/ManuGH/hostgw/internal/domain/session/model"
	"github.com/ManuGH/hostgw/internal/log"
	"github.com/ManuGH/hostgw/internal/protocol"
)

// Close code sent when the request path does not name a valid session.
const closeInvalidPath = 4000

// Server hosts the session WebSocket endpoint.
type Server struct {
	registry *manager.Registry
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer builds the server for the given registry.
func NewServer(registry *manager.Registry, addr string) *Server {
	s := &Server{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway fronts trusted automation clients; origin policy
			// is enforced upstream.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(60, time.Minute))
		r.Get("/session/{sessionID}", s.handleSession)
	})

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the endpoint until Shutdown.
func (s *Server) ListenAndServe() error {
	log.WithComponent("ws").Info().Str("addr", s.httpSrv.Addr).Msg("listening")
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, `{"status":"ok"}`)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	logger := log.WithComponent("ws").With().Str(log.FieldSessionID, sessionID).Logger()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	if !model.IsSafeSessionID(sessionID) {
		msg := websocket.FormatCloseMessage(closeInvalidPath, "Invalid path")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		logger.Warn().Msg("rejected invalid session path")
		return
	}

	t := newTransport(conn)
	ctrl, err := s.registry.Attach(r.Context(), sessionID, t)
	if err != nil {
		code := protocol.CodeOf(err)
		_ = t.Send(protocol.NewErrorMessage(sessionID, code, err.Error()))
		// Give the pump a moment to flush the error frame.
		time.Sleep(50 * time.Millisecond)
		_ = t.Close()
		logger.Warn().Err(err).Str("code", code).Msg("attach rejected")
		return
	}

	ctx := log.ContextWithSessionID(r.Context(), sessionID)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		msg, err := protocol.Parse(raw)
		if err != nil {
			_ = t.Send(protocol.NewErrorMessage(sessionID, protocol.CodeInvalidMessage, err.Error()))
			continue
		}
		ctrl.HandleFrame(ctx, msg)
	}

	_ = t.Close()
	s.registry.HandleDisconnect(sessionID)
}
