// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics defines the Prometheus instrumentation for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the number of live sessions in the registry.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hostgw_sessions_active",
		Help: "Number of sessions currently held by the registry.",
	})

	// SessionsCreated counts session creations.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostgw_sessions_created_total",
		Help: "Total number of sessions created.",
	})

	// SessionsDestroyed counts session destructions by reason.
	SessionsDestroyed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostgw_sessions_destroyed_total",
		Help: "Total number of sessions destroyed, by reason.",
	}, []string{"reason"})

	// SessionsRejected counts attach attempts refused at the cap.
	SessionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostgw_sessions_rejected_total",
		Help: "Total number of session attaches rejected at the session limit.",
	})

	// GraceReschedules counts destruction timers deferred by a running AST.
	GraceReschedules = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostgw_session_grace_reschedules_total",
		Help: "Total number of grace-period expirations deferred because an AST was still running.",
	})

	// Executions counts finished AST executions by script and terminal status.
	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostgw_ast_executions_total",
		Help: "Total number of AST executions, by script name and terminal status.",
	}, []string{"ast", "status"})

	// Items counts processed items by script and status.
	Items = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostgw_ast_items_total",
		Help: "Total number of AST items processed, by script name and status.",
	}, []string{"ast", "status"})

	// ExecutionDuration observes wall-clock execution duration.
	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hostgw_ast_execution_duration_seconds",
		Help:    "AST execution duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"ast", "mode"})

	// EmulatorFailures counts failed emulator operations.
	EmulatorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostgw_emulator_failures_total",
		Help: "Total number of failed emulator operations, by operation.",
	}, []string{"op"})

	// StoreFailures counts best-effort persistence failures.
	StoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostgw_store_failures_total",
		Help: "Total number of persistence operations that failed, by operation.",
	}, []string{"op"})

	// TransportDrops counts outbound frames dropped at a full client queue.
	TransportDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostgw_transport_dropped_frames_total",
		Help: "Total number of outbound frames dropped because a client send queue was full.",
	})

	// MirrorPublishes counts frames mirrored to Valkey channels.
	MirrorPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostgw_mirror_publishes_total",
		Help: "Total number of frames published to the Valkey mirror, by outcome.",
	}, []string{"outcome"})
)

// RecordExecution records a finished execution with its duration.
func RecordExecution(ast, status, mode string, seconds float64) {
	Executions.WithLabelValues(ast, status).Inc()
	ExecutionDuration.WithLabelValues(ast, mode).Observe(seconds)
}

// RecordItem records one processed item.
func RecordItem(ast, status string) {
	Items.WithLabelValues(ast, status).Inc()
}

// RecordSessionDestroyed records a session teardown.
func RecordSessionDestroyed(reason string) {
	SessionsDestroyed.WithLabelValues(reason).Inc()
	ActiveSessions.Dec()
}

// RecordSessionCreated records a session creation.
func RecordSessionCreated() {
	SessionsCreated.Inc()
	ActiveSessions.Inc()
}
