// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// The hostgw daemon: a WebSocket gateway that drives a 3270 terminal
// emulator for interactive sessions and automated scripts.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ManuGH/hostgw/internal/ast"
	"github.com/ManuGH/hostgw/internal/ast/exec"
	"github.com/ManuGH/hostgw/internal/ast/scripts"
	"github.com/ManuGH/hostgw/internal/channels"
	"github.com/ManuGH/hostgw/internal/config"
	"github.com/ManuGH/hostgw/internal/domain/session/manager"
	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/emulator/fake"
	"github.com/ManuGH/hostgw/internal/emulator/s3270"
	"github.com/ManuGH/hostgw/internal/log"
	"github.com/ManuGH/hostgw/internal/store"
	"github.com/ManuGH/hostgw/internal/telemetry"
	"github.com/ManuGH/hostgw/internal/transport/ws"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Base().Fatal().Err(err).Msg("configuration invalid")
	}
	log.Configure(log.Config{Level: cfg.Log.Level, Service: "hostgw"})
	logger := log.WithComponent("daemon")
	logger.Info().Str("version", version).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "hostgw",
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry init failed")
	}

	st, err := store.OpenBadger(cfg.Store.Dir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Store.Dir).Msg("store open failed")
	}

	var mirror *channels.Mirror
	if cfg.Redis.Enabled {
		mirror = channels.NewMirror(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := mirror.Ping(ctx); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("valkey unreachable, mirror degraded")
		}
	}

	var opener emulator.Opener
	if cfg.Emulator.Host == "" {
		logger.Warn().Msg("no emulator host configured, using the in-memory emulator")
		opener = &fake.Opener{}
	} else {
		opener = &s3270.Driver{}
	}
	emuOpts := emulator.Options{
		Host:         cfg.Emulator.Host,
		Port:         cfg.Emulator.Port,
		Secure:       cfg.Emulator.Secure,
		TerminalType: cfg.Emulator.TerminalType,
		MaxWait:      cfg.Emulator.MaxWait,
		WaitSleep:    cfg.Emulator.WaitSleep,
	}
	auth := ast.AuthDefaults{MaxWait: cfg.Emulator.MaxWait, WaitSleep: cfg.Emulator.WaitSleep}

	runner := &exec.Runner{
		Store:              st,
		Opener:             opener,
		EmulatorOpts:       emuOpts,
		DefaultMaxSessions: cfg.Emulator.ParallelMaxSessions,
		Auth:               auth,
	}

	registry := ast.NewRegistry()
	scripts.RegisterAll(registry, scripts.Deps{
		Pending: pendingSource(),
		Report:  reportSource(),
		Auth:    auth,
	})

	sessions := manager.NewRegistry(manager.Options{
		MaxSessions:  cfg.Registry.MaxSessions,
		GracePeriod:  cfg.Registry.GracePeriod,
		Opener:       opener,
		EmulatorOpts: emuOpts,
		Runner:       runner,
		Scripts:      registry,
		Mirror:       mirror,
	})

	mirror.SubscribeControl(ctx, func(payload []byte) {
		var cmd struct {
			Action    string `json:"action"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(payload, &cmd); err != nil {
			logger.Warn().Err(err).Msg("undecodable control command")
			return
		}
		switch cmd.Action {
		case "create":
			if _, err := sessions.Provision(ctx, cmd.SessionID); err != nil {
				logger.Warn().Err(err).Str(log.FieldSessionID, cmd.SessionID).
					Msg("control-channel session create failed")
			}
		case "destroy":
			sessions.Destroy(cmd.SessionID, "control_channel")
		default:
			logger.Warn().Str("action", cmd.Action).Msg("unsupported control command")
		}
	})

	server := ws.NewServer(sessions, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server shutdown incomplete")
	}
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("session teardown incomplete")
	}
	if err := st.Close(); err != nil {
		logger.Warn().Err(err).Msg("store close failed")
	}
	if err := mirror.Close(); err != nil {
		logger.Warn().Err(err).Msg("mirror close failed")
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("telemetry shutdown incomplete")
	}
	logger.Info().Msg("stopped")
}

// pendingSource opens the BI-renew pending-record database when configured.
func pendingSource() scripts.PendingSource {
	dsn := os.Getenv("PENDING_DB")
	if dsn == "" {
		return nil
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.WithComponent("daemon").Warn().Err(err).Msg("pending database unavailable")
		return nil
	}
	return &scripts.SQLPendingSource{DB: db}
}

// reportSource wires the office-report reader when configured.
func reportSource() scripts.ReportSource {
	path := os.Getenv("OFFICE_REPORT_PATH")
	if path == "" {
		return nil
	}
	return &scripts.CSVReportSource{PathPattern: path}
}
