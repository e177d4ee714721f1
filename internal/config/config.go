// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Snapshot is the full gateway configuration, resolved once at startup.
// Precedence: environment > config file > defaults.
type Snapshot struct {
	Server    Server
	Registry  Registry
	Emulator  Emulator
	Store     Store
	Redis     Redis
	Telemetry Telemetry
	Log       Log
}

// Server holds the WebSocket/HTTP listener settings.
type Server struct {
	Host string
	Port int
}

// Registry holds session registry limits.
type Registry struct {
	MaxSessions int
	GracePeriod time.Duration
}

// Emulator holds connection settings for the 3270 emulator host.
type Emulator struct {
	Host                string
	Port                int
	Secure              bool
	TerminalType        string
	MaxWait             time.Duration
	WaitSleep           time.Duration
	ParallelMaxSessions int
}

// Store holds persistence settings.
type Store struct {
	Dir string
}

// Redis holds the optional Valkey mirror settings.
type Redis struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// Telemetry holds tracing settings.
type Telemetry struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	Environment  string
	SamplingRate float64
}

// Log holds logging settings.
type Log struct {
	Level string
}

// fileConfig mirrors Snapshot with optional fields for the YAML overlay.
type fileConfig struct {
	Server struct {
		Host *string `yaml:"host"`
		Port *int    `yaml:"port"`
	} `yaml:"server"`
	Registry struct {
		MaxSessions        *int `yaml:"maxSessions"`
		GracePeriodSeconds *int `yaml:"gracePeriodSeconds"`
	} `yaml:"registry"`
	Emulator struct {
		Host                *string  `yaml:"host"`
		Port                *int     `yaml:"port"`
		Secure              *bool    `yaml:"secure"`
		TerminalType        *string  `yaml:"terminalType"`
		MaxWaitSeconds      *float64 `yaml:"maxWaitSeconds"`
		WaitSleepSeconds    *float64 `yaml:"waitSleepSeconds"`
		ParallelMaxSessions *int     `yaml:"parallelMaxSessions"`
	} `yaml:"emulator"`
	Store struct {
		Dir *string `yaml:"dir"`
	} `yaml:"store"`
	Redis struct {
		Enabled  *bool   `yaml:"enabled"`
		Addr     *string `yaml:"addr"`
		Password *string `yaml:"password"`
		DB       *int    `yaml:"db"`
	} `yaml:"redis"`
	Telemetry struct {
		Enabled      *bool    `yaml:"enabled"`
		Exporter     *string  `yaml:"exporter"`
		Endpoint     *string  `yaml:"endpoint"`
		Environment  *string  `yaml:"environment"`
		SamplingRate *float64 `yaml:"samplingRate"`
	} `yaml:"telemetry"`
	Log struct {
		Level *string `yaml:"level"`
	} `yaml:"log"`
}

func defaults() Snapshot {
	return Snapshot{
		Server:   Server{Host: "0.0.0.0", Port: 8765},
		Registry: Registry{MaxSessions: 10, GracePeriod: 60 * time.Second},
		Emulator: Emulator{
			Host:                "",
			Port:                23,
			Secure:              true,
			TerminalType:        "IBM-3278-2-E",
			MaxWait:             30 * time.Second,
			WaitSleep:           200 * time.Millisecond,
			ParallelMaxSessions: 5,
		},
		Store:     Store{Dir: "./data"},
		Redis:     Redis{Enabled: false, Addr: "localhost:6379"},
		Telemetry: Telemetry{Enabled: false, Exporter: "grpc", Endpoint: "localhost:4317", Environment: "development", SamplingRate: 1.0},
		Log:       Log{Level: "info"},
	}
}

// Load resolves the configuration snapshot. When path is non-empty the YAML
// file at path is merged over the defaults before environment variables are
// applied on top.
func Load(path string) (Snapshot, error) {
	snap := defaults()

	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return snap, fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return snap, fmt.Errorf("parse config file: %w", err)
		}
		applyFile(&snap, &fc)
	}

	applyEnv(&snap)

	if snap.Registry.MaxSessions < 1 {
		return snap, fmt.Errorf("maxSessions must be >= 1, got %d", snap.Registry.MaxSessions)
	}
	if snap.Emulator.ParallelMaxSessions < 1 {
		return snap, fmt.Errorf("parallelMaxSessions must be >= 1, got %d", snap.Emulator.ParallelMaxSessions)
	}
	return snap, nil
}

func applyFile(snap *Snapshot, fc *fileConfig) {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}

	setStr(&snap.Server.Host, fc.Server.Host)
	setInt(&snap.Server.Port, fc.Server.Port)

	setInt(&snap.Registry.MaxSessions, fc.Registry.MaxSessions)
	if fc.Registry.GracePeriodSeconds != nil {
		snap.Registry.GracePeriod = time.Duration(*fc.Registry.GracePeriodSeconds) * time.Second
	}

	setStr(&snap.Emulator.Host, fc.Emulator.Host)
	setInt(&snap.Emulator.Port, fc.Emulator.Port)
	setBool(&snap.Emulator.Secure, fc.Emulator.Secure)
	setStr(&snap.Emulator.TerminalType, fc.Emulator.TerminalType)
	if fc.Emulator.MaxWaitSeconds != nil {
		snap.Emulator.MaxWait = time.Duration(*fc.Emulator.MaxWaitSeconds * float64(time.Second))
	}
	if fc.Emulator.WaitSleepSeconds != nil {
		snap.Emulator.WaitSleep = time.Duration(*fc.Emulator.WaitSleepSeconds * float64(time.Second))
	}
	setInt(&snap.Emulator.ParallelMaxSessions, fc.Emulator.ParallelMaxSessions)

	setStr(&snap.Store.Dir, fc.Store.Dir)

	setBool(&snap.Redis.Enabled, fc.Redis.Enabled)
	setStr(&snap.Redis.Addr, fc.Redis.Addr)
	setStr(&snap.Redis.Password, fc.Redis.Password)
	setInt(&snap.Redis.DB, fc.Redis.DB)

	setBool(&snap.Telemetry.Enabled, fc.Telemetry.Enabled)
	setStr(&snap.Telemetry.Exporter, fc.Telemetry.Exporter)
	setStr(&snap.Telemetry.Endpoint, fc.Telemetry.Endpoint)
	setStr(&snap.Telemetry.Environment, fc.Telemetry.Environment)
	if fc.Telemetry.SamplingRate != nil {
		snap.Telemetry.SamplingRate = *fc.Telemetry.SamplingRate
	}

	setStr(&snap.Log.Level, fc.Log.Level)
}

func applyEnv(snap *Snapshot) {
	snap.Server.Host = ParseString("WS_HOST", snap.Server.Host)
	snap.Server.Port = ParseInt("WS_PORT", snap.Server.Port)

	snap.Registry.MaxSessions = ParseInt("MAX_SESSIONS", snap.Registry.MaxSessions)
	snap.Registry.GracePeriod = ParseDuration("SESSION_GRACE_PERIOD", snap.Registry.GracePeriod)

	snap.Emulator.Host = ParseString("HOST_ADDRESS", snap.Emulator.Host)
	snap.Emulator.Port = ParseInt("HOST_PORT", snap.Emulator.Port)
	snap.Emulator.Secure = ParseBool("HOST_SECURE", snap.Emulator.Secure)
	snap.Emulator.TerminalType = ParseString("TERMINAL_TYPE", snap.Emulator.TerminalType)
	snap.Emulator.MaxWait = ParseDuration("EMULATOR_MAX_WAIT", snap.Emulator.MaxWait)
	snap.Emulator.WaitSleep = ParseDuration("EMULATOR_WAIT_SLEEP", snap.Emulator.WaitSleep)
	snap.Emulator.ParallelMaxSessions = ParseInt("PARALLEL_MAX_SESSIONS", snap.Emulator.ParallelMaxSessions)

	snap.Store.Dir = ParseString("STORE_DIR", snap.Store.Dir)

	snap.Redis.Enabled = ParseBool("REDIS_ENABLED", snap.Redis.Enabled)
	snap.Redis.Addr = ParseString("REDIS_ADDR", snap.Redis.Addr)
	snap.Redis.Password = ParseString("REDIS_PASSWORD", snap.Redis.Password)
	snap.Redis.DB = ParseInt("REDIS_DB", snap.Redis.DB)

	snap.Telemetry.Enabled = ParseBool("OTEL_ENABLED", snap.Telemetry.Enabled)
	snap.Telemetry.Exporter = ParseString("OTEL_EXPORTER", snap.Telemetry.Exporter)
	snap.Telemetry.Endpoint = ParseString("OTEL_ENDPOINT", snap.Telemetry.Endpoint)
	snap.Telemetry.Environment = ParseString("OTEL_ENVIRONMENT", snap.Telemetry.Environment)
	snap.Telemetry.SamplingRate = ParseFloat("OTEL_SAMPLING_RATE", snap.Telemetry.SamplingRate)

	snap.Log.Level = ParseString("LOG_LEVEL", snap.Log.Level)
}
