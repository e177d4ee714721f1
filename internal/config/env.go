// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads gateway configuration from environment variables and
// an optional YAML file, with env taking precedence.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/ManuGH/hostgw/internal/log"
)

// ParseString returns the value of the environment variable key, or def when
// the variable is unset or empty.
func ParseString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		logSource(key, "env")
		return v
	}
	logSource(key, "default")
	return def
}

// ParseInt returns the integer value of the environment variable key, or def
// when the variable is unset or not a valid integer.
func ParseInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		logSource(key, "default")
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Base().Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment, using default")
		return def
	}
	logSource(key, "env")
	return n
}

// ParseBool returns the boolean value of the environment variable key, or def
// when the variable is unset or not a valid boolean.
func ParseBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		logSource(key, "default")
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Base().Warn().Str("key", key).Str("value", v).Msg("invalid boolean in environment, using default")
		return def
	}
	logSource(key, "env")
	return b
}

// ParseFloat returns the float value of the environment variable key, or def
// when the variable is unset or not a valid float.
func ParseFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		logSource(key, "default")
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Base().Warn().Str("key", key).Str("value", v).Msg("invalid float in environment, using default")
		return def
	}
	logSource(key, "env")
	return f
}

// ParseDuration returns the duration value of the environment variable key.
// Plain integers are interpreted as seconds for compatibility with the
// deployment's existing variables.
func ParseDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		logSource(key, "default")
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		logSource(key, "env")
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Base().Warn().Str("key", key).Str("value", v).Msg("invalid duration in environment, using default")
		return def
	}
	logSource(key, "env")
	return d
}

func logSource(key, source string) {
	log.Base().Debug().Str("key", key).Str("source", source).Msg("config value resolved")
}
